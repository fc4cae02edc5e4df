/*
 * Copyright (C) 2026 IDX network community
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 *
 */

package crypto

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"sync"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
)

// ErrPrivateKeyNotFound is returned when the private key doesn't exist.
var ErrPrivateKeyNotFound = errors.New("private key not found")

var _ KeyStore = (*MemoryKeyStore)(nil)

// MemoryKeyStore is a KeyStore that holds keys in memory. Intended for testing and
// single-node deployments; production deployments should plug in an external KMS.
type MemoryKeyStore struct {
	mux  sync.RWMutex
	keys map[string]jwk.Key
}

// NewMemoryKeyStore creates an empty MemoryKeyStore.
func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{keys: map[string]jwk.Key{}}
}

// New generates an ECDSA P-256 key pair under the given kid, replacing any existing key.
func (m *MemoryKeyStore) New(kid string) error {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return err
	}
	key, err := JWKFromSigner(privateKey)
	if err != nil {
		return err
	}
	if err = key.Set(jwk.KeyIDKey, kid); err != nil {
		return err
	}
	m.mux.Lock()
	defer m.mux.Unlock()
	m.keys[kid] = key
	return nil
}

func (m *MemoryKeyStore) SignJWT(_ context.Context, claims map[string]interface{}, headers map[string]interface{}, kid string) (string, error) {
	m.mux.RLock()
	key, ok := m.keys[kid]
	m.mux.RUnlock()
	if !ok {
		return "", ErrPrivateKeyNotFound
	}
	if headers == nil {
		headers = map[string]interface{}{}
	}
	if _, set := headers[jws.KeyIDKey]; !set {
		headers[jws.KeyIDKey] = kid
	}
	return SignJWT(key, claims, headers)
}

func (m *MemoryKeyStore) ResolvePublicKey(kid string) (crypto.PublicKey, error) {
	m.mux.RLock()
	key, ok := m.keys[kid]
	m.mux.RUnlock()
	if !ok {
		return nil, ErrPrivateKeyNotFound
	}
	publicJWK, err := key.PublicKey()
	if err != nil {
		return nil, err
	}
	var rawKey crypto.PublicKey
	if err := publicJWK.Raw(&rawKey); err != nil {
		return nil, err
	}
	return rawKey, nil
}
