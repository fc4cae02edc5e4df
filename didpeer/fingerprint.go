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

package didpeer

import (
	"crypto/ed25519"
	"fmt"
	"strings"

	"filippo.io/edwards25519"
	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-multicodec"
	"github.com/multiformats/go-varint"
)

// didKeyPrefix is the prefix of did:key identifiers as used in recipient and routing keys.
const didKeyPrefix = "did:key:"

// Fingerprint is a multibase(base58btc) encoded multicodec-prefixed public key,
// e.g. z6Mk... for Ed25519 and z6LS... for X25519.
type Fingerprint string

// Ed25519Fingerprint returns the fingerprint of an Ed25519 public key.
func Ed25519Fingerprint(publicKey ed25519.PublicKey) (Fingerprint, error) {
	return encodeFingerprint(multicodec.Ed25519Pub, publicKey)
}

// X25519Fingerprint returns the fingerprint of a raw X25519 public key.
func X25519Fingerprint(publicKey []byte) (Fingerprint, error) {
	return encodeFingerprint(multicodec.X25519Pub, publicKey)
}

func encodeFingerprint(codec multicodec.Code, publicKey []byte) (Fingerprint, error) {
	data := varint.ToUvarint(uint64(codec))
	data = append(data, publicKey...)
	encoded, err := multibase.Encode(multibase.Base58BTC, data)
	if err != nil {
		return "", err
	}
	return Fingerprint(encoded), nil
}

// DecodeFingerprint returns the multicodec code and raw public key bytes of a fingerprint.
func DecodeFingerprint(fingerprint Fingerprint) (multicodec.Code, []byte, error) {
	encoding, data, err := multibase.Decode(string(fingerprint))
	if err != nil {
		return 0, nil, ParsingError{msg: "invalid multibase encoding", cause: err}
	}
	if encoding != multibase.Base58BTC {
		return 0, nil, ParsingError{msg: "fingerprint must be base58btc multibase encoded"}
	}
	codec, read, err := varint.FromUvarint(data)
	if err != nil {
		return 0, nil, ParsingError{msg: "invalid multicodec prefix", cause: err}
	}
	return multicodec.Code(codec), data[read:], nil
}

// DIDKey returns the did:key identifier of a fingerprint, including the key fragment.
func (f Fingerprint) DIDKey() string {
	return fmt.Sprintf("%s%s#%s", didKeyPrefix, f, f)
}

// FingerprintFromDIDKey extracts the fingerprint from a did:key identifier,
// with or without a key fragment.
func FingerprintFromDIDKey(didKey string) (Fingerprint, error) {
	if !strings.HasPrefix(didKey, didKeyPrefix) {
		return "", ParsingError{msg: fmt.Sprintf("not a did:key identifier: %s", didKey)}
	}
	fingerprint := strings.TrimPrefix(didKey, didKeyPrefix)
	if fragmentIdx := strings.Index(fingerprint, "#"); fragmentIdx != -1 {
		fingerprint = fingerprint[:fragmentIdx]
	}
	if fingerprint == "" {
		return "", ParsingError{msg: "did:key identifier is missing its fingerprint"}
	}
	return Fingerprint(fingerprint), nil
}

// DeriveKeyAgreementKey converts an Ed25519 signing key to its birationally
// equivalent X25519 key agreement key.
func DeriveKeyAgreementKey(publicKey ed25519.PublicKey) ([]byte, error) {
	point, err := new(edwards25519.Point).SetBytes(publicKey)
	if err != nil {
		return nil, fmt.Errorf("invalid Ed25519 public key: %w", err)
	}
	return point.BytesMontgomery(), nil
}
