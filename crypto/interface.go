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

// Package crypto provides key management and JWT signing for the node.
package crypto

import (
	"context"
	"crypto"
)

// KeyStore defines the functions for working with private keys held by the node.
// Keys are referenced by kid, the raw private key never leaves the store.
type KeyStore interface {
	// SignJWT creates a signed JWT with the given claims and additional protected headers,
	// using the private key indicated by kid.
	SignJWT(ctx context.Context, claims map[string]interface{}, headers map[string]interface{}, kid string) (string, error)
	// ResolvePublicKey returns the public key for the given kid.
	// It returns ErrPrivateKeyNotFound when the kid is unknown.
	ResolvePublicKey(kid string) (crypto.PublicKey, error)
}
