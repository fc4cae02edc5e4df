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

// Package hash provides a fixed-size SHA-256 hash type.
package hash

import (
	"crypto/sha256"
	"encoding/base64"
)

// SHA256HashSize holds the size of sha256 hashes
const SHA256HashSize = 32

// SHA256Hash is a SHA256 hash over some bytes
type SHA256Hash [SHA256HashSize]byte

// SHA256Sum hashes the given data using the SHA256 hash function
func SHA256Sum(data []byte) SHA256Hash {
	return sha256.Sum256(data)
}

// Slice returns the hash as byte slice
func (h SHA256Hash) Slice() []byte {
	return h[:]
}

// Base64URL returns the hash base64url encoded without padding, as used
// for DPoP 'ath' claims and PKCE S256 code challenges.
func (h SHA256Hash) Base64URL() string {
	return base64.RawURLEncoding.EncodeToString(h[:])
}
