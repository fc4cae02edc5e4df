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

// Package storage provides short-lived key-value storage for session data.
package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when the key does not exist or the entry has expired.
var ErrNotFound = errors.New("not found")

// SessionDatabase holds session data on a KV basis with a TTL.
// Keys could be cNonces, DPoP jti's, authorization codes, etc.
type SessionDatabase interface {
	// GetStore returns a SessionStore with the given TTL, its keys prefixed with the given partitioning keys.
	GetStore(ttl time.Duration, keys ...string) SessionStore
	// Close signals the database to close any owned resources.
	Close()
}

// SessionStore is a key-value store for a single partition of the SessionDatabase.
// All entries written through the store share the same TTL.
type SessionStore interface {
	// Delete removes the entry for the given key. It does not return an error if the key does not exist.
	Delete(key string) error
	// Exists returns true if the key exists and has not expired.
	Exists(key string) bool
	// Get unmarshals the value for the given key into target. Returns ErrNotFound when absent or expired.
	Get(key string, target interface{}) error
	// GetAndDelete combines Get and Delete in one operation, for single-use values such as nonces.
	GetAndDelete(key string, target interface{}) error
	// Put stores the value (JSON-marshalled) under the given key with the store's TTL.
	Put(key string, value interface{}) error
}
