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

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	"github.com/eko/gocache/store/go_cache/v4"
	gocacheclient "github.com/patrickmn/go-cache"
)

var _ SessionDatabase = (*InMemorySessionDatabase)(nil)
var _ SessionStore = SessionStoreImpl[[]byte]{}

var sessionStorePruneInterval = 10 * time.Minute

const defaultSessionDataTTL = 15 * time.Minute

// InMemorySessionDatabase holds session data on a KV basis.
// Keys could be cNonces, DPoP jti's, authorization codes, etc.
// All entries are stored with a TTL, so they will be removed automatically.
type InMemorySessionDatabase struct {
	underlying *cache.Cache[[]byte]
}

// NewInMemorySessionDatabase creates a new in-memory session database.
func NewInMemorySessionDatabase() *InMemorySessionDatabase {
	client := gocacheclient.New(defaultSessionDataTTL, sessionStorePruneInterval)
	return &InMemorySessionDatabase{
		underlying: cache.New[[]byte](go_cache.NewGoCache(client)),
	}
}

func (s *InMemorySessionDatabase) GetStore(ttl time.Duration, keys ...string) SessionStore {
	return SessionStoreImpl[[]byte]{
		underlying: s.underlying,
		ttl:        ttl,
		prefixes:   keys,
	}
}

func (s *InMemorySessionDatabase) Close() {
	// NOP, the gocache janitor stops when the client is collected
}

// SessionStoreImpl is a SessionStore over a gocache cache, values stored as JSON.
type SessionStoreImpl[T ~[]byte] struct {
	underlying *cache.Cache[T]
	ttl        time.Duration
	prefixes   []string
}

func (s SessionStoreImpl[T]) Delete(key string) error {
	return s.underlying.Delete(context.Background(), s.getFullKey(key))
}

func (s SessionStoreImpl[T]) Exists(key string) bool {
	_, err := s.underlying.Get(context.Background(), s.getFullKey(key))
	return err == nil
}

func (s SessionStoreImpl[T]) Get(key string, target interface{}) error {
	value, err := s.underlying.Get(context.Background(), s.getFullKey(key))
	if err != nil {
		var notFound *store.NotFound
		if errors.As(err, &notFound) {
			return ErrNotFound
		}
		return err
	}
	return json.Unmarshal([]byte(value), target)
}

func (s SessionStoreImpl[T]) GetAndDelete(key string, target interface{}) error {
	if err := s.Get(key, target); err != nil {
		return err
	}
	return s.Delete(key)
}

func (s SessionStoreImpl[T]) Put(key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.underlying.Set(context.Background(), s.getFullKey(key), T(data), store.WithExpiration(s.ttl))
}

func (s SessionStoreImpl[T]) getFullKey(key string) string {
	return strings.Join(append(s.prefixes, key), "/")
}
