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

package issuer

import (
	"context"
	"path"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idx-network/idx-node/storage"
)

const refType = "ref-type"
const ref = "ref-value"

func Test_stoabsStore_Save(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		store := createStore(t)
		expected := IssuanceSession{ID: "session-id", State: StateOfferCreated, ExpiresAt: futureExpiry()}

		err := store.Save(context.Background(), expected)
		require.NoError(t, err)

		actual, err := store.GetByID(context.Background(), expected.ID)
		require.NoError(t, err)
		require.NotNil(t, actual)
		assert.Equal(t, expected.State, actual.State)
	})
	t.Run("ID already exists", func(t *testing.T) {
		store := createStore(t)
		session := IssuanceSession{ID: "session-id", ExpiresAt: futureExpiry()}
		require.NoError(t, store.Save(context.Background(), session))

		err := store.Save(context.Background(), session)

		assert.EqualError(t, err, "issuance session with this ID already exists")
	})
}

func Test_stoabsStore_Update(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		store := createStore(t)
		session := IssuanceSession{ID: "session-id", State: StateOfferCreated, ExpiresAt: futureExpiry()}
		require.NoError(t, store.Save(context.Background(), session))

		session.State = StateOfferURIRetrieved
		err := store.Update(context.Background(), session)
		require.NoError(t, err)

		actual, err := store.GetByID(context.Background(), session.ID)
		require.NoError(t, err)
		assert.Equal(t, StateOfferURIRetrieved, actual.State)
	})
	t.Run("unknown session", func(t *testing.T) {
		store := createStore(t)

		err := store.Update(context.Background(), IssuanceSession{ID: "unknown"})

		assert.EqualError(t, err, "issuance session with this ID does not exist")
	})
}

func Test_stoabsStore_GetByID(t *testing.T) {
	t.Run("unknown session returns nil", func(t *testing.T) {
		store := createStore(t)

		actual, err := store.GetByID(context.Background(), "unknown")

		assert.NoError(t, err)
		assert.Nil(t, actual)
	})
}

func Test_stoabsStore_StoreReference(t *testing.T) {
	t.Run("reference already exists", func(t *testing.T) {
		store := createStore(t)
		session := IssuanceSession{ID: "session-id", ExpiresAt: futureExpiry()}
		require.NoError(t, store.Save(context.Background(), session))

		err := store.StoreReference(context.Background(), session.ID, refType, ref, futureExpiry())
		require.NoError(t, err)
		err = store.StoreReference(context.Background(), session.ID, refType, ref, futureExpiry())

		assert.EqualError(t, err, "reference already exists")
	})
	t.Run("invalid reference", func(t *testing.T) {
		store := createStore(t)

		err := store.StoreReference(context.Background(), "unknown", refType, "", futureExpiry())

		assert.EqualError(t, err, "invalid reference")
	})
	t.Run("unknown session", func(t *testing.T) {
		store := createStore(t)

		err := store.StoreReference(context.Background(), "unknown", refType, ref, futureExpiry())

		assert.EqualError(t, err, "issuance session with this ID does not exist")
	})
}

func Test_stoabsStore_FindByReference(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		store := createStore(t)
		expected := IssuanceSession{ID: "session-id", State: StateOfferCreated, ExpiresAt: futureExpiry()}
		require.NoError(t, store.Save(context.Background(), expected))
		require.NoError(t, store.StoreReference(context.Background(), expected.ID, refType, ref, futureExpiry()))

		actual, err := store.FindByReference(context.Background(), refType, ref)

		require.NoError(t, err)
		require.NotNil(t, actual)
		assert.Equal(t, expected.ID, actual.ID)
	})
	t.Run("unknown reference returns nil", func(t *testing.T) {
		store := createStore(t)

		actual, err := store.FindByReference(context.Background(), refType, "unknown")

		assert.NoError(t, err)
		assert.Nil(t, actual)
	})
	t.Run("expired session is still returned", func(t *testing.T) {
		// expiry is checked by the caller, it must be able to load the
		// session to record the error state
		store := createStore(t)
		expected := IssuanceSession{ID: "session-id", State: StateOfferCreated, ExpiresAt: time.Now().Add(-time.Hour)}
		require.NoError(t, store.Save(context.Background(), expected))
		require.NoError(t, store.StoreReference(context.Background(), expected.ID, refType, ref, futureExpiry()))

		actual, err := store.FindByReference(context.Background(), refType, ref)

		require.NoError(t, err)
		require.NotNil(t, actual)
		assert.True(t, actual.Expired())
	})
}

func Test_stoabsStore_DeleteReference(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		store := createStore(t)
		session := IssuanceSession{ID: "session-id", ExpiresAt: futureExpiry()}
		require.NoError(t, store.Save(context.Background(), session))
		require.NoError(t, store.StoreReference(context.Background(), session.ID, refType, ref, futureExpiry()))

		err := store.DeleteReference(context.Background(), refType, ref)
		require.NoError(t, err)

		actual, err := store.FindByReference(context.Background(), refType, ref)
		assert.NoError(t, err)
		assert.Nil(t, actual)
	})
	t.Run("unknown reference", func(t *testing.T) {
		store := createStore(t)

		err := store.DeleteReference(context.Background(), refType, ref)

		assert.NoError(t, err)
	})
}

func Test_stoabsStore_prune(t *testing.T) {
	t.Run("expired session and reference are removed", func(t *testing.T) {
		store := createStore(t).(*stoabsStore)
		expired := IssuanceSession{ID: "expired", ExpiresAt: time.Now().Add(-time.Hour)}
		active := IssuanceSession{ID: "active", ExpiresAt: futureExpiry()}
		require.NoError(t, store.Save(context.Background(), expired))
		require.NoError(t, store.Save(context.Background(), active))
		require.NoError(t, store.StoreReference(context.Background(), expired.ID, refType, "expired-ref", time.Now().Add(-time.Hour)))
		require.NoError(t, store.StoreReference(context.Background(), active.ID, refType, "active-ref", futureExpiry()))

		sessionsPruned, refsPruned, err := store.prune(context.Background(), time.Now())

		require.NoError(t, err)
		assert.Equal(t, 1, sessionsPruned)
		assert.Equal(t, 1, refsPruned)
		actual, err := store.GetByID(context.Background(), active.ID)
		require.NoError(t, err)
		assert.NotNil(t, actual)
	})
}

func createStore(t *testing.T) Store {
	store := NewStoabsStore(storage.CreateTestBBoltStore(t, path.Join(t.TempDir(), "test.db")))
	t.Cleanup(store.Close)
	return store
}

func futureExpiry() time.Time {
	return time.Now().Add(time.Hour).Truncate(time.Second)
}
