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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/idx-network/idx-node/crypto"
	"github.com/idx-network/idx-node/openid4vc"
	"github.com/idx-network/idx-node/storage"
)

// Store failures must surface to the caller instead of being mapped to a
// protocol error, so the HTTP layer returns server_error.
func TestIssuer_storeFailures(t *testing.T) {
	ctx := context.Background()
	storeError := errors.New("store failure")

	t.Run("CreateCredentialOffer", func(t *testing.T) {
		instance, store := newMockedIssuer(t)
		store.EXPECT().Save(gomock.Any(), gomock.Any()).Return(storeError)

		_, _, err := instance.CreateCredentialOffer(ctx, []string{degreeConfigID}, OfferGrants{PreAuthorizedCode: true})

		assert.ErrorIs(t, err, storeError)
	})
	t.Run("CreateCredentialOffer reference", func(t *testing.T) {
		instance, store := newMockedIssuer(t)
		store.EXPECT().Save(gomock.Any(), gomock.Any()).Return(nil)
		store.EXPECT().StoreReference(gomock.Any(), gomock.Any(), refTypeOfferID, gomock.Any(), gomock.Any()).Return(storeError)

		_, _, err := instance.CreateCredentialOffer(ctx, []string{degreeConfigID}, OfferGrants{PreAuthorizedCode: true})

		assert.ErrorIs(t, err, storeError)
	})
	t.Run("GetCredentialOffer", func(t *testing.T) {
		instance, store := newMockedIssuer(t)
		store.EXPECT().FindByReference(gomock.Any(), refTypeOfferID, "offer-id").Return(nil, storeError)

		_, err := instance.GetCredentialOffer(ctx, "offer-id")

		assert.ErrorIs(t, err, storeError)
	})
	t.Run("HandleTokenRequest", func(t *testing.T) {
		instance, store := newMockedIssuer(t)
		store.EXPECT().FindByReference(gomock.Any(), refTypePreAuthorizedCode, "code").Return(nil, storeError)

		_, err := instance.HandleTokenRequest(ctx, TokenRequest{
			GrantType: openid4vc.PreAuthorizedCodeGrantType,
			Code:      "code",
		})

		assert.ErrorIs(t, err, storeError)
	})
	t.Run("InitiateAuthorization", func(t *testing.T) {
		instance, store := newMockedIssuer(t)
		store.EXPECT().FindByReference(gomock.Any(), refTypeIssuerState, "state").Return(nil, storeError)

		err := instance.InitiateAuthorization(ctx, "state", "client", nil, nil)

		assert.ErrorIs(t, err, storeError)
	})
}

func newMockedIssuer(t *testing.T) (*Issuer, *MockStore) {
	ctrl := gomock.NewController(t)
	store := NewMockStore(ctrl)
	keyStore := crypto.NewMemoryKeyStore()
	require.NoError(t, keyStore.New(testConfig().AccessTokenKID))
	sessions := storage.NewInMemorySessionDatabase()
	t.Cleanup(sessions.Close)
	instance, err := New(testConfig(), store, keyStore, sessions, nil, testMapper())
	require.NoError(t, err)
	return instance, store
}
