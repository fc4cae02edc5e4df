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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIssuanceSession_transition(t *testing.T) {
	t.Run("legal transitions", func(t *testing.T) {
		legal := []struct {
			from State
			to   State
		}{
			{StateOfferCreated, StateOfferURIRetrieved},
			{StateOfferCreated, StateAuthorizationInitiated},
			{StateOfferCreated, StateAccessTokenRequested},
			{StateOfferURIRetrieved, StateAuthorizationInitiated},
			{StateOfferURIRetrieved, StateAccessTokenRequested},
			{StateAuthorizationInitiated, StateAuthorizationGranted},
			{StateAuthorizationGranted, StateAccessTokenRequested},
			{StateAccessTokenRequested, StateAccessTokenCreated},
			{StateAccessTokenCreated, StateCredentialRequestReceived},
			{StateCredentialRequestReceived, StateCredentialRequestReceived},
			{StateCredentialRequestReceived, StateCredentialsPartiallyIssued},
			{StateCredentialRequestReceived, StateCompleted},
			{StateCredentialsPartiallyIssued, StateCredentialRequestReceived},
			{StateCredentialsPartiallyIssued, StateCompleted},
		}
		for _, transition := range legal {
			session := IssuanceSession{ID: "session-id", State: transition.from}
			err := session.transition(transition.to)
			assert.NoError(t, err, "%s -> %s", transition.from, transition.to)
			assert.Equal(t, transition.to, session.State)
		}
	})
	t.Run("illegal transitions", func(t *testing.T) {
		session := IssuanceSession{ID: "session-id", State: StateOfferCreated}
		err := session.transition(StateCredentialRequestReceived)
		assert.EqualError(t, err, "illegal issuance session state transition: OfferCreated -> CredentialRequestReceived")
		assert.Equal(t, StateOfferCreated, session.State)
	})
	t.Run("no transitions leave a terminal state", func(t *testing.T) {
		for _, terminal := range []State{StateCompleted, StateError} {
			session := IssuanceSession{ID: "session-id", State: terminal}
			err := session.transition(StateCredentialRequestReceived)
			assert.ErrorContains(t, err, "is in terminal state")
			err = session.transition(StateError)
			assert.ErrorContains(t, err, "is in terminal state")
		}
	})
	t.Run("error is reachable from every non-terminal state", func(t *testing.T) {
		for from := range validTransitions {
			session := IssuanceSession{ID: "session-id", State: from}
			err := session.transition(StateError)
			assert.NoError(t, err, string(from))
			assert.Equal(t, StateError, session.State)
		}
	})
	t.Run("terminal states", func(t *testing.T) {
		assert.True(t, StateCompleted.Terminal())
		assert.True(t, StateError.Terminal())
		assert.False(t, StateOfferCreated.Terminal())
		assert.False(t, StateCredentialsPartiallyIssued.Terminal())
	})
}
