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

import "fmt"

// validTransitions lists the legal next states per state. StateError is reachable
// from every non-terminal state and is handled separately.
var validTransitions = map[State][]State{
	StateOfferCreated:               {StateOfferURIRetrieved, StateAuthorizationInitiated, StateAccessTokenRequested},
	StateOfferURIRetrieved:          {StateAuthorizationInitiated, StateAccessTokenRequested},
	StateAuthorizationInitiated:     {StateAuthorizationGranted},
	StateAuthorizationGranted:       {StateAccessTokenRequested},
	StateAccessTokenRequested:       {StateAccessTokenCreated},
	StateAccessTokenCreated:         {StateCredentialRequestReceived},
	StateCredentialRequestReceived:  {StateCredentialRequestReceived, StateCredentialsPartiallyIssued, StateCompleted},
	StateCredentialsPartiallyIssued: {StateCredentialRequestReceived, StateCredentialsPartiallyIssued, StateCompleted},
}

// Terminal reports whether no transitions leave the state.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateError
}

// transition moves the session to the next state, or fails if the transition is
// illegal. All session state mutations go through here so partially updated
// sessions cannot be observed.
func (s *IssuanceSession) transition(next State) error {
	if s.State.Terminal() {
		return fmt.Errorf("issuance session %s is in terminal state %s", s.ID, s.State)
	}
	if next == StateError {
		s.State = StateError
		return nil
	}
	for _, allowed := range validTransitions[s.State] {
		if allowed == next {
			s.State = next
			return nil
		}
	}
	return fmt.Errorf("illegal issuance session state transition: %s -> %s", s.State, next)
}
