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
	"encoding/json"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/idx-network/idx-node/openid4vc"
)

// State is the lifecycle state of an issuance session.
type State string

const (
	// StateOfferCreated is the initial state of a stateful credential offer.
	StateOfferCreated State = "OfferCreated"
	// StateOfferURIRetrieved means the wallet fetched the hosted offer.
	StateOfferURIRetrieved State = "OfferUriRetrieved"
	// StateAuthorizationInitiated means an authorization request referenced the session.
	StateAuthorizationInitiated State = "AuthorizationInitiated"
	// StateAuthorizationGranted means the user authorized and an authorization code was minted.
	StateAuthorizationGranted State = "AuthorizationGranted"
	// StateAccessTokenRequested means a valid grant was presented at the token endpoint.
	StateAccessTokenRequested State = "AccessTokenRequested"
	// StateAccessTokenCreated means an access token was minted and returned.
	StateAccessTokenCreated State = "AccessTokenCreated"
	// StateCredentialRequestReceived means a syntactically valid credential request arrived.
	StateCredentialRequestReceived State = "CredentialRequestReceived"
	// StateCredentialsPartiallyIssued means some but not all offered credentials were issued.
	StateCredentialsPartiallyIssued State = "CredentialsPartiallyIssued"
	// StateCompleted means all offered credentials were issued. Terminal.
	StateCompleted State = "Completed"
	// StateError is the terminal failure state, with ErrorMessage recorded on the session.
	StateError State = "Error"
)

// IssuanceSession captures one offer-to-completion lifecycle. It is loaded fresh
// from the store by every request and persisted back after mutation.
type IssuanceSession struct {
	ID                string                    `json:"id"`
	IssuerID          string                    `json:"issuer_id"`
	State             State                     `json:"state"`
	CredentialOffer   openid4vc.CredentialOffer `json:"credential_offer"`
	CredentialOfferID string                    `json:"credential_offer_id"`
	// PreAuthorizedCode is set for pre-authorized code grants.
	PreAuthorizedCode string `json:"pre_authorized_code,omitempty"`
	// TxCode is the transaction code the user must present at the token endpoint, if any.
	TxCode   string `json:"tx_code,omitempty"`
	ClientID string `json:"client_id,omitempty"`
	// PKCE holds the code challenge of an authorization code grant.
	PKCE *PKCEParams `json:"pkce,omitempty"`
	// Authorization is progressively filled in during the authorization code flow.
	Authorization *Authorization `json:"authorization,omitempty"`
	// DPoP records whether the access token is DPoP-bound and to which key.
	DPoP *DPoPBinding `json:"dpop,omitempty"`
	// WalletAttestationRequired requires client attestation at the token endpoint.
	WalletAttestationRequired bool `json:"wallet_attestation_required,omitempty"`
	// Presentation links a presentation-during-issuance verification to the session.
	Presentation *PresentationBinding `json:"presentation,omitempty"`
	// IssuanceMetadata is opaque operator-supplied data handed to the credential mapper.
	IssuanceMetadata map[string]interface{} `json:"issuance_metadata,omitempty"`
	// Transactions holds pending deferred issuances.
	Transactions []Transaction `json:"transactions,omitempty"`
	// IssuedCredentials lists the configuration ids already issued, in order of issuance.
	IssuedCredentials []string  `json:"issued_credentials,omitempty"`
	ErrorMessage      string    `json:"error_message,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	ExpiresAt         time.Time `json:"expires_at"`
}

// PKCEParams holds the RFC7636 code challenge of an authorization request.
type PKCEParams struct {
	CodeChallenge       string `json:"code_challenge"`
	CodeChallengeMethod string `json:"code_challenge_method"`
}

// Authorization holds the state of the authorization code flow and the
// authenticated subject the session is pinned to.
type Authorization struct {
	Code          string    `json:"code,omitempty"`
	CodeExpiresAt time.Time `json:"code_expires_at,omitempty"`
	IssuerState   string    `json:"issuer_state,omitempty"`
	Scopes        []string  `json:"scopes,omitempty"`
	// Subject is immutable once bound: later requests with another subject are rejected.
	Subject string `json:"subject,omitempty"`
}

// PresentationBinding records that the wallet must present existing credentials
// before issuance, and which verification session tracks that presentation.
// Verification itself happens at an external verifier.
type PresentationBinding struct {
	Required bool `json:"required,omitempty"`
	// AuthSession correlates the wallet's authorization session at this issuer.
	AuthSession string `json:"auth_session,omitempty"`
	// VerificationSessionID references the session at the external verifier.
	VerificationSessionID string `json:"verification_session_id,omitempty"`
}

// DPoPBinding records the DPoP requirements and proving key of a session.
type DPoPBinding struct {
	Required bool `json:"required,omitempty"`
	// JKT is the RFC7638 thumbprint of the wallet's DPoP key.
	JKT string `json:"jkt,omitempty"`
}

// Transaction is a pending deferred issuance.
type Transaction struct {
	ID                        string `json:"id"`
	CredentialConfigurationID string `json:"credential_configuration_id"`
	NumberOfCredentials       int    `json:"number_of_credentials"`
	// HolderBindings are the verified holder keys the deferred credentials must be bound to.
	HolderBindings []StoredHolderBinding `json:"holder_bindings,omitempty"`
}

// Expired reports whether the session passed its expiry.
func (s IssuanceSession) Expired() bool {
	return s.ExpiresAt.Before(time.Now())
}

// Offered reports whether the configuration id is part of the session's offer.
func (s IssuanceSession) Offered(configurationID string) bool {
	for _, offered := range s.CredentialOffer.CredentialConfigurationIDs {
		if offered == configurationID {
			return true
		}
	}
	return false
}

// Issued reports whether the configuration id was already issued in this session.
func (s IssuanceSession) Issued(configurationID string) bool {
	for _, issued := range s.IssuedCredentials {
		if issued == configurationID {
			return true
		}
	}
	return false
}

// HolderBindingMethod distinguishes how a holder proved possession of a key.
type HolderBindingMethod string

const (
	// HolderBindingJWK binds the credential to a bare public key.
	HolderBindingJWK HolderBindingMethod = "jwk"
	// HolderBindingDID binds the credential to a DID-referenced key.
	HolderBindingDID HolderBindingMethod = "did"
)

// HolderBinding is a verified holder key extracted from a credential request proof.
type HolderBinding struct {
	Method HolderBindingMethod
	// DID is set for did-bound proofs, including the key fragment.
	DID string
	// Key is the holder's public key.
	Key jwk.Key
}

// StoredHolderBinding is the JSON-serializable form of a HolderBinding, kept on
// deferred issuance transactions.
type StoredHolderBinding struct {
	Method HolderBindingMethod `json:"method"`
	DID    string              `json:"did,omitempty"`
	Key    json.RawMessage     `json:"key"`
}

func storeHolderBindings(bindings []HolderBinding) ([]StoredHolderBinding, error) {
	stored := make([]StoredHolderBinding, len(bindings))
	for i, binding := range bindings {
		keyJSON, err := json.Marshal(binding.Key)
		if err != nil {
			return nil, err
		}
		stored[i] = StoredHolderBinding{Method: binding.Method, DID: binding.DID, Key: keyJSON}
	}
	return stored, nil
}

func restoreHolderBindings(stored []StoredHolderBinding) ([]HolderBinding, error) {
	bindings := make([]HolderBinding, len(stored))
	for i, entry := range stored {
		key, err := jwk.ParseKey(entry.Key)
		if err != nil {
			return nil, err
		}
		bindings[i] = HolderBinding{Method: entry.Method, DID: entry.DID, Key: key}
	}
	return bindings, nil
}

// CredentialMapperInput is handed to the credential signer callback.
type CredentialMapperInput struct {
	Session         IssuanceSession
	ConfigurationID string
	Configuration   openid4vc.CredentialConfiguration
	HolderBindings  []HolderBinding
}

// CredentialMapperResult is the signer callback's output. Either Pending is set,
// or Credentials holds exactly one signed credential per holder binding in the
// declared format.
type CredentialMapperResult struct {
	Format      string
	Credentials []interface{}
	// Pending defers issuance: the response carries a transaction id instead of credentials.
	Pending bool
}

// CredentialMapper signs the credentials for a verified credential request.
// It is caller-supplied business logic, opaque to this package.
type CredentialMapper func(ctx context.Context, input CredentialMapperInput) (*CredentialMapperResult, error)

// Listener is notified of every session state change.
type Listener func(session IssuanceSession, previousState State)
