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

// Package openid4vc contains the protocol types shared by the OpenID4VCI issuer,
// the client and the HTTP API.
package openid4vc

import (
	"encoding/json"
	"net/url"
)

const (
	// PreAuthorizedCodeGrantType is the grant type URN for the pre-authorized code flow.
	PreAuthorizedCodeGrantType = "urn:ietf:params:oauth:grant-type:pre-authorized_code"
	// AuthorizationCodeGrantType is the grant type for the authorization code flow.
	AuthorizationCodeGrantType = "authorization_code"
)

const (
	// ProofTypeJWT identifies a JWT holder binding proof in a credential request.
	ProofTypeJWT = "jwt"
	// ProofTypeAttestation identifies a key attestation proof in a credential request.
	ProofTypeAttestation = "attestation"
	// ProofJWTType is the required typ header of a JWT holder binding proof.
	ProofJWTType = "openid4vci-proof+jwt"
	// KeyAttestationJWTType is the required typ header of a key attestation JWT.
	KeyAttestationJWTType = "keyattestation+jwt"
)

const (
	// VerifiableCredentialJWTFormat is the format identifier of a JWT-encoded W3C Verifiable Credential.
	VerifiableCredentialJWTFormat = "jwt_vc_json"
	// VerifiableCredentialJSONLDFormat is the format identifier of a JSON-LD W3C Verifiable Credential.
	VerifiableCredentialJSONLDFormat = "ldp_vc"
	// SDJWTVCFormat is the format identifier of an IETF SD-JWT Verifiable Credential.
	SDJWTVCFormat = "vc+sd-jwt"
	// SDJWTDCFormat is the newer format identifier of an IETF SD-JWT Verifiable Credential.
	SDJWTDCFormat = "dc+sd-jwt"
	// MSOMDocFormat is the format identifier of an ISO 18013-5 mdoc credential.
	MSOMDocFormat = "mso_mdoc"
)

const (
	// CredentialOfferPath is the path on which credential offers are retrievable by reference.
	CredentialOfferPath = "openid4vci/offers"
	// CredentialEndpointPath is the path of the credential endpoint, relative to the issuer identifier.
	CredentialEndpointPath = "openid4vci/credential"
	// DeferredCredentialEndpointPath is the path of the deferred credential endpoint.
	DeferredCredentialEndpointPath = "openid4vci/deferred_credential"
	// TokenEndpointPath is the path of the issuer's own token endpoint.
	TokenEndpointPath = "openid4vci/token"
	// AuthorizationEndpointPath is the path of the issuer's own authorization endpoint.
	AuthorizationEndpointPath = "openid4vci/authorize"
	// WellKnownCredentialIssuerPath is the well-known path of the credential issuer metadata.
	WellKnownCredentialIssuerPath = "/.well-known/openid-credential-issuer"
	// WellKnownOAuthAuthorizationServerPath is the well-known path of the OAuth2 authorization server metadata.
	WellKnownOAuthAuthorizationServerPath = "/.well-known/oauth-authorization-server"
	// WellKnownOpenIDConfigurationPath is the well-known path of the OpenID Connect provider metadata.
	WellKnownOpenIDConfigurationPath = "/.well-known/openid-configuration"
)

// CredentialOffer is the payload sent (by value or by reference) to the wallet to initiate issuance.
type CredentialOffer struct {
	// CredentialIssuer is the URL identifying the issuer the wallet should interact with.
	CredentialIssuer string `json:"credential_issuer"`
	// CredentialConfigurationIDs references entries in the issuer metadata's
	// credential_configurations_supported map that are offered for issuance.
	CredentialConfigurationIDs []string `json:"credential_configuration_ids"`
	// Grants holds the grants the wallet may use to obtain an access token.
	Grants *CredentialOfferGrants `json:"grants,omitempty"`
}

// CredentialOfferGrants lists the grants in a credential offer, keyed by grant type.
type CredentialOfferGrants struct {
	PreAuthorizedCode *PreAuthorizedCodeGrant `json:"urn:ietf:params:oauth:grant-type:pre-authorized_code,omitempty"`
	AuthorizationCode *AuthorizationCodeGrant `json:"authorization_code,omitempty"`
}

// PreAuthorizedCodeGrant is the pre-authorized code grant of a credential offer.
type PreAuthorizedCodeGrant struct {
	// PreAuthorizedCode is the code the wallet exchanges for an access token.
	PreAuthorizedCode string `json:"pre-authorized_code"`
	// TxCode describes the transaction code the user must enter, if any.
	TxCode *TxCode `json:"tx_code,omitempty"`
	// AuthorizationServer optionally pins the authorization server to use for this grant.
	AuthorizationServer string `json:"authorization_server,omitempty"`
}

// AuthorizationCodeGrant is the authorization code grant of a credential offer.
type AuthorizationCodeGrant struct {
	// IssuerState correlates the authorization request with the issuance session.
	IssuerState string `json:"issuer_state,omitempty"`
	// AuthorizationServer optionally pins the authorization server to use for this grant.
	AuthorizationServer string `json:"authorization_server,omitempty"`
}

// TxCode describes the out-of-band transaction code the wallet must collect from the user.
type TxCode struct {
	InputMode   string `json:"input_mode,omitempty"`
	Length      int    `json:"length,omitempty"`
	Description string `json:"description,omitempty"`
}

// CredentialOfferURI renders the offer-by-reference URI (openid-credential-offer://?credential_offer_uri=...)
// pointing at the given hosted offer URL.
func CredentialOfferURI(offerURL string) string {
	return "openid-credential-offer://?credential_offer_uri=" + url.QueryEscape(offerURL)
}

// TokenResponse is the OAuth2 token endpoint response, extended with OpenID4VCI fields.
type TokenResponse struct {
	AccessToken     string  `json:"access_token"`
	TokenType       string  `json:"token_type"`
	ExpiresIn       *int    `json:"expires_in,omitempty"`
	Scope           *string `json:"scope,omitempty"`
	CNonce          *string `json:"c_nonce,omitempty"`
	CNonceExpiresIn *int    `json:"c_nonce_expires_in,omitempty"`
}

const (
	// BearerTokenType is the token_type of a bearer access token.
	BearerTokenType = "Bearer"
	// DPoPTokenType is the token_type of a DPoP-bound access token.
	DPoPTokenType = "DPoP"
)

// CredentialRequest is the request body of the credential endpoint.
type CredentialRequest struct {
	// CredentialConfigurationID references an entry in the issuer metadata. Mutually
	// exclusive with Format.
	CredentialConfigurationID string `json:"credential_configuration_id,omitempty"`
	// Format identifies the requested credential format for format-based requests.
	Format string `json:"format,omitempty"`
	// CredentialDefinition further constrains format-based jwt_vc_json/ldp_vc requests.
	CredentialDefinition map[string]interface{} `json:"credential_definition,omitempty"`
	// Vct further constrains format-based SD-JWT VC requests.
	Vct string `json:"vct,omitempty"`
	// Doctype further constrains format-based mso_mdoc requests.
	Doctype string `json:"doctype,omitempty"`
	// Proof is a single holder binding proof.
	Proof *CredentialRequestProof `json:"proof,omitempty"`
	// Proofs holds multiple holder binding proofs of a single type for batch issuance.
	Proofs *CredentialRequestProofs `json:"proofs,omitempty"`
}

// CredentialRequestProof is a single holder binding proof in a credential request.
type CredentialRequestProof struct {
	ProofType   string `json:"proof_type"`
	JWT         string `json:"jwt,omitempty"`
	Attestation string `json:"attestation,omitempty"`
}

// CredentialRequestProofs holds the proofs of a batch credential request, keyed by proof type.
// At most one of the fields may be non-empty.
type CredentialRequestProofs struct {
	JWT         []string `json:"jwt,omitempty"`
	Attestation []string `json:"attestation,omitempty"`
}

// CredentialResponse is the response body of the credential and deferred credential endpoints.
type CredentialResponse struct {
	// Credentials holds the issued credentials. Empty for deferred issuance.
	Credentials []CredentialResponseEntry `json:"credentials,omitempty"`
	// TransactionID identifies a deferred issuance transaction. Mutually exclusive with Credentials.
	TransactionID string `json:"transaction_id,omitempty"`
	// CNonce is a fresh nonce for subsequent proofs.
	CNonce *string `json:"c_nonce,omitempty"`
	// CNonceExpiresIn is the validity of CNonce in seconds.
	CNonceExpiresIn *int `json:"c_nonce_expires_in,omitempty"`
	// NotificationID identifies the issuance towards the notification endpoint.
	NotificationID string `json:"notification_id,omitempty"`
}

// CredentialResponseEntry wraps a single issued credential.
// The credential is a JWT/SD-JWT compact serialization (string) or a JSON object,
// depending on the format.
type CredentialResponseEntry struct {
	Credential interface{} `json:"credential"`
}

// DeferredCredentialRequest is the request body of the deferred credential endpoint.
type DeferredCredentialRequest struct {
	TransactionID string `json:"transaction_id"`
}

// TokenIntrospectionResponse is the RFC7662 introspection response of an external
// authorization server, extended with the claims this issuer relies on.
type TokenIntrospectionResponse struct {
	Active bool    `json:"active"`
	Scope  *string `json:"scope,omitempty"`
	Sub    *string `json:"sub,omitempty"`
	// Cnf carries the confirmation claim for DPoP-bound tokens.
	Cnf *Cnf `json:"cnf,omitempty"`
	// IssuerState and PreAuthorizedCode correlate the token with an issuance session.
	IssuerState       *string `json:"issuer_state,omitempty"`
	PreAuthorizedCode *string `json:"pre-authorized_code,omitempty"`
	// AdditionalFields catches all other claims returned by the authorization server.
	AdditionalFields map[string]interface{} `json:"-"`
}

// Cnf is the RFC7800 confirmation claim.
type Cnf struct {
	// Jkt is the RFC7638 thumbprint of the DPoP proving key.
	Jkt string `json:"jkt"`
}

// UnmarshalJSON parses the known fields and collects the remainder in AdditionalFields.
func (t *TokenIntrospectionResponse) UnmarshalJSON(data []byte) error {
	type alias TokenIntrospectionResponse
	var parsed alias
	if err := json.Unmarshal(data, &parsed); err != nil {
		return err
	}
	*t = TokenIntrospectionResponse(parsed)
	if err := json.Unmarshal(data, &t.AdditionalFields); err != nil {
		return err
	}
	for _, known := range []string{"active", "scope", "sub", "cnf", "issuer_state", "pre-authorized_code"} {
		delete(t.AdditionalFields, known)
	}
	return nil
}
