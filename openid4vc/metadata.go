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

package openid4vc

// CredentialIssuerMetadata is the metadata document of a credential issuer,
// served on /.well-known/openid-credential-issuer.
type CredentialIssuerMetadata struct {
	// CredentialIssuer is the issuer identifier, a URL without query or fragment.
	CredentialIssuer string `json:"credential_issuer"`
	// AuthorizationServers lists the authorization servers that can issue access
	// tokens for this issuer. When absent, the issuer is its own authorization server.
	AuthorizationServers []string `json:"authorization_servers,omitempty"`
	// CredentialEndpoint is the URL of the credential endpoint.
	CredentialEndpoint string `json:"credential_endpoint"`
	// DeferredCredentialEndpoint is the URL of the deferred credential endpoint, if supported.
	DeferredCredentialEndpoint string `json:"deferred_credential_endpoint,omitempty"`
	// BatchCredentialIssuance advertises support for multiple proofs per credential request.
	BatchCredentialIssuance *BatchCredentialIssuance `json:"batch_credential_issuance,omitempty"`
	// CredentialConfigurationsSupported maps credential configuration IDs to the
	// credentials this issuer can issue.
	CredentialConfigurationsSupported map[string]CredentialConfiguration `json:"credential_configurations_supported"`
	// Display holds display properties of the issuer (name, logo) per locale.
	Display []map[string]interface{} `json:"display,omitempty"`
}

// BatchCredentialIssuance advertises batch issuance support in the issuer metadata.
type BatchCredentialIssuance struct {
	BatchSize int `json:"batch_size"`
}

// CredentialConfiguration describes a single issuable credential in the issuer metadata.
type CredentialConfiguration struct {
	// Format is the credential format identifier, e.g. vc+sd-jwt.
	Format string `json:"format"`
	// Scope is the OAuth2 scope that authorizes issuance of this credential.
	Scope string `json:"scope,omitempty"`
	// CryptographicBindingMethodsSupported lists supported holder binding methods (jwk, did:...).
	CryptographicBindingMethodsSupported []string `json:"cryptographic_binding_methods_supported,omitempty"`
	// CredentialSigningAlgValuesSupported lists the algorithms the issuer signs credentials with.
	CredentialSigningAlgValuesSupported []string `json:"credential_signing_alg_values_supported,omitempty"`
	// ProofTypesSupported maps proof types (jwt, attestation) to their requirements.
	ProofTypesSupported map[string]ProofTypeMetadata `json:"proof_types_supported,omitempty"`
	// Vct is the credential type of an SD-JWT VC configuration.
	Vct string `json:"vct,omitempty"`
	// Doctype is the document type of an mso_mdoc configuration.
	Doctype string `json:"doctype,omitempty"`
	// CredentialDefinition describes a W3C VC configuration (jwt_vc_json, ldp_vc).
	CredentialDefinition map[string]interface{} `json:"credential_definition,omitempty"`
	// Display holds display properties of the credential per locale.
	Display []map[string]interface{} `json:"display,omitempty"`
}

// ProofTypeMetadata describes the requirements for one proof type of a credential configuration.
type ProofTypeMetadata struct {
	// ProofSigningAlgValuesSupported lists the accepted proof signing algorithms.
	ProofSigningAlgValuesSupported []string `json:"proof_signing_alg_values_supported,omitempty"`
	// KeyAttestationsRequired, when present, requires proofs to carry a key attestation.
	KeyAttestationsRequired *KeyAttestationsRequired `json:"key_attestations_required,omitempty"`
}

// KeyAttestationsRequired constrains the attack potential resistance of attested keys.
type KeyAttestationsRequired struct {
	KeyStorage         []string `json:"key_storage,omitempty"`
	UserAuthentication []string `json:"user_authentication,omitempty"`
}

// AuthorizationServerMetadata is the RFC8414 authorization server metadata document,
// limited to the fields this node reads and serves.
type AuthorizationServerMetadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint,omitempty"`
	TokenEndpoint                     string   `json:"token_endpoint,omitempty"`
	IntrospectionEndpoint             string   `json:"introspection_endpoint,omitempty"`
	JwksURI                           string   `json:"jwks_uri,omitempty"`
	GrantTypesSupported               []string `json:"grant_types_supported,omitempty"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported,omitempty"`
	DPoPSigningAlgValuesSupported     []string `json:"dpop_signing_alg_values_supported,omitempty"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported,omitempty"`
	// PreAuthorizedGrantAnonymousAccessSupported indicates the token endpoint accepts
	// pre-authorized code grants without client authentication.
	PreAuthorizedGrantAnonymousAccessSupported bool `json:"pre-authorized_grant_anonymous_access_supported,omitempty"`
}
