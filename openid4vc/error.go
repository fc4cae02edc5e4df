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

// ErrorCode specifies error codes as defined by OAuth2 and the OpenID4VCI specification.
type ErrorCode string

const (
	// InvalidRequest is returned when the request is missing a required parameter,
	// includes an unsupported parameter value, or is otherwise malformed.
	InvalidRequest ErrorCode = "invalid_request"
	// InvalidClient is returned when client authentication failed, e.g. a missing or
	// invalid wallet attestation.
	InvalidClient ErrorCode = "invalid_client"
	// InvalidGrant is returned when the provided grant (pre-authorized code,
	// authorization code or tx_code) is invalid, expired or already used.
	InvalidGrant ErrorCode = "invalid_grant"
	// InvalidToken is returned when the credential request contains a wrong or expired
	// access token, or the access token is missing.
	InvalidToken ErrorCode = "invalid_token"
	// InsufficientScope is returned when the access token's granted scope does not
	// cover the requested credential configuration.
	InsufficientScope ErrorCode = "insufficient_scope"
	// UnsupportedGrantType is returned when the requested grant type is not supported.
	UnsupportedGrantType ErrorCode = "unsupported_grant_type"
	// ServerError is returned when an unexpected condition prevents fulfilling the request.
	ServerError ErrorCode = "server_error"
	// UnsupportedCredentialType is returned when the issuer does not support the
	// requested credential type.
	UnsupportedCredentialType ErrorCode = "unsupported_credential_type"
	// UnsupportedCredentialFormat is returned when the issuer does not support the
	// requested credential format.
	UnsupportedCredentialFormat ErrorCode = "unsupported_credential_format"
	// InvalidProof is returned when the credential request did not contain a holder
	// binding proof, or the proof was invalid or not bound to a server-issued cNonce.
	InvalidProof ErrorCode = "invalid_proof"
	// InvalidNonce is returned when the proof nonce is unknown or expired.
	InvalidNonce ErrorCode = "invalid_nonce"
	// InvalidDPoPProof is returned when a DPoP proof is required but missing or invalid.
	InvalidDPoPProof ErrorCode = "invalid_dpop_proof"
	// CredentialRequestDenied is returned when the issuer refuses to issue the
	// requested credential, e.g. because the session expired.
	CredentialRequestDenied ErrorCode = "credential_request_denied"
	// InvalidTransactionID is returned when a deferred credential request refers to an
	// unknown transaction.
	InvalidTransactionID ErrorCode = "invalid_transaction_id"
	// IssuancePending is returned when a deferred credential is not available yet.
	IssuancePending ErrorCode = "issuance_pending"
)

// Error is a structured protocol error as specified by OAuth2 and OpenID4VCI.
// It signals the error was (probably) caused by the client, or that the client can
// recover from it. It is returned as a value, handler chains must not panic on it.
type Error struct {
	// Code is the error code to return to the client.
	Code ErrorCode `json:"error"`
	// Description is the human-readable error_description returned to the client.
	Description string `json:"error_description,omitempty"`
	// CNonce optionally carries a fresh cNonce for the client to retry a proof with.
	CNonce *string `json:"c_nonce,omitempty"`
	// CNonceExpiresIn is the validity of CNonce in seconds.
	CNonceExpiresIn *int `json:"c_nonce_expires_in,omitempty"`
	// Err is the underlying error. It is not returned to the client.
	Err error `json:"-"`
	// StatusCode is the HTTP status code that should be returned to the client.
	StatusCode int `json:"-"`
}

// Error returns the error message, which is either the underlying error or the code if there is no underlying error.
func (e Error) Error() string {
	if e.Err == nil {
		return string(e.Code)
	}
	return string(e.Code) + " - " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e Error) Unwrap() error {
	return e.Err
}
