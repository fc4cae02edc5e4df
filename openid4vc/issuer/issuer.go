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

// Package issuer implements the OpenID4VCI credential issuer: stateful credential
// offers, the issuance session state machine, access token handling and the
// credential response pipeline.
package issuer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/idx-network/idx-node/core"
	"github.com/idx-network/idx-node/crypto"
	"github.com/idx-network/idx-node/crypto/dpop"
	"github.com/idx-network/idx-node/crypto/hash"
	"github.com/idx-network/idx-node/openid4vc"
	"github.com/idx-network/idx-node/openid4vc/log"
	"github.com/idx-network/idx-node/storage"
)

// expiredErrorMessage is recorded on sessions whose offer expired before completion.
const expiredErrorMessage = "Credential offer has expired"

const (
	defaultStatefulOfferTTL = 10 * time.Minute
	defaultAccessTokenTTL   = 5 * time.Minute
	defaultCNonceTTL        = 5 * time.Minute
	authorizationCodeTTL    = 5 * time.Minute
)

// Claim names of issuer-minted access tokens.
const (
	preAuthorizedCodeClaim = "pre-authorized_code"
	issuerStateClaim       = "issuer_state"
	scopeClaim             = "scope"
	cnfClaim               = "cnf"
)

// accessTokenType is the typ header of issuer-minted access tokens, as specified by RFC9068.
const accessTokenType = "at+jwt"

// Config configures one credential issuer identity.
type Config struct {
	// IssuerURL is the issuer identifier, an absolute URL without query or fragment.
	IssuerURL string
	// AccessTokenKID references the key access tokens are signed with.
	AccessTokenKID string
	// CredentialConfigurationsSupported maps configuration ids to issuable credentials.
	CredentialConfigurationsSupported map[string]openid4vc.CredentialConfiguration
	// AuthorizationServers lists external authorization servers whose tokens are accepted.
	AuthorizationServers []AuthorizationServerConfig
	// DPoPRequired requires every access token to be DPoP-bound.
	DPoPRequired bool
	// WalletAttestationRequired requires client attestation at the token endpoint.
	WalletAttestationRequired bool
	// BatchCredentialIssuance advertises and bounds multi-proof credential requests.
	BatchCredentialIssuance *openid4vc.BatchCredentialIssuance
	// StatefulOfferTTL bounds the lifetime of an issuance session.
	StatefulOfferTTL time.Duration
	AccessTokenTTL   time.Duration
	CNonceTTL        time.Duration
}

// AuthorizationServerConfig holds the coordinates of one external authorization server.
type AuthorizationServerConfig struct {
	// Issuer is the authorization server's issuer identifier.
	Issuer string
	// ClientID and ClientSecret authenticate introspection calls.
	ClientID     string
	ClientSecret string
}

// ASClient is the part of the authorization server client the issuer consumes.
type ASClient interface {
	Metadata(ctx context.Context, issuer string) (*openid4vc.AuthorizationServerMetadata, error)
	IntrospectToken(ctx context.Context, introspectionEndpoint string, clientID string, clientSecret string, token string) (*openid4vc.TokenIntrospectionResponse, error)
	FetchKeySet(ctx context.Context, jwksURI string) (jwk.Set, error)
}

// Issuer drives issuance sessions from credential offer to completion.
type Issuer struct {
	config   Config
	store    Store
	keyStore crypto.KeyStore
	asClient ASClient
	mapper   CredentialMapper
	// nonces holds issued cNonces, usedDPoPJTIs the DPoP proof ids already seen.
	nonces       storage.SessionStore
	usedDPoPJTIs storage.SessionStore

	listenersMux sync.RWMutex
	listeners    []Listener
}

// New creates an Issuer. The mapper performs the actual credential signing and is
// treated as opaque business logic.
func New(config Config, store Store, keyStore crypto.KeyStore, sessions storage.SessionDatabase, asClient ASClient, mapper CredentialMapper) (*Issuer, error) {
	if _, err := core.ParseIssuerURL(config.IssuerURL); err != nil {
		return nil, fmt.Errorf("invalid issuer URL: %w", err)
	}
	if config.AccessTokenKID == "" {
		return nil, errors.New("access token key reference is required")
	}
	if len(config.CredentialConfigurationsSupported) == 0 {
		return nil, errors.New("at least one supported credential configuration is required")
	}
	if config.StatefulOfferTTL == 0 {
		config.StatefulOfferTTL = defaultStatefulOfferTTL
	}
	if config.AccessTokenTTL == 0 {
		config.AccessTokenTTL = defaultAccessTokenTTL
	}
	if config.CNonceTTL == 0 {
		config.CNonceTTL = defaultCNonceTTL
	}
	return &Issuer{
		config:       config,
		store:        store,
		keyStore:     keyStore,
		asClient:     asClient,
		mapper:       mapper,
		nonces:       sessions.GetStore(config.CNonceTTL, "openid4vc", "cnonce"),
		usedDPoPJTIs: sessions.GetStore(config.AccessTokenTTL, "openid4vc", "dpopjti"),
	}, nil
}

// OnSessionStateChange registers a listener notified of every session state change.
func (i *Issuer) OnSessionStateChange(listener Listener) {
	i.listenersMux.Lock()
	defer i.listenersMux.Unlock()
	i.listeners = append(i.listeners, listener)
}

func (i *Issuer) emit(session IssuanceSession, previousState State) {
	i.listenersMux.RLock()
	defer i.listenersMux.RUnlock()
	for _, listener := range i.listeners {
		listener(session, previousState)
	}
}

// OfferGrants selects the grants of a credential offer.
type OfferGrants struct {
	// PreAuthorizedCode includes the pre-authorized code grant.
	PreAuthorizedCode bool
	// TxCode describes the transaction code the user must present, TxCodeValue is
	// the expected value. Only valid with the pre-authorized code grant.
	TxCode      *openid4vc.TxCode
	TxCodeValue string
	// AuthorizationCode includes the authorization code grant.
	AuthorizationCode bool
	// IssuanceMetadata is opaque data recorded on the session and handed to the
	// credential mapper with every signing request.
	IssuanceMetadata map[string]interface{}
}

// CreateCredentialOffer creates a stateful credential offer for the given
// configuration ids and persists a new issuance session. It returns the session
// and the openid-credential-offer:// URI referencing the hosted offer.
func (i *Issuer) CreateCredentialOffer(ctx context.Context, configurationIDs []string, grants OfferGrants) (*IssuanceSession, string, error) {
	if len(configurationIDs) == 0 {
		return nil, "", errors.New("a credential offer requires at least one credential configuration id")
	}
	seen := map[string]bool{}
	for _, id := range configurationIDs {
		if seen[id] {
			return nil, "", fmt.Errorf("duplicate credential configuration id: %s", id)
		}
		seen[id] = true
		configuration, exists := i.config.CredentialConfigurationsSupported[id]
		if !exists {
			return nil, "", fmt.Errorf("unknown credential configuration id: %s", id)
		}
		if grants.AuthorizationCode && configuration.Scope == "" {
			// without a scope the granted token can never authorize issuance
			return nil, "", fmt.Errorf("credential configuration %s has no scope, it cannot be offered through the authorization code flow", id)
		}
	}
	if !grants.PreAuthorizedCode && !grants.AuthorizationCode {
		return nil, "", errors.New("a credential offer requires at least one grant")
	}

	now := time.Now()
	session := IssuanceSession{
		ID:       uuid.NewString(),
		IssuerID: i.config.IssuerURL,
		State:    StateOfferCreated,
		CredentialOffer: openid4vc.CredentialOffer{
			CredentialIssuer:           i.config.IssuerURL,
			CredentialConfigurationIDs: configurationIDs,
			Grants:                     &openid4vc.CredentialOfferGrants{},
		},
		CredentialOfferID:         uuid.NewString(),
		WalletAttestationRequired: i.config.WalletAttestationRequired,
		IssuanceMetadata:          grants.IssuanceMetadata,
		CreatedAt:                 now,
		ExpiresAt:                 now.Add(i.config.StatefulOfferTTL),
	}
	if grants.PreAuthorizedCode {
		session.PreAuthorizedCode = crypto.GenerateNonce()
		session.TxCode = grants.TxCodeValue
		session.CredentialOffer.Grants.PreAuthorizedCode = &openid4vc.PreAuthorizedCodeGrant{
			PreAuthorizedCode: session.PreAuthorizedCode,
			TxCode:            grants.TxCode,
		}
	}
	if grants.AuthorizationCode {
		session.Authorization = &Authorization{IssuerState: crypto.GenerateNonce()}
		session.CredentialOffer.Grants.AuthorizationCode = &openid4vc.AuthorizationCodeGrant{
			IssuerState: session.Authorization.IssuerState,
		}
	}

	if err := i.store.Save(ctx, session); err != nil {
		return nil, "", err
	}
	if err := i.store.StoreReference(ctx, session.ID, refTypeOfferID, session.CredentialOfferID, session.ExpiresAt); err != nil {
		return nil, "", err
	}
	if session.PreAuthorizedCode != "" {
		if err := i.store.StoreReference(ctx, session.ID, refTypePreAuthorizedCode, session.PreAuthorizedCode, session.ExpiresAt); err != nil {
			return nil, "", err
		}
	}
	if session.Authorization != nil {
		if err := i.store.StoreReference(ctx, session.ID, refTypeIssuerState, session.Authorization.IssuerState, session.ExpiresAt); err != nil {
			return nil, "", err
		}
	}
	i.emit(session, "")

	offerURL := core.JoinURLPaths(i.config.IssuerURL, openid4vc.CredentialOfferPath, session.CredentialOfferID)
	return &session, openid4vc.CredentialOfferURI(offerURL), nil
}

// CreateStatelessCredentialOffer creates a credential offer without an issuance
// session. This is only possible when an external authorization server authorizes
// the issuance, the issuer's own token endpoint requires a session.
func (i *Issuer) CreateStatelessCredentialOffer(configurationIDs []string, authorizationServer string) (*openid4vc.CredentialOffer, error) {
	if len(configurationIDs) == 0 {
		return nil, errors.New("a credential offer requires at least one credential configuration id")
	}
	external := false
	for _, server := range i.config.AuthorizationServers {
		if server.Issuer == authorizationServer {
			external = true
			break
		}
	}
	if !external {
		return nil, errors.New("stateless credential offers require an external authorization server")
	}
	for _, id := range configurationIDs {
		configuration, exists := i.config.CredentialConfigurationsSupported[id]
		if !exists {
			return nil, fmt.Errorf("unknown credential configuration id: %s", id)
		}
		if configuration.Scope == "" {
			return nil, fmt.Errorf("credential configuration %s has no scope, it cannot be offered through the authorization code flow", id)
		}
	}
	return &openid4vc.CredentialOffer{
		CredentialIssuer:           i.config.IssuerURL,
		CredentialConfigurationIDs: configurationIDs,
		Grants: &openid4vc.CredentialOfferGrants{
			AuthorizationCode: &openid4vc.AuthorizationCodeGrant{AuthorizationServer: authorizationServer},
		},
	}, nil
}

// GetCredentialOffer returns the hosted credential offer payload. The first
// retrieval advances the session to OfferUriRetrieved, repeated retrievals are
// idempotent.
func (i *Issuer) GetCredentialOffer(ctx context.Context, offerID string) (*openid4vc.CredentialOffer, error) {
	session, err := i.store.FindByReference(ctx, refTypeOfferID, offerID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, openid4vc.Error{Code: openid4vc.InvalidRequest, Description: "unknown credential offer", StatusCode: http.StatusNotFound}
	}
	if session.Expired() {
		i.expireSession(ctx, session)
		return nil, openid4vc.Error{Code: openid4vc.InvalidRequest, Description: expiredErrorMessage, StatusCode: http.StatusNotFound}
	}
	if session.State == StateOfferCreated {
		previous := session.State
		if err := session.transition(StateOfferURIRetrieved); err != nil {
			return nil, err
		}
		if err := i.store.Update(ctx, *session); err != nil {
			return nil, err
		}
		i.emit(*session, previous)
	}
	return &session.CredentialOffer, nil
}

// expireSession transitions a session to its terminal error state with the
// expiry message recorded.
func (i *Issuer) expireSession(ctx context.Context, session *IssuanceSession) {
	if session.State.Terminal() {
		return
	}
	previous := session.State
	_ = session.transition(StateError)
	session.ErrorMessage = expiredErrorMessage
	if err := i.store.Update(ctx, *session); err != nil {
		log.Logger().WithError(err).Errorf("Failed to persist expiry of issuance session %s", session.ID)
		return
	}
	i.emit(*session, previous)
}

// failSession transitions a session to its terminal error state with the given message.
func (i *Issuer) failSession(ctx context.Context, session *IssuanceSession, message string) {
	if session.State.Terminal() {
		return
	}
	previous := session.State
	_ = session.transition(StateError)
	session.ErrorMessage = message
	if err := i.store.Update(ctx, *session); err != nil {
		log.Logger().WithError(err).Errorf("Failed to persist error state of issuance session %s", session.ID)
		return
	}
	i.emit(*session, previous)
}

// InitiateAuthorization records an authorization request referencing the session
// through its issuer_state: the requesting client, its PKCE challenge and the
// requested scopes.
func (i *Issuer) InitiateAuthorization(ctx context.Context, issuerState string, clientID string, pkce *PKCEParams, scopes []string) error {
	session, err := i.store.FindByReference(ctx, refTypeIssuerState, issuerState)
	if err != nil {
		return err
	}
	if session == nil {
		return openid4vc.Error{Code: openid4vc.InvalidRequest, Description: "unknown issuer_state", StatusCode: http.StatusBadRequest}
	}
	if session.Expired() {
		i.expireSession(ctx, session)
		return openid4vc.Error{Code: openid4vc.InvalidGrant, Description: expiredErrorMessage, StatusCode: http.StatusBadRequest}
	}
	previous := session.State
	if err := session.transition(StateAuthorizationInitiated); err != nil {
		return openid4vc.Error{Code: openid4vc.InvalidRequest, Err: err, StatusCode: http.StatusBadRequest}
	}
	session.ClientID = clientID
	session.PKCE = pkce
	session.Authorization.Scopes = scopes
	if err := i.store.Update(ctx, *session); err != nil {
		return err
	}
	i.emit(*session, previous)
	return nil
}

// GrantAuthorization mints an authorization code after the user authorized the
// request, binding the session to the authenticated subject.
func (i *Issuer) GrantAuthorization(ctx context.Context, issuerState string, subject string) (string, error) {
	session, err := i.store.FindByReference(ctx, refTypeIssuerState, issuerState)
	if err != nil {
		return "", err
	}
	if session == nil {
		return "", openid4vc.Error{Code: openid4vc.InvalidRequest, Description: "unknown issuer_state", StatusCode: http.StatusBadRequest}
	}
	if session.Expired() {
		i.expireSession(ctx, session)
		return "", openid4vc.Error{Code: openid4vc.InvalidGrant, Description: expiredErrorMessage, StatusCode: http.StatusBadRequest}
	}
	previous := session.State
	if err := session.transition(StateAuthorizationGranted); err != nil {
		return "", openid4vc.Error{Code: openid4vc.InvalidRequest, Err: err, StatusCode: http.StatusBadRequest}
	}
	session.Authorization.Code = crypto.GenerateNonce()
	session.Authorization.CodeExpiresAt = time.Now().Add(authorizationCodeTTL)
	session.Authorization.Subject = subject
	if err := i.store.Update(ctx, *session); err != nil {
		return "", err
	}
	if err := i.store.StoreReference(ctx, session.ID, refTypeAuthorizationCode, session.Authorization.Code, session.Authorization.CodeExpiresAt); err != nil {
		return "", err
	}
	i.emit(*session, previous)
	return session.Authorization.Code, nil
}

// BindPresentation records that the wallet must present existing credentials
// before issuance, linking the external verification session to the issuance
// session. The presentation outcome is reported through GrantAuthorization or
// FailAuthorization.
func (i *Issuer) BindPresentation(ctx context.Context, issuerState string, presentation PresentationBinding) error {
	session, err := i.store.FindByReference(ctx, refTypeIssuerState, issuerState)
	if err != nil {
		return err
	}
	if session == nil {
		return openid4vc.Error{Code: openid4vc.InvalidRequest, Description: "unknown issuer_state", StatusCode: http.StatusBadRequest}
	}
	if session.Expired() {
		i.expireSession(ctx, session)
		return openid4vc.Error{Code: openid4vc.InvalidGrant, Description: expiredErrorMessage, StatusCode: http.StatusBadRequest}
	}
	if session.State != StateAuthorizationInitiated {
		return fmt.Errorf("issuance session %s is not awaiting authorization", session.ID)
	}
	session.Presentation = &presentation
	return i.store.Update(ctx, *session)
}

// FailAuthorization transitions the session to its error state because an
// associated authorization or presentation session failed.
func (i *Issuer) FailAuthorization(ctx context.Context, issuerState string, message string) error {
	session, err := i.store.FindByReference(ctx, refTypeIssuerState, issuerState)
	if err != nil {
		return err
	}
	if session == nil {
		return openid4vc.Error{Code: openid4vc.InvalidRequest, Description: "unknown issuer_state", StatusCode: http.StatusBadRequest}
	}
	i.failSession(ctx, session, message)
	return nil
}

// TokenRequest is the parsed body of a token endpoint request, plus the HTTP
// details needed to verify a DPoP proof.
type TokenRequest struct {
	GrantType string
	// Code is the pre-authorized code or authorization code, depending on the grant type.
	Code string
	// TxCode is the transaction code entered by the user, if any.
	TxCode string
	// CodeVerifier is the PKCE verifier of an authorization code grant.
	CodeVerifier string
	ClientID     string
	// WalletAttestation is the client attestation JWT, when provided.
	WalletAttestation string
	// DPoPHeader is the raw DPoP header, when present.
	DPoPHeader    string
	RequestMethod string
	RequestURL    string
}

// HandleTokenRequest verifies the presented grant and mints an access token.
func (i *Issuer) HandleTokenRequest(ctx context.Context, request TokenRequest) (*openid4vc.TokenResponse, error) {
	var session *IssuanceSession
	var err error
	switch request.GrantType {
	case openid4vc.PreAuthorizedCodeGrantType:
		session, err = i.store.FindByReference(ctx, refTypePreAuthorizedCode, request.Code)
	case openid4vc.AuthorizationCodeGrantType:
		session, err = i.store.FindByReference(ctx, refTypeAuthorizationCode, request.Code)
	default:
		return nil, openid4vc.Error{
			Code:        openid4vc.UnsupportedGrantType,
			Description: fmt.Sprintf("grant type %s is not supported", request.GrantType),
			StatusCode:  http.StatusBadRequest,
		}
	}
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, openid4vc.Error{Code: openid4vc.InvalidGrant, Description: "unknown grant", StatusCode: http.StatusBadRequest}
	}
	if session.Expired() {
		i.expireSession(ctx, session)
		return nil, openid4vc.Error{Code: openid4vc.InvalidGrant, Description: expiredErrorMessage, StatusCode: http.StatusBadRequest}
	}

	if request.GrantType == openid4vc.PreAuthorizedCodeGrantType {
		if session.TxCode != "" && request.TxCode != session.TxCode {
			return nil, openid4vc.Error{Code: openid4vc.InvalidGrant, Description: "invalid transaction code", StatusCode: http.StatusBadRequest}
		}
	} else {
		if session.Authorization == nil || session.Authorization.CodeExpiresAt.Before(time.Now()) {
			return nil, openid4vc.Error{Code: openid4vc.InvalidGrant, Description: "authorization code has expired", StatusCode: http.StatusBadRequest}
		}
		if err := verifyPKCE(session.PKCE, request.CodeVerifier); err != nil {
			return nil, err
		}
	}
	if session.ClientID == "" {
		session.ClientID = request.ClientID
	} else if request.ClientID != "" && request.ClientID != session.ClientID {
		return nil, openid4vc.Error{Code: openid4vc.InvalidGrant, Description: "client_id does not match the session", StatusCode: http.StatusBadRequest}
	}
	if session.WalletAttestationRequired {
		if err := verifyWalletAttestation(request.WalletAttestation, session.ClientID); err != nil {
			return nil, err
		}
	}

	// the grant is only consumed once every check, DPoP included, has passed
	binding := session.DPoP
	if binding == nil {
		binding = &DPoPBinding{Required: i.config.DPoPRequired}
	}
	if request.DPoPHeader != "" {
		proof, err := dpop.Parse(request.DPoPHeader)
		if err != nil {
			return nil, openid4vc.Error{Code: openid4vc.InvalidDPoPProof, Err: err, StatusCode: http.StatusBadRequest}
		}
		jkt := proof.Thumbprint()
		if err := proof.Match(jkt, request.RequestMethod, request.RequestURL); err != nil {
			return nil, openid4vc.Error{Code: openid4vc.InvalidDPoPProof, Description: "DPoP proof does not match the request", Err: err, StatusCode: http.StatusBadRequest}
		}
		if err := i.checkDPoPReplay(proof); err != nil {
			return nil, err
		}
		binding.JKT = jkt
	} else if binding.Required {
		return nil, openid4vc.Error{Code: openid4vc.InvalidDPoPProof, Description: "a DPoP proof is required", StatusCode: http.StatusBadRequest}
	}
	session.DPoP = binding

	previous := session.State
	if err := session.transition(StateAccessTokenRequested); err != nil {
		// a second token request for the same grant ends up here
		return nil, openid4vc.Error{Code: openid4vc.InvalidGrant, Description: "grant was already used", Err: err, StatusCode: http.StatusBadRequest}
	}
	if err := i.store.Update(ctx, *session); err != nil {
		return nil, err
	}
	i.emit(*session, previous)

	accessToken, scopes, err := i.mintAccessToken(ctx, session)
	if err != nil {
		return nil, err
	}
	cNonce, cNonceExpiresIn, err := i.freshCNonce(*session)
	if err != nil {
		return nil, err
	}

	previous = session.State
	if err := session.transition(StateAccessTokenCreated); err != nil {
		return nil, err
	}
	if err := i.store.Update(ctx, *session); err != nil {
		return nil, err
	}
	i.emit(*session, previous)

	tokenType := openid4vc.BearerTokenType
	if session.DPoP.JKT != "" {
		tokenType = openid4vc.DPoPTokenType
	}
	expiresIn := int(i.config.AccessTokenTTL.Seconds())
	response := openid4vc.TokenResponse{
		AccessToken:     accessToken,
		TokenType:       tokenType,
		ExpiresIn:       &expiresIn,
		CNonce:          &cNonce,
		CNonceExpiresIn: &cNonceExpiresIn,
	}
	if scopes != "" {
		response.Scope = &scopes
	}
	return &response, nil
}

func (i *Issuer) mintAccessToken(ctx context.Context, session *IssuanceSession) (string, string, error) {
	now := time.Now()
	subject := session.ClientID
	if session.Authorization != nil && session.Authorization.Subject != "" {
		subject = session.Authorization.Subject
	}
	if subject == "" {
		subject = session.PreAuthorizedCode
	}
	claims := map[string]interface{}{
		jwt.IssuerKey:     i.config.IssuerURL,
		jwt.AudienceKey:   i.config.IssuerURL,
		jwt.SubjectKey:    subject,
		jwt.IssuedAtKey:   now,
		jwt.ExpirationKey: now.Add(i.config.AccessTokenTTL),
		jwt.JwtIDKey:      uuid.NewString(),
	}
	var scopes string
	if session.PreAuthorizedCode != "" {
		claims[preAuthorizedCodeClaim] = session.PreAuthorizedCode
	} else if session.Authorization != nil {
		claims[issuerStateClaim] = session.Authorization.IssuerState
		scopes = strings.Join(session.Authorization.Scopes, " ")
		claims[scopeClaim] = scopes
	}
	if session.DPoP != nil && session.DPoP.JKT != "" {
		claims[cnfClaim] = map[string]interface{}{"jkt": session.DPoP.JKT}
	}
	token, err := i.keyStore.SignJWT(ctx, claims, map[string]interface{}{"typ": accessTokenType}, i.config.AccessTokenKID)
	if err != nil {
		return "", "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return token, scopes, nil
}

// freshCNonce issues a new cNonce bound to the session for use in holder binding proofs.
func (i *Issuer) freshCNonce(session IssuanceSession) (string, int, error) {
	cNonce := crypto.GenerateNonce()
	if err := i.nonces.Put(cNonce, session.ID); err != nil {
		return "", 0, err
	}
	return cNonce, int(i.config.CNonceTTL.Seconds()), nil
}

func (i *Issuer) checkDPoPReplay(proof *dpop.Proof) error {
	jti := proof.Token.JwtID()
	if i.usedDPoPJTIs.Exists(jti) {
		return openid4vc.Error{Code: openid4vc.InvalidDPoPProof, Description: "DPoP proof was replayed", StatusCode: http.StatusBadRequest}
	}
	return i.usedDPoPJTIs.Put(jti, true)
}

func verifyPKCE(params *PKCEParams, codeVerifier string) error {
	if params == nil {
		return nil
	}
	if params.CodeChallengeMethod != "S256" {
		return openid4vc.Error{Code: openid4vc.InvalidGrant, Description: "unsupported code_challenge_method", StatusCode: http.StatusBadRequest}
	}
	if hash.SHA256Sum([]byte(codeVerifier)).Base64URL() != params.CodeChallenge {
		return openid4vc.Error{Code: openid4vc.InvalidGrant, Description: "PKCE code verifier does not match the challenge", StatusCode: http.StatusBadRequest}
	}
	return nil
}

// verifyWalletAttestation performs the syntactic checks on a client attestation:
// it must be a JWT issued to the requesting client carrying a key confirmation.
// Trust evaluation of the attestation issuer is the deployment's responsibility.
func verifyWalletAttestation(attestation string, clientID string) error {
	if attestation == "" {
		return openid4vc.Error{Code: openid4vc.InvalidClient, Description: "a wallet attestation is required", StatusCode: http.StatusBadRequest}
	}
	token, err := jwt.ParseInsecure([]byte(attestation))
	if err != nil {
		return openid4vc.Error{Code: openid4vc.InvalidClient, Description: "invalid wallet attestation", Err: err, StatusCode: http.StatusBadRequest}
	}
	if clientID != "" && token.Subject() != clientID {
		return openid4vc.Error{Code: openid4vc.InvalidClient, Description: "wallet attestation subject does not match client_id", StatusCode: http.StatusBadRequest}
	}
	if _, hasCnf := token.Get(cnfClaim); !hasCnf {
		return openid4vc.Error{Code: openid4vc.InvalidClient, Description: "wallet attestation is missing the cnf claim", StatusCode: http.StatusBadRequest}
	}
	return nil
}
