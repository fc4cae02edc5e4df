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
	stdcrypto "crypto"
	"net/http"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/idx-network/idx-node/crypto"
	"github.com/idx-network/idx-node/crypto/dpop"
	"github.com/idx-network/idx-node/openid4vc"
	"github.com/idx-network/idx-node/openid4vc/log"
)

// ResourceRequest is an inbound request to a token-protected issuer endpoint.
type ResourceRequest struct {
	// AuthorizationHeader is the raw Authorization header.
	AuthorizationHeader string
	// DPoPHeader is the raw DPoP header, when present.
	DPoPHeader string
	Method     string
	URL        string
}

// RequestContext is the verified authorization context of a resource request.
type RequestContext struct {
	Session *IssuanceSession
	// Subject is the authenticated subject of the access token.
	Subject string
	// Scopes are the granted scopes, empty for pre-authorized code flows.
	Scopes []string
	// DPoPJKT is the thumbprint of the DPoP key the token is bound to, if any.
	DPoPJKT string
	// External is true when the token was issued by an external authorization server.
	External bool
}

// accessTokenClaims is the issuance-relevant subset of a verified access token,
// regardless of whether it was a JWT or resolved through introspection.
type accessTokenClaims struct {
	subject           string
	scopes            []string
	preAuthorizedCode string
	issuerState       string
	jkt               string
	external          bool
}

// AuthorizeResourceRequest verifies the access token (and DPoP proof, when bound)
// of a resource request and resolves the issuance session it belongs to.
func (i *Issuer) AuthorizeResourceRequest(ctx context.Context, request ResourceRequest) (*RequestContext, error) {
	scheme, token, found := strings.Cut(request.AuthorizationHeader, " ")
	if !found || token == "" {
		return nil, openid4vc.Error{Code: openid4vc.InvalidToken, Description: "missing access token", StatusCode: http.StatusUnauthorized}
	}
	if !strings.EqualFold(scheme, openid4vc.BearerTokenType) && !strings.EqualFold(scheme, openid4vc.DPoPTokenType) {
		return nil, openid4vc.Error{Code: openid4vc.InvalidToken, Description: "unsupported authorization scheme", StatusCode: http.StatusUnauthorized}
	}

	claims, err := i.verifyAccessToken(ctx, scheme, token, request)
	if err != nil {
		return nil, err
	}

	if claims.jkt != "" {
		if !strings.EqualFold(scheme, openid4vc.DPoPTokenType) || request.DPoPHeader == "" {
			return nil, openid4vc.Error{Code: openid4vc.InvalidToken, Description: "access token is DPoP-bound", StatusCode: http.StatusUnauthorized}
		}
		proof, err := dpop.Parse(request.DPoPHeader)
		if err != nil {
			return nil, openid4vc.Error{Code: openid4vc.InvalidDPoPProof, Err: err, StatusCode: http.StatusUnauthorized}
		}
		if err := proof.MatchesAccessToken(token); err != nil {
			return nil, openid4vc.Error{Code: openid4vc.InvalidDPoPProof, Err: err, StatusCode: http.StatusUnauthorized}
		}
		if err := proof.Match(claims.jkt, request.Method, request.URL); err != nil {
			return nil, openid4vc.Error{Code: openid4vc.InvalidDPoPProof, Err: err, StatusCode: http.StatusUnauthorized}
		}
		if err := i.checkDPoPReplay(proof); err != nil {
			return nil, err
		}
	} else if strings.EqualFold(scheme, openid4vc.DPoPTokenType) {
		return nil, openid4vc.Error{Code: openid4vc.InvalidToken, Description: "access token is not DPoP-bound", StatusCode: http.StatusUnauthorized}
	}

	session, err := i.resolveSession(ctx, claims)
	if err != nil {
		return nil, err
	}
	if session.Expired() {
		i.expireSession(ctx, session)
		return nil, openid4vc.Error{Code: openid4vc.InvalidToken, Description: expiredErrorMessage, StatusCode: http.StatusUnauthorized}
	}
	// subject pinning: the first authenticated subject sticks to the session
	if claims.subject != "" {
		if session.Authorization == nil {
			session.Authorization = &Authorization{}
		}
		if session.Authorization.Subject == "" {
			session.Authorization.Subject = claims.subject
			if err := i.store.Update(ctx, *session); err != nil {
				return nil, err
			}
		} else if session.Authorization.Subject != claims.subject {
			return nil, openid4vc.Error{Code: openid4vc.InvalidToken, Description: "access token subject does not match the session subject", StatusCode: http.StatusUnauthorized}
		}
	}

	return &RequestContext{
		Session:  session,
		Subject:  claims.subject,
		Scopes:   claims.scopes,
		DPoPJKT:  claims.jkt,
		External: claims.external,
	}, nil
}

func (i *Issuer) verifyAccessToken(ctx context.Context, scheme string, token string, request ResourceRequest) (*accessTokenClaims, error) {
	unverified, parseErr := jwt.ParseInsecure([]byte(token))
	switch {
	case parseErr == nil && unverified.Issuer() == i.config.IssuerURL:
		return i.verifyOwnAccessToken(token)
	case parseErr == nil:
		return i.verifyExternalJWT(ctx, token, unverified.Issuer())
	default:
		// not a JWT, try introspection at the external authorization servers
		if strings.EqualFold(scheme, openid4vc.DPoPTokenType) || request.DPoPHeader != "" {
			return nil, openid4vc.Error{Code: openid4vc.InvalidRequest, Description: "DPoP is not supported with opaque access tokens", StatusCode: http.StatusBadRequest}
		}
		return i.introspectAccessToken(ctx, token)
	}
}

func (i *Issuer) verifyOwnAccessToken(token string) (*accessTokenClaims, error) {
	verified, err := crypto.ParseJWT(token, func(_ string) (stdcrypto.PublicKey, error) {
		return i.keyStore.ResolvePublicKey(i.config.AccessTokenKID)
	}, jwt.WithIssuer(i.config.IssuerURL), jwt.WithAudience(i.config.IssuerURL))
	if err != nil {
		return nil, openid4vc.Error{Code: openid4vc.InvalidToken, Description: "access token verification failed", Err: err, StatusCode: http.StatusUnauthorized}
	}
	return claimsFromToken(verified, false), nil
}

func (i *Issuer) verifyExternalJWT(ctx context.Context, token string, tokenIssuer string) (*accessTokenClaims, error) {
	server := i.authorizationServer(tokenIssuer)
	if server == nil {
		return nil, openid4vc.Error{Code: openid4vc.InvalidToken, Description: "unknown access token issuer", StatusCode: http.StatusUnauthorized}
	}
	metadata, err := i.asClient.Metadata(ctx, server.Issuer)
	if err != nil {
		return nil, openid4vc.Error{Code: openid4vc.ServerError, Err: err, StatusCode: http.StatusInternalServerError}
	}
	keySet, err := i.asClient.FetchKeySet(ctx, metadata.JwksURI)
	if err != nil {
		return nil, openid4vc.Error{Code: openid4vc.ServerError, Err: err, StatusCode: http.StatusInternalServerError}
	}
	verified, err := jwt.Parse([]byte(token),
		jwt.WithKeySet(keySet, jws.WithInferAlgorithmFromKey(true)),
		jwt.WithValidate(true),
		jwt.WithIssuer(server.Issuer),
		jwt.WithAudience(i.config.IssuerURL))
	if err != nil {
		return nil, openid4vc.Error{Code: openid4vc.InvalidToken, Description: "access token verification failed", Err: err, StatusCode: http.StatusUnauthorized}
	}
	return claimsFromToken(verified, true), nil
}

func (i *Issuer) introspectAccessToken(ctx context.Context, token string) (*accessTokenClaims, error) {
	for _, server := range i.config.AuthorizationServers {
		metadata, err := i.asClient.Metadata(ctx, server.Issuer)
		if err != nil {
			log.Logger().WithError(err).Warnf("Failed to discover metadata of authorization server %s", server.Issuer)
			continue
		}
		if metadata.IntrospectionEndpoint == "" {
			continue
		}
		response, err := i.asClient.IntrospectToken(ctx, metadata.IntrospectionEndpoint, server.ClientID, server.ClientSecret, token)
		if err != nil {
			log.Logger().WithError(err).Warnf("Token introspection at %s failed", server.Issuer)
			continue
		}
		if !response.Active {
			continue
		}
		claims := accessTokenClaims{
			subject:           stringValue(response.Sub),
			scopes:            strings.Fields(stringValue(response.Scope)),
			preAuthorizedCode: stringValue(response.PreAuthorizedCode),
			issuerState:       stringValue(response.IssuerState),
			external:          true,
		}
		if response.Cnf != nil {
			claims.jkt = response.Cnf.Jkt
		}
		return &claims, nil
	}
	return nil, openid4vc.Error{Code: openid4vc.InvalidToken, Description: "access token is not active", StatusCode: http.StatusUnauthorized}
}

func (i *Issuer) resolveSession(ctx context.Context, claims *accessTokenClaims) (*IssuanceSession, error) {
	var session *IssuanceSession
	var err error
	if claims.preAuthorizedCode != "" {
		session, err = i.store.FindByReference(ctx, refTypePreAuthorizedCode, claims.preAuthorizedCode)
	} else if claims.issuerState != "" {
		session, err = i.store.FindByReference(ctx, refTypeIssuerState, claims.issuerState)
	}
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, openid4vc.Error{Code: openid4vc.InvalidToken, Description: "no issuance session for access token", StatusCode: http.StatusUnauthorized}
	}
	return session, nil
}

func (i *Issuer) authorizationServer(issuer string) *AuthorizationServerConfig {
	for _, server := range i.config.AuthorizationServers {
		if server.Issuer == issuer {
			return &server
		}
	}
	return nil
}

func stringValue(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func claimsFromToken(token jwt.Token, external bool) *accessTokenClaims {
	claims := accessTokenClaims{subject: token.Subject(), external: external}
	if v, ok := token.Get(scopeClaim); ok {
		if s, ok := v.(string); ok {
			claims.scopes = strings.Fields(s)
		}
	}
	if v, ok := token.Get(preAuthorizedCodeClaim); ok {
		claims.preAuthorizedCode, _ = v.(string)
	}
	if v, ok := token.Get(issuerStateClaim); ok {
		claims.issuerState, _ = v.(string)
	}
	if v, ok := token.Get(cnfClaim); ok {
		if cnf, ok := v.(map[string]interface{}); ok {
			claims.jkt, _ = cnf["jkt"].(string)
		}
	}
	return &claims
}
