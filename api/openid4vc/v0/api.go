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

// Package v0 contains the HTTP binding of the OpenID4VCI issuance endpoints.
package v0

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/idx-network/idx-node/core"
	"github.com/idx-network/idx-node/openid4vc"
	"github.com/idx-network/idx-node/openid4vc/issuer"
	"github.com/idx-network/idx-node/openid4vc/log"
)

// walletAttestationHeader carries the client (wallet) attestation JWT on token requests.
const walletAttestationHeader = "OAuth-Client-Attestation"

// Wrapper binds the issuance endpoints to an Issuer instance.
type Wrapper struct {
	Issuer *issuer.Issuer
}

// Routes registers the issuance endpoints.
func (w Wrapper) Routes(router core.EchoRouter) {
	router.GET(openid4vc.WellKnownCredentialIssuerPath, w.handle(w.getCredentialIssuerMetadata))
	router.GET(openid4vc.WellKnownOAuthAuthorizationServerPath, w.handle(w.getAuthorizationServerMetadata))
	router.GET(openid4vc.WellKnownOpenIDConfigurationPath, w.handle(w.getAuthorizationServerMetadata))
	router.GET("/"+openid4vc.CredentialOfferPath+"/:id", w.handle(w.getCredentialOffer))
	router.POST("/"+openid4vc.TokenEndpointPath, w.handle(w.postToken))
	router.POST("/"+openid4vc.CredentialEndpointPath, w.handle(w.postCredential))
	router.POST("/"+openid4vc.DeferredCredentialEndpointPath, w.handle(w.postDeferredCredential))
}

// handle translates errors returned by the endpoint into OAuth2 JSON error responses.
func (w Wrapper) handle(fn echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if err := fn(ctx); err != nil {
			return writeProtocolError(ctx, err)
		}
		return nil
	}
}

func (w Wrapper) getCredentialIssuerMetadata(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, w.Issuer.Metadata())
}

func (w Wrapper) getAuthorizationServerMetadata(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, w.Issuer.AuthorizationServerMetadata())
}

func (w Wrapper) getCredentialOffer(ctx echo.Context) error {
	offer, err := w.Issuer.GetCredentialOffer(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	noStore(ctx)
	return ctx.JSON(http.StatusOK, offer)
}

func (w Wrapper) postToken(ctx echo.Context) error {
	grantType := ctx.FormValue("grant_type")
	code := ctx.FormValue("code")
	if grantType == openid4vc.PreAuthorizedCodeGrantType {
		code = ctx.FormValue("pre-authorized_code")
	}
	response, err := w.Issuer.HandleTokenRequest(ctx.Request().Context(), issuer.TokenRequest{
		GrantType:         grantType,
		Code:              code,
		TxCode:            ctx.FormValue("tx_code"),
		CodeVerifier:      ctx.FormValue("code_verifier"),
		ClientID:          ctx.FormValue("client_id"),
		WalletAttestation: ctx.Request().Header.Get(walletAttestationHeader),
		DPoPHeader:        ctx.Request().Header.Get("DPoP"),
		RequestMethod:     ctx.Request().Method,
		RequestURL:        requestURL(ctx),
	})
	if err != nil {
		return err
	}
	noStore(ctx)
	return ctx.JSON(http.StatusOK, response)
}

func (w Wrapper) postCredential(ctx echo.Context) error {
	requestContext, err := w.authorize(ctx)
	if err != nil {
		return err
	}
	var request openid4vc.CredentialRequest
	if err := ctx.Bind(&request); err != nil {
		return openid4vc.Error{Code: openid4vc.InvalidRequest, Err: err, StatusCode: http.StatusBadRequest}
	}
	response, err := w.Issuer.CreateCredentialResponse(ctx.Request().Context(), requestContext, request)
	if err != nil {
		return err
	}
	noStore(ctx)
	return ctx.JSON(http.StatusOK, response)
}

func (w Wrapper) postDeferredCredential(ctx echo.Context) error {
	requestContext, err := w.authorize(ctx)
	if err != nil {
		return err
	}
	var request openid4vc.DeferredCredentialRequest
	if err := ctx.Bind(&request); err != nil {
		return openid4vc.Error{Code: openid4vc.InvalidRequest, Err: err, StatusCode: http.StatusBadRequest}
	}
	response, err := w.Issuer.HandleDeferredCredentialRequest(ctx.Request().Context(), requestContext, request)
	if err != nil {
		return err
	}
	noStore(ctx)
	return ctx.JSON(http.StatusOK, response)
}

func (w Wrapper) authorize(ctx echo.Context) (*issuer.RequestContext, error) {
	return w.Issuer.AuthorizeResourceRequest(ctx.Request().Context(), issuer.ResourceRequest{
		AuthorizationHeader: ctx.Request().Header.Get("Authorization"),
		DPoPHeader:          ctx.Request().Header.Get("DPoP"),
		Method:              ctx.Request().Method,
		URL:                 requestURL(ctx),
	})
}

// writeProtocolError renders the error as an OAuth2 JSON error body. Errors that
// are not protocol errors are mapped to server_error without leaking the cause.
func writeProtocolError(ctx echo.Context, err error) error {
	var protocolError openid4vc.Error
	if !errors.As(err, &protocolError) {
		protocolError = openid4vc.Error{
			Code:       openid4vc.ServerError,
			Err:        err,
			StatusCode: http.StatusInternalServerError,
		}
	}
	if protocolError.StatusCode == 0 {
		protocolError.StatusCode = http.StatusInternalServerError
	}
	// the underlying error is not returned to the client, so log it here
	log.Logger().Warnf("OpenID4VCI error occurred (status %d): %s", protocolError.StatusCode, err)
	noStore(ctx)
	return ctx.JSON(protocolError.StatusCode, protocolError)
}

func noStore(ctx echo.Context) {
	ctx.Response().Header().Set("Cache-Control", "no-store")
	ctx.Response().Header().Set("Pragma", "no-cache")
}

func requestURL(ctx echo.Context) string {
	return ctx.Scheme() + "://" + ctx.Request().Host + ctx.Request().RequestURI
}
