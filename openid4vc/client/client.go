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

// Package client talks to external OAuth2 authorization servers: metadata
// discovery, token introspection and JWKS retrieval.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/idx-network/idx-node/core"
	"github.com/idx-network/idx-node/openid4vc"
)

// HTTPClient resolves external authorization server endpoints.
type HTTPClient struct {
	httpClient *http.Client
}

// New creates a client with the given request timeout.
func New(timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Metadata discovers the RFC8414 metadata of an authorization server. It tries
// /.well-known/oauth-authorization-server first and falls back to
// /.well-known/openid-configuration. The issuer claim must match the requested issuer.
func (c *HTTPClient) Metadata(ctx context.Context, issuer string) (*openid4vc.AuthorizationServerMetadata, error) {
	issuerURL, err := core.ParseIssuerURL(issuer)
	if err != nil {
		return nil, err
	}
	var lastErr error
	for _, wellKnown := range []string{openid4vc.WellKnownOAuthAuthorizationServerPath, openid4vc.WellKnownOpenIDConfigurationPath} {
		metadataURL, err := issuerURL.Parse(wellKnown + issuerURL.EscapedPath())
		if err != nil {
			return nil, err
		}
		metadata, err := c.fetchMetadata(ctx, metadataURL)
		if err != nil {
			lastErr = err
			continue
		}
		if metadata.Issuer != issuer {
			return nil, fmt.Errorf("authorization server metadata issuer mismatch: expected %s, got %s", issuer, metadata.Issuer)
		}
		return metadata, nil
	}
	return nil, fmt.Errorf("failed to discover authorization server metadata for %s: %w", issuer, lastErr)
}

func (c *HTTPClient) fetchMetadata(ctx context.Context, metadataURL *url.URL) (*openid4vc.AuthorizationServerMetadata, error) {
	var metadata openid4vc.AuthorizationServerMetadata
	err := retry.Do(func() error {
		request, err := http.NewRequestWithContext(ctx, http.MethodGet, metadataURL.String(), nil)
		if err != nil {
			return retry.Unrecoverable(err)
		}
		response, err := c.httpClient.Do(request)
		if err != nil {
			return err
		}
		defer response.Body.Close()
		if err = core.TestResponseCode(http.StatusOK, response); err != nil {
			return err
		}
		data, err := io.ReadAll(response.Body)
		if err != nil {
			return fmt.Errorf("unable to read response: %w", err)
		}
		if err = json.Unmarshal(data, &metadata); err != nil {
			return retry.Unrecoverable(fmt.Errorf("unable to unmarshal response: %w", err))
		}
		return nil
	}, retry.Attempts(3), retry.Context(ctx), retry.LastErrorOnly(true))
	if err != nil {
		return nil, err
	}
	return &metadata, nil
}

// IntrospectToken performs RFC7662 token introspection using client_secret_basic
// authentication.
func (c *HTTPClient) IntrospectToken(ctx context.Context, introspectionEndpoint string, clientID string, clientSecret string, token string) (*openid4vc.TokenIntrospectionResponse, error) {
	form := url.Values{"token": {token}}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, introspectionEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	request.SetBasicAuth(url.QueryEscape(clientID), url.QueryEscape(clientSecret))
	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("failed to introspect token: %w", err)
	}
	defer response.Body.Close()
	if err = core.TestResponseCode(http.StatusOK, response); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("unable to read response: %w", err)
	}
	var result openid4vc.TokenIntrospectionResponse
	if err = json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("unable to unmarshal response: %w", err)
	}
	return &result, nil
}

// FetchKeySet retrieves the JWKS of an authorization server.
func (c *HTTPClient) FetchKeySet(ctx context.Context, jwksURI string) (jwk.Set, error) {
	return jwk.Fetch(ctx, jwksURI, jwk.WithHTTPClient(c.httpClient))
}
