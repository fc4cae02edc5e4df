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

package client

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idx-network/idx-node/openid4vc"
)

func TestHTTPClient_Metadata(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		var requestedPaths []string
		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			requestedPaths = append(requestedPaths, request.URL.Path)
			_ = json.NewEncoder(writer).Encode(openid4vc.AuthorizationServerMetadata{
				Issuer:        serverURL(request),
				TokenEndpoint: serverURL(request) + "/token",
			})
		}))
		defer server.Close()

		metadata, err := New(time.Second).Metadata(context.Background(), server.URL)

		require.NoError(t, err)
		assert.Equal(t, server.URL, metadata.Issuer)
		assert.Equal(t, server.URL+"/token", metadata.TokenEndpoint)
		assert.Equal(t, []string{"/.well-known/oauth-authorization-server"}, requestedPaths)
	})
	t.Run("falls back to openid-configuration", func(t *testing.T) {
		var requestedPaths []string
		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			requestedPaths = append(requestedPaths, request.URL.Path)
			if request.URL.Path == "/.well-known/oauth-authorization-server" {
				writer.WriteHeader(http.StatusNotFound)
				return
			}
			_ = json.NewEncoder(writer).Encode(openid4vc.AuthorizationServerMetadata{Issuer: serverURL(request)})
		}))
		defer server.Close()

		metadata, err := New(time.Second).Metadata(context.Background(), server.URL)

		require.NoError(t, err)
		assert.Equal(t, server.URL, metadata.Issuer)
		assert.Contains(t, requestedPaths, "/.well-known/openid-configuration")
	})
	t.Run("issuer mismatch", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(writer).Encode(openid4vc.AuthorizationServerMetadata{Issuer: "https://somebody-else.example.com"})
		}))
		defer server.Close()

		_, err := New(time.Second).Metadata(context.Background(), server.URL)

		assert.ErrorContains(t, err, "authorization server metadata issuer mismatch")
	})
	t.Run("all well-known paths fail", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
			writer.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		_, err := New(time.Second).Metadata(context.Background(), server.URL)

		assert.ErrorContains(t, err, "failed to discover authorization server metadata")
	})
	t.Run("invalid issuer URL", func(t *testing.T) {
		_, err := New(time.Second).Metadata(context.Background(), "not a url")

		assert.ErrorContains(t, err, "issuer URL scheme must be http or https")
	})
}

func TestHTTPClient_IntrospectToken(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		var receivedToken string
		var receivedAuthorization string
		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			require.NoError(t, request.ParseForm())
			receivedToken = request.PostForm.Get("token")
			receivedAuthorization = request.Header.Get("Authorization")
			scope := "degree"
			_ = json.NewEncoder(writer).Encode(openid4vc.TokenIntrospectionResponse{Active: true, Scope: &scope})
		}))
		defer server.Close()

		response, err := New(time.Second).IntrospectToken(context.Background(), server.URL, "client-id", "client-secret", "opaque-token")

		require.NoError(t, err)
		assert.True(t, response.Active)
		require.NotNil(t, response.Scope)
		assert.Equal(t, "degree", *response.Scope)
		assert.Equal(t, "opaque-token", receivedToken)
		assert.NotEmpty(t, receivedAuthorization)
	})
	t.Run("non-200 response", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
			writer.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		_, err := New(time.Second).IntrospectToken(context.Background(), server.URL, "client-id", "client-secret", "opaque-token")

		assert.ErrorContains(t, err, "server returned HTTP 401")
	})
	t.Run("additional claims are collected", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
			_, _ = writer.Write([]byte(`{"active": true, "pre-authorized_code": "code", "custom": "value"}`))
		}))
		defer server.Close()

		response, err := New(time.Second).IntrospectToken(context.Background(), server.URL, "client-id", "client-secret", "opaque-token")

		require.NoError(t, err)
		require.NotNil(t, response.PreAuthorizedCode)
		assert.Equal(t, "code", *response.PreAuthorizedCode)
		assert.Equal(t, "value", response.AdditionalFields["custom"])
	})
}

func TestHTTPClient_FetchKeySet(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	publicJWK, err := jwk.FromRaw(key.Public())
	require.NoError(t, err)
	require.NoError(t, publicJWK.Set(jwk.KeyIDKey, "key-1"))
	keySet := jwk.NewSet()
	require.NoError(t, keySet.AddKey(publicJWK))
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(writer).Encode(keySet)
	}))
	defer server.Close()

	fetched, err := New(time.Second).FetchKeySet(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Equal(t, 1, fetched.Len())
	_, found := fetched.LookupKeyID("key-1")
	assert.True(t, found)
}

func serverURL(request *http.Request) string {
	return "http://" + request.Host
}
