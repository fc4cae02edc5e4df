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

package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idx-network/idx-node/crypto"
	"github.com/idx-network/idx-node/openid4vc"
	"github.com/idx-network/idx-node/openid4vc/issuer"
)

const testIssuerURL = "https://issuer.example.com"

func TestCredentialMapper(t *testing.T) {
	keyStore := crypto.NewMemoryKeyStore()
	require.NoError(t, keyStore.New(credentialKID))
	mapper := newCredentialMapper(keyStore, testIssuerURL, credentialKID)

	holderKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	holderJWK, err := jwk.FromRaw(holderKey.Public())
	require.NoError(t, err)

	t.Run("sd-jwt vc bound to a jwk", func(t *testing.T) {
		result, err := mapper(context.Background(), issuer.CredentialMapperInput{
			ConfigurationID: "UniversityDegreeCredential",
			Configuration: openid4vc.CredentialConfiguration{
				Format: openid4vc.SDJWTVCFormat,
				Vct:    "https://example.com/degree",
			},
			HolderBindings: []issuer.HolderBinding{{Method: issuer.HolderBindingJWK, Key: holderJWK}},
		})

		require.NoError(t, err)
		assert.Equal(t, openid4vc.SDJWTVCFormat, result.Format)
		require.Len(t, result.Credentials, 1)
		claims := parseCredential(t, keyStore, result.Credentials[0].(string))
		assert.Equal(t, testIssuerURL, claims.Issuer())
		vct, _ := claims.Get("vct")
		assert.Equal(t, "https://example.com/degree", vct)
		cnf, _ := claims.Get("cnf")
		assert.NotNil(t, cnf)
	})
	t.Run("jwt vc bound to a did", func(t *testing.T) {
		result, err := mapper(context.Background(), issuer.CredentialMapperInput{
			ConfigurationID: "MembershipCredential",
			Configuration: openid4vc.CredentialConfiguration{
				Format:               openid4vc.VerifiableCredentialJWTFormat,
				CredentialDefinition: map[string]interface{}{"type": []interface{}{"VerifiableCredential", "MembershipCredential"}},
			},
			HolderBindings: []issuer.HolderBinding{{Method: issuer.HolderBindingDID, DID: "did:key:z6Mkexample#0", Key: holderJWK}},
		})

		require.NoError(t, err)
		require.Len(t, result.Credentials, 1)
		claims := parseCredential(t, keyStore, result.Credentials[0].(string))
		assert.Equal(t, "did:key:z6Mkexample#0", claims.Subject())
		vc, _ := claims.Get("vc")
		assert.NotNil(t, vc)
	})
	t.Run("one credential per binding", func(t *testing.T) {
		result, err := mapper(context.Background(), issuer.CredentialMapperInput{
			ConfigurationID: "UniversityDegreeCredential",
			Configuration:   openid4vc.CredentialConfiguration{Format: openid4vc.SDJWTVCFormat},
			HolderBindings: []issuer.HolderBinding{
				{Method: issuer.HolderBindingJWK, Key: holderJWK},
				{Method: issuer.HolderBindingJWK, Key: holderJWK},
			},
		})

		require.NoError(t, err)
		assert.Len(t, result.Credentials, 2)
	})
	t.Run("unsupported format", func(t *testing.T) {
		_, err := mapper(context.Background(), issuer.CredentialMapperInput{
			Configuration:  openid4vc.CredentialConfiguration{Format: openid4vc.VerifiableCredentialJSONLDFormat},
			HolderBindings: []issuer.HolderBinding{{Method: issuer.HolderBindingJWK, Key: holderJWK}},
		})

		assert.EqualError(t, err, "credential format ldp_vc is not supported by this node's credential signer")
	})
}

func parseCredential(t *testing.T, keyStore crypto.KeyStore, credential string) jwt.Token {
	t.Helper()
	publicKey, err := keyStore.ResolvePublicKey(credentialKID)
	require.NoError(t, err)
	token, err := jwt.Parse([]byte(credential), jwt.WithKey(jwa.ES256, publicKey))
	require.NoError(t, err)
	return token
}
