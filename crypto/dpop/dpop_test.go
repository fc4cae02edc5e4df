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

package dpop

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"net/http"
	"testing"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProof(t *testing.T) (*Proof, *ecdsa.PrivateKey, string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	request, err := http.NewRequest(http.MethodPost, "https://issuer.example.com/credential", nil)
	require.NoError(t, err)
	proof := New(*request).WithAccessTokenHash("token")
	raw, err := proof.Sign(key, jwa.ES256)
	require.NoError(t, err)
	return proof, key, raw
}

func TestParse(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		_, _, raw := testProof(t)

		parsed, err := Parse(raw)

		require.NoError(t, err)
		assert.Equal(t, http.MethodPost, parsed.HTM())
		assert.Equal(t, "https://issuer.example.com/credential", parsed.HTU())
		assert.NotEmpty(t, parsed.Token.JwtID())
	})
	t.Run("not a JWS", func(t *testing.T) {
		_, err := Parse("definitely not a JWS")

		assert.ErrorIs(t, err, ErrInvalidProof)
	})
	t.Run("wrong typ header", func(t *testing.T) {
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		require.NoError(t, err)
		request, _ := http.NewRequest(http.MethodGet, "https://example.com", nil)
		proof := New(*request)
		_ = proof.Headers.Set("typ", "JWT")
		raw, err := proof.Sign(key, jwa.ES256)
		require.NoError(t, err)

		_, err = Parse(raw)

		assert.ErrorContains(t, err, "invalid typ")
	})
}

func TestProof_Match(t *testing.T) {
	_, _, raw := testProof(t)
	proof, err := Parse(raw)
	require.NoError(t, err)
	jkt := proof.Thumbprint()

	t.Run("ok", func(t *testing.T) {
		assert.NoError(t, proof.Match(jkt, http.MethodPost, "https://issuer.example.com/credential"))
	})
	t.Run("port and query are ignored", func(t *testing.T) {
		assert.NoError(t, proof.Match(jkt, http.MethodPost, "https://issuer.example.com:443/credential?foo=bar"))
	})
	t.Run("jkt mismatch", func(t *testing.T) {
		assert.EqualError(t, proof.Match("other", http.MethodPost, "https://issuer.example.com/credential"), "jkt mismatch")
	})
	t.Run("method mismatch", func(t *testing.T) {
		assert.ErrorContains(t, proof.Match(jkt, http.MethodGet, "https://issuer.example.com/credential"), "method mismatch")
	})
	t.Run("url mismatch", func(t *testing.T) {
		assert.ErrorContains(t, proof.Match(jkt, http.MethodPost, "https://other.example.com/credential"), "url mismatch")
	})
}

func TestProof_MatchesAccessToken(t *testing.T) {
	_, _, raw := testProof(t)
	proof, err := Parse(raw)
	require.NoError(t, err)

	assert.NoError(t, proof.MatchesAccessToken("token"))
	assert.EqualError(t, proof.MatchesAccessToken("other token"), "ath/access token mismatch")
}
