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
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idx-network/idx-node/didpeer"
	"github.com/idx-network/idx-node/openid4vc"
)

func TestIssuer_verifyProofs(t *testing.T) {
	configuration := testConfig().CredentialConfigurationsSupported[degreeConfigID]

	setup := func(t *testing.T, modifiers ...func(*Config)) (*testContext, IssuanceSession, string) {
		tc := newTestIssuer(t, modifiers...)
		session := IssuanceSession{ID: "session-id"}
		nonce, _, err := tc.issuer.freshCNonce(session)
		require.NoError(t, err)
		return tc, session, nonce
	}

	t.Run("ok - jwk-bound proof", func(t *testing.T) {
		tc, session, nonce := setup(t)
		holderKey := newHolderKey(t)

		bindings, err := tc.issuer.verifyProofs(session, configuration, openid4vc.CredentialRequest{
			Proof: &openid4vc.CredentialRequestProof{ProofType: openid4vc.ProofTypeJWT, JWT: signProofJWT(t, holderKey, nonce)},
		})

		require.NoError(t, err)
		require.Len(t, bindings, 1)
		assert.Equal(t, HolderBindingJWK, bindings[0].Method)
		var rawKey ecdsa.PublicKey
		require.NoError(t, bindings[0].Key.Raw(&rawKey))
		assert.True(t, rawKey.Equal(holderKey.Public()))
	})
	t.Run("ok - did:key-bound proof", func(t *testing.T) {
		tc, session, nonce := setup(t)
		publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
		require.NoError(t, err)
		fingerprint, err := didpeer.Ed25519Fingerprint(publicKey)
		require.NoError(t, err)
		kid := fingerprint.DIDKey()

		token := jwt.New()
		require.NoError(t, token.Set(jwt.AudienceKey, testIssuerURL))
		require.NoError(t, token.Set(jwt.IssuedAtKey, time.Now()))
		require.NoError(t, token.Set(nonceClaim, nonce))
		headers := jws.NewHeaders()
		require.NoError(t, headers.Set(jws.TypeKey, openid4vc.ProofJWTType))
		require.NoError(t, headers.Set(jws.KeyIDKey, kid))
		signed, err := jwt.Sign(token, jwt.WithKey(jwa.EdDSA, privateKey, jws.WithProtectedHeaders(headers)))
		require.NoError(t, err)

		bindings, err := tc.issuer.verifyProofs(session, configuration, openid4vc.CredentialRequest{
			Proof: &openid4vc.CredentialRequestProof{ProofType: openid4vc.ProofTypeJWT, JWT: string(signed)},
		})

		require.NoError(t, err)
		require.Len(t, bindings, 1)
		assert.Equal(t, HolderBindingDID, bindings[0].Method)
		assert.Equal(t, kid, bindings[0].DID)
	})
	t.Run("missing proof", func(t *testing.T) {
		tc, session, _ := setup(t)

		_, err := tc.issuer.verifyProofs(session, configuration, openid4vc.CredentialRequest{})

		protocolError := assertProtocolError(t, err, openid4vc.InvalidProof, "credential request requires a holder binding proof")
		assert.NotNil(t, protocolError.CNonce)
	})
	t.Run("proof and proofs are mutually exclusive", func(t *testing.T) {
		tc, session, nonce := setup(t)
		proof := signProofJWT(t, newHolderKey(t), nonce)

		_, err := tc.issuer.verifyProofs(session, configuration, openid4vc.CredentialRequest{
			Proof:  &openid4vc.CredentialRequestProof{ProofType: openid4vc.ProofTypeJWT, JWT: proof},
			Proofs: &openid4vc.CredentialRequestProofs{JWT: []string{proof}},
		})

		assertProtocolError(t, err, openid4vc.InvalidRequest, "proof and proofs are mutually exclusive")
	})
	t.Run("unsupported proof type", func(t *testing.T) {
		tc, session, _ := setup(t)

		_, err := tc.issuer.verifyProofs(session, configuration, openid4vc.CredentialRequest{
			Proof: &openid4vc.CredentialRequestProof{ProofType: "ldp_vp"},
		})

		assertProtocolError(t, err, openid4vc.InvalidProof, "unsupported proof type: ldp_vp")
	})
	t.Run("wrong typ header", func(t *testing.T) {
		tc, session, nonce := setup(t)
		holderKey := newHolderKey(t)
		token := jwt.New()
		require.NoError(t, token.Set(jwt.AudienceKey, testIssuerURL))
		require.NoError(t, token.Set(nonceClaim, nonce))
		headers := jws.NewHeaders()
		publicKey, err := jwk.FromRaw(holderKey.Public())
		require.NoError(t, err)
		require.NoError(t, headers.Set(jws.JWKKey, publicKey))
		signed, err := jwt.Sign(token, jwt.WithKey(jwa.ES256, holderKey, jws.WithProtectedHeaders(headers)))
		require.NoError(t, err)

		_, err = tc.issuer.verifyProofs(session, configuration, openid4vc.CredentialRequest{
			Proof: &openid4vc.CredentialRequestProof{ProofType: openid4vc.ProofTypeJWT, JWT: string(signed)},
		})

		assertProtocolError(t, err, openid4vc.InvalidProof, "proof typ must be openid4vci-proof+jwt")
	})
	t.Run("wrong audience", func(t *testing.T) {
		tc, session, nonce := setup(t)
		holderKey := newHolderKey(t)
		token := jwt.New()
		require.NoError(t, token.Set(jwt.AudienceKey, "https://other-issuer.example.com"))
		require.NoError(t, token.Set(jwt.IssuedAtKey, time.Now()))
		require.NoError(t, token.Set(nonceClaim, nonce))
		headers := jws.NewHeaders()
		require.NoError(t, headers.Set(jws.TypeKey, openid4vc.ProofJWTType))
		publicKey, err := jwk.FromRaw(holderKey.Public())
		require.NoError(t, err)
		require.NoError(t, headers.Set(jws.JWKKey, publicKey))
		signed, err := jwt.Sign(token, jwt.WithKey(jwa.ES256, holderKey, jws.WithProtectedHeaders(headers)))
		require.NoError(t, err)

		_, err = tc.issuer.verifyProofs(session, configuration, openid4vc.CredentialRequest{
			Proof: &openid4vc.CredentialRequestProof{ProofType: openid4vc.ProofTypeJWT, JWT: string(signed)},
		})

		assertProtocolError(t, err, openid4vc.InvalidProof, "proof verification failed")
	})
	t.Run("batch", func(t *testing.T) {
		t.Run("ok", func(t *testing.T) {
			tc, session, nonce := setup(t, func(config *Config) {
				config.BatchCredentialIssuance = &openid4vc.BatchCredentialIssuance{BatchSize: 2}
			})

			bindings, err := tc.issuer.verifyProofs(session, configuration, openid4vc.CredentialRequest{
				Proofs: &openid4vc.CredentialRequestProofs{JWT: []string{
					signProofJWT(t, newHolderKey(t), nonce),
					signProofJWT(t, newHolderKey(t), nonce),
				}},
			})

			require.NoError(t, err)
			assert.Len(t, bindings, 2)
		})
		t.Run("exceeds batch size", func(t *testing.T) {
			tc, session, nonce := setup(t)

			_, err := tc.issuer.verifyProofs(session, configuration, openid4vc.CredentialRequest{
				Proofs: &openid4vc.CredentialRequestProofs{JWT: []string{
					signProofJWT(t, newHolderKey(t), nonce),
					signProofJWT(t, newHolderKey(t), nonce),
				}},
			})

			assertProtocolError(t, err, openid4vc.InvalidRequest, "number of proofs (2) exceeds the batch size (1)")
		})
		t.Run("proofs must share the nonce", func(t *testing.T) {
			tc, session, nonce := setup(t, func(config *Config) {
				config.BatchCredentialIssuance = &openid4vc.BatchCredentialIssuance{BatchSize: 2}
			})
			otherNonce, _, err := tc.issuer.freshCNonce(session)
			require.NoError(t, err)

			_, err = tc.issuer.verifyProofs(session, configuration, openid4vc.CredentialRequest{
				Proofs: &openid4vc.CredentialRequestProofs{JWT: []string{
					signProofJWT(t, newHolderKey(t), nonce),
					signProofJWT(t, newHolderKey(t), otherNonce),
				}},
			})

			assertProtocolError(t, err, openid4vc.InvalidProof, "all proofs must use the same nonce")
		})
	})
	t.Run("unknown nonce", func(t *testing.T) {
		tc, session, _ := setup(t)

		_, err := tc.issuer.verifyProofs(session, configuration, openid4vc.CredentialRequest{
			Proof: &openid4vc.CredentialRequestProof{ProofType: openid4vc.ProofTypeJWT, JWT: signProofJWT(t, newHolderKey(t), "unknown-nonce")},
		})

		assertProtocolError(t, err, openid4vc.InvalidNonce, "unknown or expired nonce")
	})
}

func TestIssuer_verifyKeyAttestation(t *testing.T) {
	attestationConfiguration := openid4vc.CredentialConfiguration{
		Format: openid4vc.SDJWTVCFormat,
		Scope:  "degree",
		ProofTypesSupported: map[string]openid4vc.ProofTypeMetadata{
			openid4vc.ProofTypeAttestation: {
				KeyAttestationsRequired: &openid4vc.KeyAttestationsRequired{KeyStorage: []string{"iso_18045_high"}},
			},
		},
	}

	signAttestation := func(t *testing.T, nonce string, keyStorage []string, attestedKeys int) string {
		providerKey := newHolderKey(t)
		keys := make([]interface{}, attestedKeys)
		for i := range keys {
			attestedKey, err := jwk.FromRaw(newHolderKey(t).Public())
			require.NoError(t, err)
			keys[i] = attestedKey
		}
		token := jwt.New()
		require.NoError(t, token.Set(jwt.IssuedAtKey, time.Now()))
		require.NoError(t, token.Set(nonceClaim, nonce))
		require.NoError(t, token.Set("attested_keys", keys))
		if len(keyStorage) > 0 {
			require.NoError(t, token.Set("key_storage", keyStorage))
		}
		headers := jws.NewHeaders()
		require.NoError(t, headers.Set(jws.TypeKey, openid4vc.KeyAttestationJWTType))
		publicKey, err := jwk.FromRaw(providerKey.Public())
		require.NoError(t, err)
		require.NoError(t, headers.Set(jws.JWKKey, publicKey))
		signed, err := jwt.Sign(token, jwt.WithKey(jwa.ES256, providerKey, jws.WithProtectedHeaders(headers)))
		require.NoError(t, err)
		return string(signed)
	}

	setup := func(t *testing.T) (*testContext, IssuanceSession, string) {
		tc := newTestIssuer(t, func(config *Config) {
			config.BatchCredentialIssuance = &openid4vc.BatchCredentialIssuance{BatchSize: 2}
		})
		session := IssuanceSession{ID: "session-id"}
		nonce, _, err := tc.issuer.freshCNonce(session)
		require.NoError(t, err)
		return tc, session, nonce
	}

	t.Run("ok", func(t *testing.T) {
		tc, session, nonce := setup(t)

		bindings, err := tc.issuer.verifyProofs(session, attestationConfiguration, openid4vc.CredentialRequest{
			Proof: &openid4vc.CredentialRequestProof{
				ProofType:   openid4vc.ProofTypeAttestation,
				Attestation: signAttestation(t, nonce, []string{"iso_18045_high"}, 2),
			},
		})

		require.NoError(t, err)
		require.Len(t, bindings, 2)
		assert.Equal(t, HolderBindingJWK, bindings[0].Method)
	})
	t.Run("key storage requirement not met", func(t *testing.T) {
		tc, session, nonce := setup(t)

		_, err := tc.issuer.verifyProofs(session, attestationConfiguration, openid4vc.CredentialRequest{
			Proof: &openid4vc.CredentialRequestProof{
				ProofType:   openid4vc.ProofTypeAttestation,
				Attestation: signAttestation(t, nonce, []string{"software"}, 1),
			},
		})

		assertProtocolError(t, err, openid4vc.InvalidProof, "attested key storage does not meet the issuer's requirements")
	})
	t.Run("wrong typ header", func(t *testing.T) {
		tc, session, nonce := setup(t)

		_, err := tc.issuer.verifyProofs(session, attestationConfiguration, openid4vc.CredentialRequest{
			Proof: &openid4vc.CredentialRequestProof{
				ProofType:   openid4vc.ProofTypeAttestation,
				Attestation: signProofJWT(t, newHolderKey(t), nonce),
			},
		})

		assertProtocolError(t, err, openid4vc.InvalidProof, "key attestation typ must be keyattestation+jwt")
	})
	t.Run("attestation proof type must be supported", func(t *testing.T) {
		tc, session, nonce := setup(t)
		jwtOnly := openid4vc.CredentialConfiguration{
			Format:              openid4vc.SDJWTVCFormat,
			ProofTypesSupported: map[string]openid4vc.ProofTypeMetadata{openid4vc.ProofTypeJWT: {}},
		}

		_, err := tc.issuer.verifyProofs(session, jwtOnly, openid4vc.CredentialRequest{
			Proof: &openid4vc.CredentialRequestProof{
				ProofType:   openid4vc.ProofTypeAttestation,
				Attestation: signAttestation(t, nonce, nil, 1),
			},
		})

		assertProtocolError(t, err, openid4vc.InvalidProof, "proof type attestation is not supported for this credential")
	})
	t.Run("multiple attestations", func(t *testing.T) {
		tc, session, nonce := setup(t)
		attestation := signAttestation(t, nonce, nil, 1)

		_, err := tc.issuer.verifyProofs(session, attestationConfiguration, openid4vc.CredentialRequest{
			Proofs: &openid4vc.CredentialRequestProofs{Attestation: []string{attestation, attestation}},
		})

		assertProtocolError(t, err, openid4vc.InvalidProof, "a credential request must contain exactly one key attestation")
	})
}
