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

package crypto

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"errors"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// ErrUnsupportedSigningKey is returned when an unsupported private key is used to sign.
var ErrUnsupportedSigningKey = errors.New("signing key algorithm not supported")

// SupportedAlgorithms lists the JWS signature algorithms accepted for inbound tokens and proofs.
var SupportedAlgorithms = []jwa.SignatureAlgorithm{jwa.PS256, jwa.PS384, jwa.PS512, jwa.ES256, jwa.ES384, jwa.ES512, jwa.EdDSA}

// SignJWT signs claims with the key and returns the compact token.
// The headers param can be used to add additional protected headers.
func SignJWT(key jwk.Key, claims map[string]interface{}, headers map[string]interface{}) (string, error) {
	t := jwt.New()
	for k, v := range claims {
		if err := t.Set(k, v); err != nil {
			return "", err
		}
	}
	hdr := jws.NewHeaders()
	for k, v := range headers {
		if err := hdr.Set(k, v); err != nil {
			return "", err
		}
	}
	alg, ok := key.Algorithm().(jwa.SignatureAlgorithm)
	if !ok {
		return "", ErrUnsupportedSigningKey
	}
	sig, err := jwt.Sign(t, jwt.WithKey(alg, key, jws.WithProtectedHeaders(hdr)))
	if err != nil {
		return "", err
	}
	return string(sig), nil
}

// JWTKidAlg parses a JWT without validating it and returns the 'kid' and 'alg' protected headers.
func JWTKidAlg(tokenString string) (string, jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(tokenString)
	if err != nil {
		return "", "", err
	}
	if len(message.Signatures()) != 1 {
		return "", "", errors.New("incorrect number of signatures in JWT")
	}
	hdrs := message.Signatures()[0].ProtectedHeaders()
	return hdrs.KeyID(), hdrs.Algorithm(), nil
}

// PublicKeyFunc defines a function that resolves a public key based on a kid.
type PublicKeyFunc func(kid string) (crypto.PublicKey, error)

// ParseJWT parses a token, validates and verifies it.
// Additional jwt.ParseOption values (e.g. acceptable clock skew) may be passed.
func ParseJWT(tokenString string, f PublicKeyFunc, options ...jwt.ParseOption) (jwt.Token, error) {
	kid, alg, err := JWTKidAlg(tokenString)
	if err != nil {
		return nil, err
	}
	key, err := f(kid)
	if err != nil {
		return nil, err
	}
	options = append(options, jwt.WithKey(alg, key), jwt.WithValidate(true))
	return jwt.ParseString(tokenString, options...)
}

// JWKFromSigner converts a private key into a jwk.Key with the alg header set.
func JWKFromSigner(signer crypto.Signer) (jwk.Key, error) {
	key, err := jwk.FromRaw(signer)
	if err != nil {
		return nil, err
	}
	var alg jwa.SignatureAlgorithm
	switch concrete := signer.(type) {
	case *rsa.PrivateKey:
		alg = jwa.PS256
	case *ecdsa.PrivateKey:
		alg, err = ecAlg(concrete.Curve)
		if err != nil {
			return nil, err
		}
	case ed25519.PrivateKey:
		alg = jwa.EdDSA
	default:
		return nil, ErrUnsupportedSigningKey
	}
	if err := key.Set(jwk.AlgorithmKey, alg); err != nil {
		return nil, err
	}
	if err := jwk.AssignKeyID(key); err != nil {
		return nil, err
	}
	return key, nil
}

// Thumbprint returns the base64url encoded SHA256 thumbprint (RFC7638) of the given key,
// as used for DPoP jkt confirmation claims.
func Thumbprint(key jwk.Key) (string, error) {
	tp, err := key.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", err
	}
	return base64URL(tp), nil
}

func base64URL(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

func ecAlg(curve elliptic.Curve) (jwa.SignatureAlgorithm, error) {
	switch curve.Params().BitSize {
	case 256:
		return jwa.ES256, nil
	case 384:
		return jwa.ES384, nil
	case 521:
		return jwa.ES512, nil
	}
	return "", ErrUnsupportedSigningKey
}
