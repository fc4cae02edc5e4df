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

// Package dpop implements Demonstrating Proof of Possession (RFC9449) proof JWTs.
package dpop

import (
	stdcrypto "crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/idx-network/idx-node/crypto"
	"github.com/idx-network/idx-node/crypto/hash"
)

const (
	// ATHKey is the claim key of the ath JWT claim of a DPoP proof.
	ATHKey = "ath"
	// HTMKey is the claim key holding the HTTP method the proof is bound to.
	HTMKey = "htm"
	// HTUKey is the claim key holding the HTTP URL the proof is bound to.
	HTUKey = "htu"
	// ProofType is the value of the typ JWS header of a DPoP proof.
	ProofType = "dpop+jwt"
)

// maxJtiLength is the maximum length of the jti claim.
// jti's are stored to prevent replay attacks and must be unique;
// allowing overly long jti's invites memory exhaustion.
const maxJtiLength = 256

// ErrInvalidProof is returned when a DPoP proof is invalid.
var ErrInvalidProof = errors.New("invalid DPoP proof")

// Proof represents a DPoP proof JWT.
type Proof struct {
	raw     string
	Headers jws.Headers `json:"-"`
	Token   jwt.Token   `json:"-"`
}

// New creates an unsigned DPoP proof bound to the given HTTP request.
func New(request http.Request) *Proof {
	result := Proof{Token: jwt.New(), Headers: jws.NewHeaders()}
	// none of these can fail
	_ = result.Token.Set(HTMKey, request.Method)
	_ = result.Token.Set(HTUKey, request.URL.String())
	_ = result.Token.Set(jwt.JwtIDKey, crypto.GenerateNonce())
	_ = result.Token.Set(jwt.IssuedAtKey, time.Now())
	_ = result.Headers.Set(jws.TypeKey, ProofType)
	return &result
}

// WithAccessTokenHash sets the ath claim to the base64url encoded SHA256 hash of the access token.
func (p *Proof) WithAccessTokenHash(accessToken string) *Proof {
	_ = p.Token.Set(ATHKey, hash.SHA256Sum([]byte(accessToken)).Base64URL())
	return p
}

// Sign signs the proof with the given key and adds the jwk and alg headers.
func (p *Proof) Sign(key stdcrypto.Signer, alg jwa.SignatureAlgorithm) (string, error) {
	if p.raw != "" {
		return "", errors.New("already signed")
	}
	publicKeyJWK, err := jwk.FromRaw(key.Public())
	if err != nil {
		return "", err
	}
	_ = publicKeyJWK.Set(jwk.AlgorithmKey, alg)
	_ = p.Headers.Set(jws.JWKKey, publicKeyJWK)
	sig, err := jwt.Sign(p.Token, jwt.WithKey(alg, key, jws.WithProtectedHeaders(p.Headers)))
	if err != nil {
		return "", err
	}
	p.raw = string(sig)
	return p.raw, nil
}

// Parse parses a DPoP proof from its compact serialization and
// validates the required claims and headers.
func Parse(s string) (*Proof, error) {
	message, err := jws.ParseString(s)
	if err != nil {
		return nil, errors.Join(ErrInvalidProof, err)
	}
	if len(message.Signatures()) != 1 {
		return nil, fmt.Errorf("%w: invalid number of signatures", ErrInvalidProof)
	}
	headers := message.Signatures()[0].ProtectedHeaders()
	if !slices.Contains(crypto.SupportedAlgorithms, headers.Algorithm()) {
		return nil, fmt.Errorf("%w: invalid alg: %s", ErrInvalidProof, headers.Algorithm())
	}
	if headers.Type() != ProofType {
		return nil, fmt.Errorf("%w: invalid typ: %s", ErrInvalidProof, headers.Type())
	}
	if headers.JWK() == nil {
		return nil, fmt.Errorf("%w: missing jwk header", ErrInvalidProof)
	}
	if jwkIsPrivateKey(headers.JWK()) {
		return nil, fmt.Errorf("%w: invalid jwk header", ErrInvalidProof)
	}
	token, err := jwt.ParseString(s, jwt.WithKey(headers.Algorithm(), headers.JWK()))
	if err != nil {
		return nil, errors.Join(ErrInvalidProof, err)
	}
	if token.IssuedAt().IsZero() {
		return nil, fmt.Errorf("%w: missing iat claim", ErrInvalidProof)
	}
	if v, ok := token.Get(HTUKey); !ok || v == "" {
		return nil, fmt.Errorf("%w: missing htu claim", ErrInvalidProof)
	}
	if v, ok := token.Get(HTMKey); !ok || v == "" {
		return nil, fmt.Errorf("%w: missing htm claim", ErrInvalidProof)
	}
	if token.JwtID() == "" {
		return nil, fmt.Errorf("%w: missing jti claim", ErrInvalidProof)
	}
	if len(token.JwtID()) > maxJtiLength {
		return nil, fmt.Errorf("%w: jti claim too long", ErrInvalidProof)
	}
	return &Proof{raw: s, Token: token, Headers: headers}, nil
}

// Thumbprint returns the base64url encoded SHA256 thumbprint (jkt) of the proof's signing key.
func (p Proof) Thumbprint() string {
	tp, _ := p.Headers.JWK().Thumbprint(stdcrypto.SHA256)
	return hash.SHA256Hash(tp).Base64URL()
}

// HTU returns the htu claim of the proof.
func (p Proof) HTU() string {
	if v, ok := p.Token.Get(HTUKey); ok {
		return v.(string)
	}
	return ""
}

// HTM returns the htm claim of the proof.
func (p Proof) HTM() string {
	if v, ok := p.Token.Get(HTMKey); ok {
		return v.(string)
	}
	return ""
}

// Match checks whether the proof's key thumbprint, HTTP method and URL match the given values.
// The port, query and fragment of the URL are ignored.
// If there is a mismatch, the reason is returned as an error.
func (p Proof) Match(jkt string, method string, rawURL string) error {
	if p.Thumbprint() != jkt {
		return errors.New("jkt mismatch")
	}
	if method != p.HTM() {
		return fmt.Errorf("method mismatch, proof: %s, given: %s", p.HTM(), method)
	}
	if strip(p.HTU()) != strip(rawURL) {
		return fmt.Errorf("url mismatch, proof: %s, given: %s", strip(p.HTU()), strip(rawURL))
	}
	return nil
}

// MatchesAccessToken checks whether the ath claim equals the SHA256 hash of the given access token.
func (p Proof) MatchesAccessToken(accessToken string) error {
	ath, ok := p.Token.Get(ATHKey)
	if !ok {
		return errors.New("missing ath claim")
	}
	if ath != hash.SHA256Sum([]byte(accessToken)).Base64URL() {
		return errors.New("ath/access token mismatch")
	}
	return nil
}

func (p Proof) String() string {
	return p.raw
}

func strip(raw string) string {
	parsed, _ := url.Parse(raw)
	parsed.Scheme = "https"
	parsed.Host = strings.Split(parsed.Host, ":")[0]
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return parsed.String()
}

func jwkIsPrivateKey(key jwk.Key) bool {
	// parsing as any private key type succeeding means a private key was embedded
	var rsaPrivateKey rsa.PrivateKey
	if err := key.Raw(&rsaPrivateKey); err == nil {
		return true
	}
	var ecPrivateKey ecdsa.PrivateKey
	if err := key.Raw(&ecPrivateKey); err == nil {
		return true
	}
	var edPrivateKey ed25519.PrivateKey
	if err := key.Raw(&edPrivateKey); err == nil {
		return true
	}
	return false
}
