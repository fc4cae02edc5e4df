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
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/multiformats/go-multicodec"

	"github.com/idx-network/idx-node/crypto"
	"github.com/idx-network/idx-node/didpeer"
	"github.com/idx-network/idx-node/openid4vc"
)

// nonceClaim is the claim carrying the server-issued cNonce in holder binding proofs.
const nonceClaim = "nonce"

// verifyProofs validates the holder binding proofs of a credential request and
// returns one holder binding per proven key. All proofs of a batch must share the
// same nonce, signing algorithm and binding method.
func (i *Issuer) verifyProofs(session IssuanceSession, configuration openid4vc.CredentialConfiguration, request openid4vc.CredentialRequest) ([]HolderBinding, error) {
	jwtProofs, attestation, err := collectProofs(request)
	if err != nil {
		return nil, err
	}
	if len(jwtProofs) == 0 && attestation == "" {
		return nil, i.proofError(session, openid4vc.InvalidProof, "credential request requires a holder binding proof", nil)
	}
	batchSize := 1
	if i.config.BatchCredentialIssuance != nil {
		batchSize = i.config.BatchCredentialIssuance.BatchSize
	}

	if attestation != "" {
		return i.verifyKeyAttestation(session, configuration, attestation, batchSize)
	}
	return i.verifyJWTProofs(session, configuration, jwtProofs, batchSize)
}

func collectProofs(request openid4vc.CredentialRequest) ([]string, string, error) {
	if request.Proof != nil && request.Proofs != nil {
		return nil, "", openid4vc.Error{Code: openid4vc.InvalidRequest, Description: "proof and proofs are mutually exclusive", StatusCode: http.StatusBadRequest}
	}
	if request.Proof != nil {
		switch request.Proof.ProofType {
		case openid4vc.ProofTypeJWT:
			return []string{request.Proof.JWT}, "", nil
		case openid4vc.ProofTypeAttestation:
			return nil, request.Proof.Attestation, nil
		default:
			return nil, "", openid4vc.Error{Code: openid4vc.InvalidProof, Description: fmt.Sprintf("unsupported proof type: %s", request.Proof.ProofType), StatusCode: http.StatusBadRequest}
		}
	}
	if request.Proofs != nil {
		if len(request.Proofs.JWT) > 0 && len(request.Proofs.Attestation) > 0 {
			return nil, "", openid4vc.Error{Code: openid4vc.InvalidRequest, Description: "proofs must contain a single proof type", StatusCode: http.StatusBadRequest}
		}
		if len(request.Proofs.Attestation) > 1 {
			return nil, "", openid4vc.Error{Code: openid4vc.InvalidProof, Description: "a credential request must contain exactly one key attestation", StatusCode: http.StatusBadRequest}
		}
		if len(request.Proofs.Attestation) == 1 {
			return nil, request.Proofs.Attestation[0], nil
		}
		return request.Proofs.JWT, "", nil
	}
	return nil, "", nil
}

func (i *Issuer) verifyJWTProofs(session IssuanceSession, configuration openid4vc.CredentialConfiguration, proofs []string, batchSize int) ([]HolderBinding, error) {
	if err := checkProofTypeSupported(configuration, openid4vc.ProofTypeJWT); err != nil {
		return nil, err
	}
	if len(proofs) > batchSize {
		return nil, openid4vc.Error{Code: openid4vc.InvalidRequest, Description: fmt.Sprintf("number of proofs (%d) exceeds the batch size (%d)", len(proofs), batchSize), StatusCode: http.StatusBadRequest}
	}
	allowedAlgs := allowedProofAlgorithms(configuration, openid4vc.ProofTypeJWT)

	var bindings []HolderBinding
	var sharedNonce string
	var sharedAlg string
	for _, proof := range proofs {
		binding, alg, nonce, err := i.verifyJWTProof(session, proof, allowedAlgs)
		if err != nil {
			return nil, err
		}
		if len(bindings) > 0 {
			if alg != sharedAlg {
				return nil, i.proofError(session, openid4vc.InvalidProof, "all proofs must use the same signing algorithm", nil)
			}
			if nonce != sharedNonce {
				return nil, i.proofError(session, openid4vc.InvalidProof, "all proofs must use the same nonce", nil)
			}
			if binding.Method != bindings[0].Method {
				return nil, i.proofError(session, openid4vc.InvalidProof, "all proofs must use the same holder binding method", nil)
			}
		}
		sharedAlg = alg
		sharedNonce = nonce
		bindings = append(bindings, *binding)
	}
	if err := i.consumeNonce(session, sharedNonce); err != nil {
		return nil, err
	}
	return bindings, nil
}

func (i *Issuer) verifyJWTProof(session IssuanceSession, proof string, allowedAlgs []string) (*HolderBinding, string, string, error) {
	message, err := jws.ParseString(proof)
	if err != nil {
		return nil, "", "", i.proofError(session, openid4vc.InvalidProof, "proof is not a valid JWT", err)
	}
	if len(message.Signatures()) != 1 {
		return nil, "", "", i.proofError(session, openid4vc.InvalidProof, "proof must have a single signature", nil)
	}
	headers := message.Signatures()[0].ProtectedHeaders()
	if headers.Type() != openid4vc.ProofJWTType {
		return nil, "", "", i.proofError(session, openid4vc.InvalidProof, fmt.Sprintf("proof typ must be %s", openid4vc.ProofJWTType), nil)
	}
	alg := headers.Algorithm()
	if !slices.Contains(allowedAlgs, alg.String()) {
		return nil, "", "", i.proofError(session, openid4vc.InvalidProof, fmt.Sprintf("proof alg %s is not supported", alg), nil)
	}

	binding, key, err := i.resolveProofKey(session, headers)
	if err != nil {
		return nil, "", "", err
	}
	token, err := jwt.ParseString(proof,
		jwt.WithKey(alg, key),
		jwt.WithValidate(true),
		jwt.WithAudience(i.config.IssuerURL))
	if err != nil {
		return nil, "", "", i.proofError(session, openid4vc.InvalidProof, "proof verification failed", err)
	}
	nonceValue, ok := token.Get(nonceClaim)
	nonce, _ := nonceValue.(string)
	if !ok || nonce == "" {
		return nil, "", "", i.proofError(session, openid4vc.InvalidProof, "proof is missing the nonce claim", nil)
	}
	return binding, alg.String(), nonce, nil
}

// resolveProofKey extracts the holder's key from the proof headers: either an
// embedded jwk or a kid referencing a did:key. Mixing both is rejected.
func (i *Issuer) resolveProofKey(session IssuanceSession, headers jws.Headers) (*HolderBinding, jwk.Key, error) {
	embedded := headers.JWK()
	kid := headers.KeyID()
	switch {
	case embedded != nil && kid != "":
		return nil, nil, i.proofError(session, openid4vc.InvalidProof, "proof must not contain both jwk and kid headers", nil)
	case embedded != nil:
		if jwkIsPrivate(embedded) {
			return nil, nil, i.proofError(session, openid4vc.InvalidProof, "proof jwk header contains a private key", nil)
		}
		return &HolderBinding{Method: HolderBindingJWK, Key: embedded}, embedded, nil
	case kid != "":
		if !strings.HasPrefix(kid, "did:key:") {
			return nil, nil, i.proofError(session, openid4vc.InvalidProof, "proof kid must reference a did:key", nil)
		}
		fingerprint, err := didpeer.FingerprintFromDIDKey(kid)
		if err != nil {
			return nil, nil, i.proofError(session, openid4vc.InvalidProof, "invalid did:key in proof kid", err)
		}
		codec, rawKey, err := didpeer.DecodeFingerprint(fingerprint)
		if err != nil {
			return nil, nil, i.proofError(session, openid4vc.InvalidProof, "invalid did:key in proof kid", err)
		}
		if codec != multicodec.Ed25519Pub {
			return nil, nil, i.proofError(session, openid4vc.InvalidProof, "unsupported did:key key type in proof kid", nil)
		}
		key, err := jwk.FromRaw(ed25519.PublicKey(rawKey))
		if err != nil {
			return nil, nil, i.proofError(session, openid4vc.InvalidProof, "invalid did:key in proof kid", err)
		}
		return &HolderBinding{Method: HolderBindingDID, DID: kid, Key: key}, key, nil
	default:
		return nil, nil, i.proofError(session, openid4vc.InvalidProof, "proof must contain a jwk or kid header", nil)
	}
}

// verifyKeyAttestation validates a key attestation JWT and returns one holder
// binding per attested key.
func (i *Issuer) verifyKeyAttestation(session IssuanceSession, configuration openid4vc.CredentialConfiguration, attestation string, batchSize int) ([]HolderBinding, error) {
	if err := checkProofTypeSupported(configuration, openid4vc.ProofTypeAttestation); err != nil {
		return nil, err
	}
	message, err := jws.ParseString(attestation)
	if err != nil {
		return nil, i.proofError(session, openid4vc.InvalidProof, "key attestation is not a valid JWT", err)
	}
	if len(message.Signatures()) != 1 {
		return nil, i.proofError(session, openid4vc.InvalidProof, "key attestation must have a single signature", nil)
	}
	headers := message.Signatures()[0].ProtectedHeaders()
	if headers.Type() != openid4vc.KeyAttestationJWTType {
		return nil, i.proofError(session, openid4vc.InvalidProof, fmt.Sprintf("key attestation typ must be %s", openid4vc.KeyAttestationJWTType), nil)
	}
	if !slices.Contains(allowedProofAlgorithms(configuration, openid4vc.ProofTypeAttestation), headers.Algorithm().String()) {
		return nil, i.proofError(session, openid4vc.InvalidProof, fmt.Sprintf("key attestation alg %s is not supported", headers.Algorithm()), nil)
	}

	// The attestation provider's signature is verified against the embedded jwk.
	// Whether the provider itself is trusted is evaluated by the credential mapper,
	// trust lists are deployment-specific.
	var token jwt.Token
	if headers.JWK() != nil {
		token, err = jwt.ParseString(attestation, jwt.WithKey(headers.Algorithm(), headers.JWK()), jwt.WithValidate(true))
	} else {
		token, err = jwt.ParseString(attestation, jwt.WithVerify(false), jwt.WithValidate(true))
	}
	if err != nil {
		return nil, i.proofError(session, openid4vc.InvalidProof, "key attestation verification failed", err)
	}

	nonceValue, _ := token.Get(nonceClaim)
	nonce, _ := nonceValue.(string)
	if nonce == "" {
		return nil, i.proofError(session, openid4vc.InvalidProof, "key attestation is missing the nonce claim", nil)
	}
	if err := i.consumeNonce(session, nonce); err != nil {
		return nil, err
	}
	if required := keyAttestationsRequired(configuration); required != nil {
		if err := i.checkAttestationPolicy(session, token, required); err != nil {
			return nil, err
		}
	}

	attestedKeys, err := parseAttestedKeys(token)
	if err != nil {
		return nil, i.proofError(session, openid4vc.InvalidProof, "invalid attested_keys claim", err)
	}
	if len(attestedKeys) == 0 {
		return nil, i.proofError(session, openid4vc.InvalidProof, "key attestation contains no attested keys", nil)
	}
	if len(attestedKeys) > batchSize {
		return nil, openid4vc.Error{Code: openid4vc.InvalidRequest, Description: fmt.Sprintf("number of attested keys (%d) exceeds the batch size (%d)", len(attestedKeys), batchSize), StatusCode: http.StatusBadRequest}
	}
	bindings := make([]HolderBinding, len(attestedKeys))
	for idx, key := range attestedKeys {
		bindings[idx] = HolderBinding{Method: HolderBindingJWK, Key: key}
	}
	return bindings, nil
}

func (i *Issuer) checkAttestationPolicy(session IssuanceSession, token jwt.Token, required *openid4vc.KeyAttestationsRequired) error {
	if len(required.KeyStorage) > 0 && !claimIntersects(token, "key_storage", required.KeyStorage) {
		return i.proofError(session, openid4vc.InvalidProof, "attested key storage does not meet the issuer's requirements", nil)
	}
	if len(required.UserAuthentication) > 0 && !claimIntersects(token, "user_authentication", required.UserAuthentication) {
		return i.proofError(session, openid4vc.InvalidProof, "attested user authentication does not meet the issuer's requirements", nil)
	}
	return nil
}

// consumeNonce checks that the nonce was issued for this session and invalidates
// it, a nonce proves freshness exactly once.
func (i *Issuer) consumeNonce(session IssuanceSession, nonce string) error {
	var boundSessionID string
	if err := i.nonces.GetAndDelete(nonce, &boundSessionID); err != nil || boundSessionID != session.ID {
		return i.proofError(session, openid4vc.InvalidNonce, "unknown or expired nonce", nil)
	}
	return nil
}

func (i *Issuer) proofError(session IssuanceSession, code openid4vc.ErrorCode, description string, cause error) error {
	result := openid4vc.Error{Code: code, Description: description, Err: cause, StatusCode: http.StatusBadRequest}
	// hand the wallet a fresh nonce so it can retry without an extra roundtrip
	if cNonce, expiresIn, err := i.freshCNonce(session); err == nil {
		result.CNonce = &cNonce
		result.CNonceExpiresIn = &expiresIn
	}
	return result
}

func checkProofTypeSupported(configuration openid4vc.CredentialConfiguration, proofType string) error {
	if len(configuration.ProofTypesSupported) == 0 {
		return nil
	}
	if _, supported := configuration.ProofTypesSupported[proofType]; !supported {
		return openid4vc.Error{Code: openid4vc.InvalidProof, Description: fmt.Sprintf("proof type %s is not supported for this credential", proofType), StatusCode: http.StatusBadRequest}
	}
	return nil
}

func allowedProofAlgorithms(configuration openid4vc.CredentialConfiguration, proofType string) []string {
	if metadata, exists := configuration.ProofTypesSupported[proofType]; exists && len(metadata.ProofSigningAlgValuesSupported) > 0 {
		return metadata.ProofSigningAlgValuesSupported
	}
	result := make([]string, len(crypto.SupportedAlgorithms))
	for i, alg := range crypto.SupportedAlgorithms {
		result[i] = alg.String()
	}
	return result
}

func keyAttestationsRequired(configuration openid4vc.CredentialConfiguration) *openid4vc.KeyAttestationsRequired {
	if metadata, exists := configuration.ProofTypesSupported[openid4vc.ProofTypeAttestation]; exists {
		return metadata.KeyAttestationsRequired
	}
	return nil
}

func parseAttestedKeys(token jwt.Token) ([]jwk.Key, error) {
	value, ok := token.Get("attested_keys")
	if !ok {
		return nil, errors.New("missing attested_keys claim")
	}
	entries, ok := value.([]interface{})
	if !ok {
		return nil, errors.New("attested_keys must be an array")
	}
	keys := make([]jwk.Key, len(entries))
	for i, entry := range entries {
		data, err := json.Marshal(entry)
		if err != nil {
			return nil, err
		}
		key, err := jwk.ParseKey(data)
		if err != nil {
			return nil, err
		}
		if jwkIsPrivate(key) {
			return nil, errors.New("attested_keys contains a private key")
		}
		keys[i] = key
	}
	return keys, nil
}

func claimIntersects(token jwt.Token, claim string, required []string) bool {
	value, ok := token.Get(claim)
	if !ok {
		return false
	}
	entries, ok := value.([]interface{})
	if !ok {
		return false
	}
	for _, entry := range entries {
		if s, ok := entry.(string); ok && slices.Contains(required, s) {
			return true
		}
	}
	return false
}

func jwkIsPrivate(key jwk.Key) bool {
	switch key.(type) {
	case jwk.RSAPrivateKey, jwk.ECDSAPrivateKey, jwk.OKPPrivateKey, jwk.SymmetricKey:
		return true
	}
	return false
}
