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

// Package didpeer implements the did:peer numbering algorithm 2 codec: a
// deterministic, reversible mapping between a set of verification keys plus
// DIDComm services and a did:peer:2 identifier.
package didpeer

import (
	"crypto"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	ssi "github.com/nuts-foundation/go-did"
	"github.com/nuts-foundation/go-did/did"

	"github.com/lestrrat-go/jwx/v2/x25519"
	"github.com/multiformats/go-multicodec"
)

// MethodName is the DID method name of peer DIDs.
const MethodName = "peer"

// numAlgo2Prefix prefixes all identifiers produced by this codec.
const numAlgo2Prefix = "did:peer:2"

const (
	purposeVerification = 'V'
	purposeEncryption   = 'E'
	purposeService      = 'S'
)

// peerDIDPattern matches the did:peer grammar for numbering algorithms 0, 1 and 2.
// NumAlgo 2 requires at least one purpose-letter token after the prefix.
var peerDIDPattern = regexp.MustCompile(`^did:peer:(([01]z[1-9a-km-zA-HJ-NP-Z]+)|(2(\.[VES][0-9a-zA-Z_-]+)+))$`)

// ParsingError signals a malformed peer DID or an unsupported construct inside one.
// It is fatal, callers must not retry.
type ParsingError struct {
	msg   string
	cause error
}

func (e ParsingError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s", e.msg, e.cause.Error())
	}
	return e.msg
}

func (e ParsingError) Unwrap() error {
	return e.cause
}

// Document is a decoded did:peer:2 document. It embeds a generic DID document and
// additionally carries the DIDComm services, which hold recipient and routing keys
// that a generic DID document service cannot express.
type Document struct {
	did.Document
	DIDCommServices []Service
}

// IsValidPeerDID reports whether the identifier matches the did:peer grammar.
func IsValidPeerDID(id did.DID) bool {
	return peerDIDPattern.MatchString(id.String())
}

// Encode maps a peer DID document to its did:peer:2 identifier. Authentication
// methods become V tokens, key agreement methods become E tokens and DIDComm
// services become one S token each.
func Encode(document Document) (did.DID, error) {
	var tokens []string
	for _, relationship := range document.Authentication {
		fingerprint, err := methodFingerprint(relationship.VerificationMethod)
		if err != nil {
			return did.DID{}, err
		}
		tokens = append(tokens, string(purposeVerification)+string(fingerprint))
	}
	for _, relationship := range document.KeyAgreement {
		fingerprint, err := methodFingerprint(relationship.VerificationMethod)
		if err != nil {
			return did.DID{}, err
		}
		tokens = append(tokens, string(purposeEncryption)+string(fingerprint))
	}
	for _, service := range document.DIDCommServices {
		token, err := encodeServiceToken(service)
		if err != nil {
			return did.DID{}, err
		}
		tokens = append(tokens, token)
	}
	if len(tokens) == 0 {
		return did.DID{}, ParsingError{msg: "a did:peer:2 requires at least one key or service"}
	}
	result, err := did.ParseDID(numAlgo2Prefix + "." + strings.Join(tokens, "."))
	if err != nil {
		return did.DID{}, err
	}
	return *result, nil
}

// ServiceToDID derives the did:peer:2 identifier of a single DIDComm service.
// The service's recipient keys (did:key identifiers) become V and derived E tokens,
// and are rewritten to local #key-N references inside the S token. Routing keys are
// expanded to did:key references with a key fragment.
func ServiceToDID(service Service) (did.DID, error) {
	var tokens []string
	rewritten := service
	rewritten.RecipientKeys = make([]string, len(service.RecipientKeys))
	for i, recipientKey := range service.RecipientKeys {
		fingerprint, err := FingerprintFromDIDKey(recipientKey)
		if err != nil {
			return did.DID{}, err
		}
		codec, raw, err := DecodeFingerprint(fingerprint)
		if err != nil {
			return did.DID{}, err
		}
		if codec != multicodec.Ed25519Pub {
			return did.DID{}, ParsingError{msg: fmt.Sprintf("recipient key %s is not an Ed25519 did:key", recipientKey)}
		}
		keyAgreementKey, err := DeriveKeyAgreementKey(raw)
		if err != nil {
			return did.DID{}, err
		}
		keyAgreementFingerprint, err := X25519Fingerprint(keyAgreementKey)
		if err != nil {
			return did.DID{}, err
		}
		tokens = append(tokens,
			string(purposeVerification)+string(fingerprint),
			string(purposeEncryption)+string(keyAgreementFingerprint))
		rewritten.RecipientKeys[i] = fmt.Sprintf("#key-%d", i+1)
	}
	var err error
	if rewritten.RoutingKeys, err = expandDIDKeyReferences(service.RoutingKeys); err != nil {
		return did.DID{}, err
	}
	token, err := encodeServiceToken(rewritten)
	if err != nil {
		return did.DID{}, err
	}
	tokens = append(tokens, token)
	result, err := did.ParseDID(numAlgo2Prefix + "." + strings.Join(tokens, "."))
	if err != nil {
		return did.DID{}, err
	}
	return *result, nil
}

// ServiceToInlineKeysDID derives a did:peer:2 identifier consisting of a single S
// token in which recipient and routing keys are inlined as did:key references
// instead of local #key-N references. New identifiers should use ServiceToDID,
// this variant only exists to look up connections created by old encoders.
func ServiceToInlineKeysDID(service Service) (did.DID, error) {
	rewritten := service
	var err error
	if rewritten.RecipientKeys, err = expandDIDKeyReferences(service.RecipientKeys); err != nil {
		return did.DID{}, err
	}
	if rewritten.RoutingKeys, err = expandDIDKeyReferences(service.RoutingKeys); err != nil {
		return did.DID{}, err
	}
	token, err := encodeServiceToken(rewritten)
	if err != nil {
		return did.DID{}, err
	}
	result, err := did.ParseDID(numAlgo2Prefix + "." + token)
	if err != nil {
		return did.DID{}, err
	}
	return *result, nil
}

// Decode parses a did:peer:2 identifier into its DID document. It accepts both
// historical service encodings: one S token per service and a single S token
// containing an array of services.
func Decode(id did.DID) (*Document, error) {
	idString := id.String()
	if !strings.HasPrefix(idString, numAlgo2Prefix+".") {
		return nil, ParsingError{msg: fmt.Sprintf("not a did:peer:2 identifier: %s", idString)}
	}
	document := &Document{
		Document: did.Document{
			Context: []interface{}{did.DIDContextV1URI()},
			ID:      id,
		},
	}
	// local #key-N references inside S tokens resolve against decoded key material
	keyReferences := map[string]Fingerprint{}
	keyIndex := 0
	var serviceTokens []string
	for _, token := range strings.Split(strings.TrimPrefix(idString, numAlgo2Prefix+"."), ".") {
		if len(token) < 2 {
			return nil, ParsingError{msg: fmt.Sprintf("invalid did:peer:2 token: %s", token)}
		}
		purpose, value := token[0], token[1:]
		switch purpose {
		case purposeVerification, purposeEncryption:
			keyIndex++
			fingerprint := Fingerprint(value)
			method, err := decodeVerificationMethod(id, keyIndex, fingerprint)
			if err != nil {
				return nil, err
			}
			if purpose == purposeVerification {
				document.AddAuthenticationMethod(method)
			} else {
				document.AddKeyAgreement(method)
			}
			keyReferences[fmt.Sprintf("#key-%d", keyIndex)] = fingerprint
		case purposeService:
			// decoded after all keys are known
			serviceTokens = append(serviceTokens, value)
		default:
			return nil, ParsingError{msg: fmt.Sprintf("unsupported did:peer:2 purpose: %c", purpose)}
		}
	}
	serviceCountPerType := map[string]int{}
	for _, token := range serviceTokens {
		services, err := decodeServiceToken(token, keyReferences, serviceCountPerType)
		if err != nil {
			return nil, err
		}
		document.DIDCommServices = append(document.DIDCommServices, services...)
	}
	for _, service := range document.DIDCommServices {
		document.Service = append(document.Service, did.Service{
			ID:              ssi.MustParseURI(idString + service.ID),
			Type:            service.Type,
			ServiceEndpoint: service.ServiceEndpoint,
		})
	}
	return document, nil
}

func encodeServiceToken(service Service) (string, error) {
	data, err := json.Marshal(abbreviateService(service))
	if err != nil {
		return "", err
	}
	return string(purposeService) + base64.RawURLEncoding.EncodeToString(data), nil
}

func decodeServiceToken(token string, keyReferences map[string]Fingerprint, countPerType map[string]int) ([]Service, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ParsingError{msg: "invalid base64url in service token", cause: err}
	}
	var abbreviated []abbreviatedService
	if strings.HasPrefix(strings.TrimSpace(string(data)), "[") {
		// legacy encoding: a single S token holding an array of services
		if err := json.Unmarshal(data, &abbreviated); err != nil {
			return nil, ParsingError{msg: "invalid JSON in service token", cause: err}
		}
	} else {
		var single abbreviatedService
		if err := json.Unmarshal(data, &single); err != nil {
			return nil, ParsingError{msg: "invalid JSON in service token", cause: err}
		}
		abbreviated = []abbreviatedService{single}
	}
	var services []Service
	for _, entry := range abbreviated {
		service := entry.expand("")
		service.ID = serviceID(service.Type, countPerType[service.Type])
		countPerType[service.Type]++
		service.RecipientKeys = resolveKeyReferences(service.RecipientKeys, keyReferences)
		service.RoutingKeys = resolveKeyReferences(service.RoutingKeys, keyReferences)
		services = append(services, service)
	}
	return services, nil
}

// resolveKeyReferences replaces local #key-N references with the did:key form of the
// referenced key material. References to unknown keys and inlined did:key entries
// pass through untouched.
func resolveKeyReferences(keys []string, keyReferences map[string]Fingerprint) []string {
	if keys == nil {
		return nil
	}
	resolved := make([]string, len(keys))
	for i, key := range keys {
		if fingerprint, ok := keyReferences[key]; ok {
			resolved[i] = fingerprint.DIDKey()
		} else {
			resolved[i] = key
		}
	}
	return resolved
}

func expandDIDKeyReferences(didKeys []string) ([]string, error) {
	if didKeys == nil {
		return nil, nil
	}
	expanded := make([]string, len(didKeys))
	for i, didKey := range didKeys {
		fingerprint, err := FingerprintFromDIDKey(didKey)
		if err != nil {
			return nil, err
		}
		expanded[i] = fingerprint.DIDKey()
	}
	return expanded, nil
}

func decodeVerificationMethod(owner did.DID, keyIndex int, fingerprint Fingerprint) (*did.VerificationMethod, error) {
	codec, raw, err := DecodeFingerprint(fingerprint)
	if err != nil {
		return nil, err
	}
	var publicKey crypto.PublicKey
	switch codec {
	case multicodec.Ed25519Pub:
		if len(raw) != ed25519.PublicKeySize {
			return nil, ParsingError{msg: fmt.Sprintf("invalid Ed25519 public key length: %d", len(raw))}
		}
		publicKey = ed25519.PublicKey(raw)
	case multicodec.X25519Pub:
		if len(raw) != x25519.PublicKeySize {
			return nil, ParsingError{msg: fmt.Sprintf("invalid X25519 public key length: %d", len(raw))}
		}
		publicKey = x25519.PublicKey(raw)
	default:
		return nil, ParsingError{msg: fmt.Sprintf("unsupported key multicodec: 0x%x", uint64(codec))}
	}
	keyID := did.DIDURL{DID: owner, Fragment: fmt.Sprintf("key-%d", keyIndex)}
	return did.NewVerificationMethod(keyID, ssi.JsonWebKey2020, owner, publicKey)
}

// methodFingerprint derives the multicodec fingerprint of a verification method's public key.
func methodFingerprint(method *did.VerificationMethod) (Fingerprint, error) {
	publicKey, err := method.PublicKey()
	if err != nil {
		return "", ParsingError{msg: fmt.Sprintf("cannot resolve public key of %s", method.ID), cause: err}
	}
	switch key := publicKey.(type) {
	case ed25519.PublicKey:
		return Ed25519Fingerprint(key)
	case x25519.PublicKey:
		return X25519Fingerprint(key)
	default:
		return "", ParsingError{msg: fmt.Sprintf("unsupported key type of %s", method.ID)}
	}
}
