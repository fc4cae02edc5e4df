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
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/idx-network/idx-node/crypto"
	"github.com/idx-network/idx-node/openid4vc"
	"github.com/idx-network/idx-node/openid4vc/issuer"
)

const credentialValidity = 24 * time.Hour * 365

// newCredentialMapper returns a credential signer producing JWT-encoded
// credentials bound to the holder key from the verified proof.
func newCredentialMapper(keyStore crypto.KeyStore, issuerURL string, kid string) issuer.CredentialMapper {
	return func(ctx context.Context, input issuer.CredentialMapperInput) (*issuer.CredentialMapperResult, error) {
		switch input.Configuration.Format {
		case openid4vc.SDJWTVCFormat, openid4vc.SDJWTDCFormat, openid4vc.VerifiableCredentialJWTFormat:
		default:
			return nil, fmt.Errorf("credential format %s is not supported by this node's credential signer", input.Configuration.Format)
		}
		credentials := make([]interface{}, len(input.HolderBindings))
		for idx, binding := range input.HolderBindings {
			claims, headers := credentialClaims(input, issuerURL, binding)
			signed, err := keyStore.SignJWT(ctx, claims, headers, kid)
			if err != nil {
				return nil, fmt.Errorf("unable to sign credential: %w", err)
			}
			credentials[idx] = signed
		}
		return &issuer.CredentialMapperResult{Format: input.Configuration.Format, Credentials: credentials}, nil
	}
}

func credentialClaims(input issuer.CredentialMapperInput, issuerURL string, binding issuer.HolderBinding) (map[string]interface{}, map[string]interface{}) {
	now := time.Now()
	claims := map[string]interface{}{
		jwt.IssuerKey:     issuerURL,
		jwt.IssuedAtKey:   now.Unix(),
		jwt.ExpirationKey: now.Add(credentialValidity).Unix(),
	}
	headers := map[string]interface{}{}
	switch input.Configuration.Format {
	case openid4vc.SDJWTVCFormat, openid4vc.SDJWTDCFormat:
		claims["vct"] = input.Configuration.Vct
		headers[jws.TypeKey] = input.Configuration.Format
	case openid4vc.VerifiableCredentialJWTFormat:
		claims["vc"] = input.Configuration.CredentialDefinition
		headers[jws.TypeKey] = "JWT"
	}
	if binding.Method == issuer.HolderBindingDID {
		claims[jwt.SubjectKey] = binding.DID
	} else {
		claims["cnf"] = map[string]interface{}{"jwk": binding.Key}
	}
	return claims, headers
}
