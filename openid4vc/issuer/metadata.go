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
	"github.com/idx-network/idx-node/core"
	"github.com/idx-network/idx-node/openid4vc"
)

// Metadata assembles the credential issuer metadata document.
func (i *Issuer) Metadata() openid4vc.CredentialIssuerMetadata {
	result := openid4vc.CredentialIssuerMetadata{
		CredentialIssuer:                  i.config.IssuerURL,
		CredentialEndpoint:                core.JoinURLPaths(i.config.IssuerURL, openid4vc.CredentialEndpointPath),
		DeferredCredentialEndpoint:        core.JoinURLPaths(i.config.IssuerURL, openid4vc.DeferredCredentialEndpointPath),
		BatchCredentialIssuance:           i.config.BatchCredentialIssuance,
		CredentialConfigurationsSupported: i.config.CredentialConfigurationsSupported,
	}
	for _, server := range i.config.AuthorizationServers {
		result.AuthorizationServers = append(result.AuthorizationServers, server.Issuer)
	}
	if len(result.AuthorizationServers) > 0 {
		// the issuer's own token endpoint remains available for stateful offers
		result.AuthorizationServers = append([]string{i.config.IssuerURL}, result.AuthorizationServers...)
	}
	return result
}

// AuthorizationServerMetadata assembles the metadata document of the issuer's
// built-in authorization server.
func (i *Issuer) AuthorizationServerMetadata() openid4vc.AuthorizationServerMetadata {
	return openid4vc.AuthorizationServerMetadata{
		Issuer:                        i.config.IssuerURL,
		AuthorizationEndpoint:         core.JoinURLPaths(i.config.IssuerURL, openid4vc.AuthorizationEndpointPath),
		TokenEndpoint:                 core.JoinURLPaths(i.config.IssuerURL, openid4vc.TokenEndpointPath),
		GrantTypesSupported:           []string{openid4vc.PreAuthorizedCodeGrantType, openid4vc.AuthorizationCodeGrantType},
		CodeChallengeMethodsSupported: []string{"S256"},
		DPoPSigningAlgValuesSupported: algorithmNames(),
		PreAuthorizedGrantAnonymousAccessSupported: true,
	}
}

func algorithmNames() []string {
	return allowedProofAlgorithms(openid4vc.CredentialConfiguration{}, openid4vc.ProofTypeJWT)
}
