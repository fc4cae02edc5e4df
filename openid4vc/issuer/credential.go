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
	"context"
	"fmt"
	"net/http"
	"slices"

	"github.com/idx-network/idx-node/crypto"
	"github.com/idx-network/idx-node/openid4vc"
)

// CreateCredentialResponse handles a credential request: it matches the request
// against the session's offer, verifies the holder binding proofs, invokes the
// credential mapper and tracks issuance progress on the session.
func (i *Issuer) CreateCredentialResponse(ctx context.Context, requestContext *RequestContext, request openid4vc.CredentialRequest) (*openid4vc.CredentialResponse, error) {
	session := requestContext.Session
	previous := session.State
	if err := session.transition(StateCredentialRequestReceived); err != nil {
		return nil, openid4vc.Error{Code: openid4vc.InvalidRequest, Err: err, StatusCode: http.StatusBadRequest}
	}
	if err := i.store.Update(ctx, *session); err != nil {
		return nil, err
	}
	i.emit(*session, previous)

	configurationID, configuration, err := i.matchConfiguration(session, request, requestContext.Scopes)
	if err != nil {
		return nil, err
	}
	bindings, err := i.verifyProofs(*session, configuration, request)
	if err != nil {
		return nil, err
	}
	result, err := i.mapper(ctx, CredentialMapperInput{
		Session:         *session,
		ConfigurationID: configurationID,
		Configuration:   configuration,
		HolderBindings:  bindings,
	})
	if err != nil {
		return nil, openid4vc.Error{Code: openid4vc.ServerError, Err: fmt.Errorf("credential mapper failed: %w", err), StatusCode: http.StatusInternalServerError}
	}

	cNonce, cNonceExpiresIn, err := i.freshCNonce(*session)
	if err != nil {
		return nil, err
	}

	if result.Pending {
		stored, err := storeHolderBindings(bindings)
		if err != nil {
			return nil, openid4vc.Error{Code: openid4vc.ServerError, Err: err, StatusCode: http.StatusInternalServerError}
		}
		transaction := Transaction{
			ID:                        crypto.GenerateNonce(),
			CredentialConfigurationID: configurationID,
			NumberOfCredentials:       len(bindings),
			HolderBindings:            stored,
		}
		session.Transactions = append(session.Transactions, transaction)
		if err := i.store.Update(ctx, *session); err != nil {
			return nil, err
		}
		return &openid4vc.CredentialResponse{
			TransactionID:   transaction.ID,
			CNonce:          &cNonce,
			CNonceExpiresIn: &cNonceExpiresIn,
		}, nil
	}

	if err := validateMapperResult(result, configuration, len(bindings)); err != nil {
		return nil, err
	}
	if err := i.recordIssuance(ctx, session, configurationID); err != nil {
		return nil, err
	}
	return &openid4vc.CredentialResponse{
		Credentials:     credentialEntries(result.Credentials),
		CNonce:          &cNonce,
		CNonceExpiresIn: &cNonceExpiresIn,
	}, nil
}

// HandleDeferredCredentialRequest retries a deferred issuance transaction.
func (i *Issuer) HandleDeferredCredentialRequest(ctx context.Context, requestContext *RequestContext, request openid4vc.DeferredCredentialRequest) (*openid4vc.CredentialResponse, error) {
	session := requestContext.Session
	transactionIdx := slices.IndexFunc(session.Transactions, func(t Transaction) bool {
		return t.ID == request.TransactionID
	})
	if transactionIdx == -1 {
		return nil, openid4vc.Error{Code: openid4vc.InvalidTransactionID, Description: "unknown transaction_id", StatusCode: http.StatusBadRequest}
	}
	transaction := session.Transactions[transactionIdx]
	configuration, exists := i.config.CredentialConfigurationsSupported[transaction.CredentialConfigurationID]
	if !exists {
		return nil, openid4vc.Error{Code: openid4vc.ServerError, Err: fmt.Errorf("transaction references unknown credential configuration %s", transaction.CredentialConfigurationID), StatusCode: http.StatusInternalServerError}
	}
	bindings, err := restoreHolderBindings(transaction.HolderBindings)
	if err != nil {
		return nil, openid4vc.Error{Code: openid4vc.ServerError, Err: err, StatusCode: http.StatusInternalServerError}
	}
	result, err := i.mapper(ctx, CredentialMapperInput{
		Session:         *session,
		ConfigurationID: transaction.CredentialConfigurationID,
		Configuration:   configuration,
		HolderBindings:  bindings,
	})
	if err != nil {
		return nil, openid4vc.Error{Code: openid4vc.ServerError, Err: fmt.Errorf("credential mapper failed: %w", err), StatusCode: http.StatusInternalServerError}
	}
	if result.Pending {
		return nil, openid4vc.Error{Code: openid4vc.IssuancePending, Description: "credential issuance is still pending", StatusCode: http.StatusBadRequest}
	}
	if err := validateMapperResult(result, configuration, transaction.NumberOfCredentials); err != nil {
		return nil, err
	}
	session.Transactions = slices.Delete(session.Transactions, transactionIdx, transactionIdx+1)
	if err := i.recordIssuance(ctx, session, transaction.CredentialConfigurationID); err != nil {
		return nil, err
	}
	return &openid4vc.CredentialResponse{Credentials: credentialEntries(result.Credentials)}, nil
}

// matchConfiguration selects the credential configuration a request resolves to.
// Matching is staged so each failure mode yields a distinct error: unknown to the
// issuer, not in the offer, already issued, or not covered by the granted scope.
func (i *Issuer) matchConfiguration(session *IssuanceSession, request openid4vc.CredentialRequest, scopes []string) (string, openid4vc.CredentialConfiguration, error) {
	var none openid4vc.CredentialConfiguration
	var candidates []string
	switch {
	case request.CredentialConfigurationID != "":
		if _, exists := i.config.CredentialConfigurationsSupported[request.CredentialConfigurationID]; !exists {
			return "", none, openid4vc.Error{
				Code:        openid4vc.UnsupportedCredentialType,
				Description: fmt.Sprintf("credential configuration %s is not supported by this issuer", request.CredentialConfigurationID),
				StatusCode:  http.StatusBadRequest,
			}
		}
		candidates = []string{request.CredentialConfigurationID}
	case request.Format != "":
		formatSupported := false
		for id, configuration := range i.config.CredentialConfigurationsSupported {
			if configuration.Format != request.Format {
				continue
			}
			formatSupported = true
			if request.Vct != "" && configuration.Vct != request.Vct {
				continue
			}
			if request.Doctype != "" && configuration.Doctype != request.Doctype {
				continue
			}
			candidates = append(candidates, id)
		}
		if !formatSupported {
			return "", none, openid4vc.Error{
				Code:        openid4vc.UnsupportedCredentialFormat,
				Description: fmt.Sprintf("credential format %s is not supported by this issuer", request.Format),
				StatusCode:  http.StatusBadRequest,
			}
		}
		if len(candidates) == 0 {
			return "", none, openid4vc.Error{
				Code:        openid4vc.UnsupportedCredentialType,
				Description: "no supported credential configuration matches the credential request",
				StatusCode:  http.StatusBadRequest,
			}
		}
	default:
		return "", none, openid4vc.Error{
			Code:        openid4vc.InvalidRequest,
			Description: "credential request requires a credential configuration id or format",
			StatusCode:  http.StatusBadRequest,
		}
	}

	// restrict to the offer, preserving offer order
	var offered []string
	for _, id := range session.CredentialOffer.CredentialConfigurationIDs {
		if slices.Contains(candidates, id) {
			offered = append(offered, id)
		}
	}
	if len(offered) == 0 {
		return "", none, openid4vc.Error{
			Code:        openid4vc.InvalidRequest,
			Description: "Credential request does not match any credential configurations from credential offer",
			StatusCode:  http.StatusBadRequest,
		}
	}

	remaining := slices.DeleteFunc(offered, session.Issued)
	if len(remaining) == 0 {
		return "", none, openid4vc.Error{
			Code:        openid4vc.InvalidRequest,
			Description: "all matching credentials from the credential offer have already been issued",
			StatusCode:  http.StatusBadRequest,
		}
	}

	// the pre-authorized code flow grants the whole offer, the authorization code
	// flow only what the granted scopes cover
	if session.PreAuthorizedCode == "" {
		remaining = slices.DeleteFunc(remaining, func(id string) bool {
			return !slices.Contains(scopes, i.config.CredentialConfigurationsSupported[id].Scope)
		})
		if len(remaining) == 0 {
			return "", none, openid4vc.Error{
				Code:        openid4vc.InsufficientScope,
				Description: "granted scope does not allow issuance of the requested credential",
				StatusCode:  http.StatusForbidden,
			}
		}
	}
	return remaining[0], i.config.CredentialConfigurationsSupported[remaining[0]], nil
}

// recordIssuance appends the issued configuration and advances the session,
// completing it once every offered credential is issued and nothing is deferred.
func (i *Issuer) recordIssuance(ctx context.Context, session *IssuanceSession, configurationID string) error {
	session.IssuedCredentials = append(session.IssuedCredentials, configurationID)
	next := StateCredentialsPartiallyIssued
	if len(session.Transactions) == 0 && allIssued(*session) {
		next = StateCompleted
	}
	previous := session.State
	if err := session.transition(next); err != nil {
		return err
	}
	if err := i.store.Update(ctx, *session); err != nil {
		return err
	}
	i.emit(*session, previous)
	return nil
}

func allIssued(session IssuanceSession) bool {
	for _, id := range session.CredentialOffer.CredentialConfigurationIDs {
		if !session.Issued(id) {
			return false
		}
	}
	return true
}

func validateMapperResult(result *CredentialMapperResult, configuration openid4vc.CredentialConfiguration, expectedCount int) error {
	if result.Format != configuration.Format {
		return openid4vc.Error{
			Code:       openid4vc.ServerError,
			Err:        fmt.Errorf("credential mapper returned format %s, expected %s", result.Format, configuration.Format),
			StatusCode: http.StatusInternalServerError,
		}
	}
	if len(result.Credentials) != expectedCount {
		return openid4vc.Error{
			Code:       openid4vc.ServerError,
			Err:        fmt.Errorf("credential mapper returned %d credentials, expected %d", len(result.Credentials), expectedCount),
			StatusCode: http.StatusInternalServerError,
		}
	}
	return nil
}

func credentialEntries(credentials []interface{}) []openid4vc.CredentialResponseEntry {
	entries := make([]openid4vc.CredentialResponseEntry, len(credentials))
	for i, credential := range credentials {
		entries[i] = openid4vc.CredentialResponseEntry{Credential: credential}
	}
	return entries
}
