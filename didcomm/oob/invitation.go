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

// Package oob implements DIDComm out-of-band invitations: creation, the
// ?oob= URL encoding and the mapping of invitation services to peer DIDs.
package oob

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/nuts-foundation/go-did/did"

	"github.com/idx-network/idx-node/didpeer"
)

// InvitationMessageType is the DIDComm message type of an out-of-band invitation.
const InvitationMessageType = "https://didcomm.org/out-of-band/1.1/invitation"

// invitationQueryParam carries the base64url encoded invitation in an invitation URL.
const invitationQueryParam = "oob"

// Invitation is a DIDComm out-of-band invitation message.
type Invitation struct {
	Type               string       `json:"@type"`
	ID                 string       `json:"@id"`
	Label              string       `json:"label,omitempty"`
	Goal               string       `json:"goal,omitempty"`
	GoalCode           string       `json:"goal_code,omitempty"`
	Accept             []string     `json:"accept,omitempty"`
	HandshakeProtocols []string     `json:"handshake_protocols,omitempty"`
	Services           []ServiceRef `json:"services"`
	ImageURL           string       `json:"imageUrl,omitempty"`
}

// ServiceRef is one entry of an invitation's services array: either a DID
// reference or an inline DIDComm service. Exactly one of the fields is set.
type ServiceRef struct {
	// DID references a resolvable DID whose document holds the service.
	DID string
	// Inline holds the service itself.
	Inline *didpeer.Service
}

// inlineService is the unabbreviated JSON form of an inline invitation service.
type inlineService struct {
	ID              string   `json:"id,omitempty"`
	Type            string   `json:"type"`
	ServiceEndpoint string   `json:"serviceEndpoint"`
	RecipientKeys   []string `json:"recipientKeys,omitempty"`
	RoutingKeys     []string `json:"routingKeys,omitempty"`
	Accept          []string `json:"accept,omitempty"`
}

func (s ServiceRef) MarshalJSON() ([]byte, error) {
	if s.DID != "" {
		return json.Marshal(s.DID)
	}
	if s.Inline == nil {
		return nil, errors.New("invitation service is neither a did reference nor an inline service")
	}
	return json.Marshal(inlineService{
		ID:              s.Inline.ID,
		Type:            s.Inline.Type,
		ServiceEndpoint: s.Inline.ServiceEndpoint,
		RecipientKeys:   s.Inline.RecipientKeys,
		RoutingKeys:     s.Inline.RoutingKeys,
		Accept:          s.Inline.Accept,
	})
}

func (s *ServiceRef) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, `"`) {
		return json.Unmarshal(data, &s.DID)
	}
	var inline inlineService
	if err := json.Unmarshal(data, &inline); err != nil {
		return err
	}
	s.Inline = &didpeer.Service{
		ID:              inline.ID,
		Type:            inline.Type,
		ServiceEndpoint: inline.ServiceEndpoint,
		RecipientKeys:   inline.RecipientKeys,
		RoutingKeys:     inline.RoutingKeys,
		Accept:          inline.Accept,
	}
	return nil
}

// New creates an invitation with a fresh id. At least one service is required.
func New(label string, services ...ServiceRef) (*Invitation, error) {
	if len(services) == 0 {
		return nil, errors.New("an invitation requires at least one service")
	}
	for _, service := range services {
		if service.DID == "" && service.Inline == nil {
			return nil, errors.New("invitation service is neither a did reference nor an inline service")
		}
	}
	return &Invitation{
		Type:     InvitationMessageType,
		ID:       uuid.NewString(),
		Label:    label,
		Services: services,
	}, nil
}

// ToURL encodes the invitation as an invitation URL on the given endpoint.
func (i Invitation) ToURL(endpoint string) (string, error) {
	endpointURL, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(i)
	if err != nil {
		return "", err
	}
	query := endpointURL.Query()
	query.Set(invitationQueryParam, base64.RawURLEncoding.EncodeToString(data))
	endpointURL.RawQuery = query.Encode()
	return endpointURL.String(), nil
}

// FromURL parses an invitation URL produced by ToURL. Padded base64 is tolerated.
func FromURL(invitationURL string) (*Invitation, error) {
	parsed, err := url.Parse(invitationURL)
	if err != nil {
		return nil, err
	}
	encoded := parsed.Query().Get(invitationQueryParam)
	if encoded == "" {
		return nil, fmt.Errorf("invitation URL is missing the %s query parameter", invitationQueryParam)
	}
	data, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(encoded, "="))
	if err != nil {
		return nil, fmt.Errorf("invalid base64url in invitation URL: %w", err)
	}
	var invitation Invitation
	if err := json.Unmarshal(data, &invitation); err != nil {
		return nil, fmt.Errorf("invalid invitation JSON: %w", err)
	}
	if invitation.Type != InvitationMessageType {
		return nil, fmt.Errorf("unsupported invitation message type: %s", invitation.Type)
	}
	return &invitation, nil
}

// DIDs returns the DIDs an invitation can be correlated by: referenced DIDs
// verbatim, and for every inline service both its current did:peer:2 form and the
// legacy inline-keys form still used to look up old connections.
func (i Invitation) DIDs() ([]did.DID, error) {
	var results []did.DID
	for _, service := range i.Services {
		if service.DID != "" {
			id, err := did.ParseDID(service.DID)
			if err != nil {
				return nil, err
			}
			results = append(results, *id)
			continue
		}
		current, err := didpeer.ServiceToDID(*service.Inline)
		if err != nil {
			return nil, err
		}
		legacy, err := didpeer.ServiceToInlineKeysDID(*service.Inline)
		if err != nil {
			return nil, err
		}
		results = append(results, current, legacy)
	}
	return results, nil
}
