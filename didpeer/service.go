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

package didpeer

import (
	"fmt"
	"strings"
)

const (
	// DIDCommV1ServiceType is the service type of a DIDComm v1 endpoint.
	DIDCommV1ServiceType = "did-communication"
	// DIDCommV2ServiceType is the service type of a DIDComm v2 endpoint.
	DIDCommV2ServiceType = "DIDCommMessaging"
	// didCommV2ServiceTypeAbbreviation is the abbreviated form of DIDCommV2ServiceType in S tokens.
	didCommV2ServiceTypeAbbreviation = "dm"
)

// Service is a DIDComm service descriptor as encoded in did:peer:2 identifiers.
// Unlike a generic DID document service it carries recipient and routing keys.
type Service struct {
	// ID is the service identifier, a local reference like #service-0.
	ID string
	// Type is the full (unabbreviated) service type.
	Type string
	// ServiceEndpoint is the URL the service is reachable on.
	ServiceEndpoint string
	// Priority orders multiple services of the same type. Only used by did-communication.
	Priority *int
	// RecipientKeys reference the keys messages must be encrypted to, as local #key-N
	// references or did:key identifiers.
	RecipientKeys []string
	// RoutingKeys reference mediator keys, as did:key identifiers.
	RoutingKeys []string
	// Accept lists the supported DIDComm profiles.
	Accept []string
}

// abbreviatedService is the compact JSON form of a Service inside an S token.
// Field order matters: encoders produced s, t, priority, recipientKeys, r, a and
// identifiers are compared byte for byte.
type abbreviatedService struct {
	ServiceEndpoint string   `json:"s,omitempty"`
	Type            string   `json:"t,omitempty"`
	Priority        *int     `json:"priority,omitempty"`
	RecipientKeys   []string `json:"recipientKeys,omitempty"`
	RoutingKeys     []string `json:"r,omitempty"`
	Accept          []string `json:"a,omitempty"`
}

func abbreviateService(service Service) abbreviatedService {
	abbreviated := abbreviatedService{
		ServiceEndpoint: service.ServiceEndpoint,
		Type:            service.Type,
		Priority:        service.Priority,
		RecipientKeys:   service.RecipientKeys,
		RoutingKeys:     service.RoutingKeys,
		Accept:          service.Accept,
	}
	if abbreviated.Type == DIDCommV2ServiceType {
		abbreviated.Type = didCommV2ServiceTypeAbbreviation
	}
	if abbreviated.Type == DIDCommV1ServiceType && abbreviated.Priority == nil {
		// historical encoders always wrote an explicit priority for did-communication
		priority := 0
		abbreviated.Priority = &priority
	}
	return abbreviated
}

func (a abbreviatedService) expand(id string) Service {
	service := Service{
		ID:              id,
		Type:            a.Type,
		ServiceEndpoint: a.ServiceEndpoint,
		Priority:        a.Priority,
		RecipientKeys:   a.RecipientKeys,
		RoutingKeys:     a.RoutingKeys,
		Accept:          a.Accept,
	}
	if service.Type == didCommV2ServiceTypeAbbreviation {
		service.Type = DIDCommV2ServiceType
	}
	return service
}

// serviceID derives the local identifier of the index-th decoded service of the given type.
func serviceID(serviceType string, index int) string {
	return fmt.Sprintf("#%s-%d", strings.ToLower(serviceType), index)
}
