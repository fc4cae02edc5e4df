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

// Package core contains helpers shared by the other packages.
package core

import (
	"errors"
	"net/url"
	"strings"
)

// JoinURLPaths joins the given parts into a URL, making sure there's exactly one slash between them.
// Unlike path.Join it does not collapse double slashes elsewhere in the parts.
func JoinURLPaths(parts ...string) string {
	if len(parts) == 0 {
		return ""
	}
	result := parts[0]
	for i := 1; i < len(parts); i++ {
		if parts[i] == "" {
			continue
		}
		result = strings.TrimSuffix(result, "/") + "/" + strings.TrimPrefix(parts[i], "/")
	}
	return result
}

// ParseIssuerURL parses the given input as an absolute http(s) URL without query or fragment,
// as required for OAuth2 issuer identifiers.
func ParseIssuerURL(input string) (*url.URL, error) {
	parsed, err := url.Parse(input)
	if err != nil {
		return nil, err
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return nil, errors.New("issuer URL scheme must be http or https")
	}
	if parsed.Host == "" {
		return nil, errors.New("issuer URL must be absolute")
	}
	if parsed.RawQuery != "" || parsed.Fragment != "" {
		return nil, errors.New("issuer URL must not contain query or fragment")
	}
	return parsed, nil
}
