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
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/idx-network/idx-node/openid4vc"
)

const defaultConfigFile = "idx.yaml"
const configFileFlag = "configfile"

const envPrefix = "IDX_"
const delimiter = "."
const listSeparator = ","

// Config holds the node configuration, loaded from flag defaults, the config
// file, environment variables and explicit flags, in that order.
type Config struct {
	Verbosity    string       `koanf:"verbosity"`
	LoggerFormat string       `koanf:"loggerformat"`
	Datadir      string       `koanf:"datadir"`
	HTTP         HTTPConfig   `koanf:"http"`
	Issuer       IssuerConfig `koanf:"issuer"`
}

// HTTPConfig configures the HTTP interface.
type HTTPConfig struct {
	Address string `koanf:"address"`
}

// IssuerConfig configures the OpenID4VCI issuer.
type IssuerConfig struct {
	// URL is the issuer identifier, an absolute URL without query or fragment.
	URL string `koanf:"url"`
	// DefinitionsFile points to a JSON file holding the supported credential
	// configurations, keyed by configuration id.
	DefinitionsFile string `koanf:"definitionsfile"`
	// DPoPRequired requires all access tokens to be DPoP-bound.
	DPoPRequired bool `koanf:"dpoprequired"`
	// WalletAttestationRequired requires client attestation at the token endpoint.
	WalletAttestationRequired bool `koanf:"walletattestationrequired"`
	// BatchSize enables batch credential issuance with the given maximum number of proofs.
	BatchSize int `koanf:"batchsize"`
	// OfferTTL bounds the lifetime of an issuance session.
	OfferTTL time.Duration `koanf:"offerttl"`
	// AccessTokenTTL bounds the lifetime of issued access tokens.
	AccessTokenTTL time.Duration `koanf:"accesstokenttl"`
	// AuthorizationServers lists external authorization servers whose access
	// tokens are accepted at the credential endpoint.
	AuthorizationServers []AuthorizationServerConfig `koanf:"authorizationservers"`
}

// AuthorizationServerConfig configures a trusted external authorization server.
type AuthorizationServerConfig struct {
	Issuer       string `koanf:"issuer"`
	ClientID     string `koanf:"clientid"`
	ClientSecret string `koanf:"clientsecret"`
}

func serverFlags() *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("server", pflag.ContinueOnError)
	flagSet.String(configFileFlag, defaultConfigFile, "Node config file")
	flagSet.String("verbosity", "info", "Log level (trace, debug, info, warn, error)")
	flagSet.String("loggerformat", "text", "Log format (text, json)")
	flagSet.String("datadir", "./data", "Directory where the node stores its files")
	flagSet.String("http.address", ":1323", "Address and port the HTTP server listens on")
	flagSet.String("issuer.url", "", "Issuer identifier, an absolute URL without query or fragment")
	flagSet.String("issuer.definitionsfile", "credential-definitions.json", "JSON file holding the supported credential configurations")
	flagSet.Bool("issuer.dpoprequired", false, "Require all access tokens to be DPoP-bound")
	flagSet.Bool("issuer.walletattestationrequired", false, "Require wallet attestation at the token endpoint")
	flagSet.Int("issuer.batchsize", 0, "Maximum number of proofs per credential request, 0 disables batch issuance")
	flagSet.Duration("issuer.offerttl", 0, "Lifetime of credential offers, 0 uses the default")
	flagSet.Duration("issuer.accesstokenttl", 0, "Lifetime of access tokens, 0 uses the default")
	return flagSet
}

// loadConfig loads the configuration following the order: flag defaults, config
// file, environment variables, explicit flags.
func loadConfig(flags *pflag.FlagSet) (*Config, error) {
	configMap := koanf.New(delimiter)
	if err := configMap.Load(posflag.Provider(flags, delimiter, configMap), nil); err != nil {
		return nil, err
	}
	if err := loadFromFile(configMap, resolveConfigFilePath(flags)); err != nil {
		return nil, err
	}
	if err := loadFromEnv(configMap); err != nil {
		return nil, err
	}
	if err := configMap.Load(posflag.ProviderWithFlag(flags, delimiter, configMap, func(flag *pflag.Flag) (string, interface{}) {
		if !flag.Changed {
			return "", nil
		}
		return flag.Name, posflag.FlagVal(flags, flag)
	}), nil); err != nil {
		return nil, err
	}
	config := Config{}
	if err := configMap.UnmarshalWithConf("", &config, koanf.UnmarshalConf{FlatPaths: false}); err != nil {
		return nil, err
	}
	return &config, nil
}

func loadFromFile(configMap *koanf.Koanf, filepath string) error {
	if filepath == "" {
		return nil
	}
	if err := configMap.Load(file.Provider(filepath), yaml.Parser()); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("unable to load config file %s: %w", filepath, err)
		}
	}
	return nil
}

func loadFromEnv(configMap *koanf.Koanf) error {
	provider := env.Provider(delimiter, env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(rawKey string, rawValue string) (string, any) {
			key := strings.Replace(strings.ToLower(strings.TrimPrefix(rawKey, envPrefix)), "_", delimiter, -1)
			if strings.Contains(rawValue, listSeparator) {
				values := strings.Split(rawValue, listSeparator)
				for i, value := range values {
					values[i] = strings.TrimSpace(value)
				}
				return key, values
			}
			return key, rawValue
		},
	})
	return configMap.Load(provider, nil)
}

// resolveConfigFilePath resolves the config file path from the environment or flags,
// falling back to the default location.
func resolveConfigFilePath(flags *pflag.FlagSet) string {
	k := koanf.New(delimiter)
	_ = k.Load(env.Provider(delimiter, env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(rawKey string, rawValue string) (string, any) {
			return strings.Replace(strings.ToLower(strings.TrimPrefix(rawKey, envPrefix)), "_", delimiter, -1), rawValue
		},
	}), nil)
	_ = k.Load(posflag.Provider(flags, delimiter, k), nil)
	return k.String(configFileFlag)
}

// loadCredentialDefinitions reads the supported credential configurations from
// the definitions file.
func loadCredentialDefinitions(filepath string) (map[string]openid4vc.CredentialConfiguration, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("unable to read credential definitions file: %w", err)
	}
	var definitions map[string]openid4vc.CredentialConfiguration
	if err := json.Unmarshal(data, &definitions); err != nil {
		return nil, fmt.Errorf("unable to parse credential definitions file %s: %w", filepath, err)
	}
	if len(definitions) == 0 {
		return nil, fmt.Errorf("credential definitions file %s contains no credential configurations", filepath)
	}
	return definitions, nil
}
