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
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"path"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	v0 "github.com/idx-network/idx-node/api/openid4vc/v0"
	"github.com/idx-network/idx-node/crypto"
	"github.com/idx-network/idx-node/openid4vc"
	"github.com/idx-network/idx-node/openid4vc/client"
	"github.com/idx-network/idx-node/openid4vc/issuer"
	"github.com/idx-network/idx-node/storage"
)

const accessTokenKID = "oauth2-access-tokens"
const credentialKID = "credential-signing"

const httpClientTimeout = 10 * time.Second
const shutdownTimeout = 5 * time.Second

// runServer wires the node and serves HTTP until the context is cancelled or a
// termination signal arrives.
func runServer(ctx context.Context, config Config) error {
	if err := configureLogging(config); err != nil {
		return err
	}

	definitions, err := loadCredentialDefinitions(config.Issuer.DefinitionsFile)
	if err != nil {
		return err
	}
	kvStore, err := storage.CreateBBoltStore(path.Join(config.Datadir, "openid4vc", "issuer.db"))
	if err != nil {
		return fmt.Errorf("unable to create session store: %w", err)
	}
	store := issuer.NewStoabsStore(kvStore)
	defer store.Close()
	sessions := storage.NewInMemorySessionDatabase()
	defer sessions.Close()

	keyStore := crypto.NewMemoryKeyStore()
	for _, kid := range []string{accessTokenKID, credentialKID} {
		if err := keyStore.New(kid); err != nil {
			return fmt.Errorf("unable to generate key %s: %w", kid, err)
		}
	}

	issuerConfig := issuer.Config{
		IssuerURL:                         config.Issuer.URL,
		AccessTokenKID:                    accessTokenKID,
		CredentialConfigurationsSupported: definitions,
		DPoPRequired:                      config.Issuer.DPoPRequired,
		WalletAttestationRequired:         config.Issuer.WalletAttestationRequired,
		StatefulOfferTTL:                  config.Issuer.OfferTTL,
		AccessTokenTTL:                    config.Issuer.AccessTokenTTL,
	}
	if config.Issuer.BatchSize > 1 {
		issuerConfig.BatchCredentialIssuance = &openid4vc.BatchCredentialIssuance{BatchSize: config.Issuer.BatchSize}
	}
	for _, server := range config.Issuer.AuthorizationServers {
		issuerConfig.AuthorizationServers = append(issuerConfig.AuthorizationServers, issuer.AuthorizationServerConfig{
			Issuer:       server.Issuer,
			ClientID:     server.ClientID,
			ClientSecret: server.ClientSecret,
		})
	}
	mapper := newCredentialMapper(keyStore, config.Issuer.URL, credentialKID)
	instance, err := issuer.New(issuerConfig, store, keyStore, sessions, client.New(httpClientTimeout), mapper)
	if err != nil {
		return fmt.Errorf("unable to create issuer: %w", err)
	}
	instance.OnSessionStateChange(func(session issuer.IssuanceSession, previousState issuer.State) {
		logrus.WithField("session", session.ID).
			Debugf("Issuance session state changed: %s -> %s", previousState, session.State)
	})

	echoServer := echo.New()
	echoServer.HideBanner = true
	echoServer.HidePort = true
	echoServer.Use(middleware.Recover())
	echoServer.Use(requestLogger())
	v0.Wrapper{Issuer: instance}.Routes(echoServer)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- echoServer.Start(config.HTTP.Address)
	}()
	logrus.Infof("Node started, HTTP server listening on %s", config.HTTP.Address)

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logrus.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := echoServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	return nil
}

func configureLogging(config Config) error {
	level, err := logrus.ParseLevel(config.Verbosity)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	switch config.LoggerFormat {
	case "text":
		logrus.SetFormatter(&logrus.TextFormatter{})
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("invalid formatter: '%s'", config.LoggerFormat)
	}
	return nil
}

func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			err := next(ctx)
			logrus.WithFields(logrus.Fields{
				"method":   ctx.Request().Method,
				"uri":      ctx.Request().RequestURI,
				"status":   ctx.Response().Status,
				"duration": time.Since(start).Milliseconds(),
			}).Info("HTTP request")
			return err
		}
	}
}
