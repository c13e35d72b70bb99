// SPDX-FileCopyrightText: Copyright (C) 2026 The Mixlink Authors
// SPDX-License-Identifier: AGPL-3.0-only

// gatewayd is a loopback gateway: packets forwarded by a client are pushed
// back to the same client.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/katzenpost/mixlink/common"
	"github.com/katzenpost/mixlink/core/addressing"
	"github.com/katzenpost/mixlink/core/log"
	"github.com/katzenpost/mixlink/core/packet"
	"github.com/katzenpost/mixlink/gateway/clientstore"
	"github.com/katzenpost/mixlink/gateway/config"
	"github.com/katzenpost/mixlink/gateway/server"
	"github.com/katzenpost/mixlink/internal/instrument"
)

// Config holds the command line configuration
type Config struct {
	ConfigFile string
}

func newRootCommand() *cobra.Command {
	var cfg Config

	cmd := &cobra.Command{
		Use:   "gatewayd",
		Short: "Loopback mixnet gateway",
		Long: `gatewayd accepts mixnet client websocket connections, runs the
registration handshake or authenticates returning clients, and decodes the
packets they forward. Instead of injecting them into a mix network every
packet payload is pushed back to the client that sent it, which makes
gatewayd useful for testing clients end to end.`,
		Example: `  # Start the gateway
  gatewayd --config /etc/mixlink/gateway.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGateway(cfg)
		},
	}

	cmd.Flags().StringVarP(&cfg.ConfigFile, "config", "f", "gateway.toml",
		"path to the gateway configuration file (TOML format)")

	return cmd
}

func main() {
	common.ExecuteWithFang(newRootCommand())
}

func runGateway(cfg Config) error {
	gwCfg, err := config.LoadFile(cfg.ConfigFile)
	if err != nil {
		return fmt.Errorf("failed to load config file '%v': %v", cfg.ConfigFile, err)
	}
	if err := os.MkdirAll(gwCfg.Gateway.DataDir, 0700); err != nil {
		return err
	}

	logBackend, err := log.New(gwCfg.Logging.File, gwCfg.Logging.Level, gwCfg.Logging.Disable)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %v", err)
	}
	logger := logBackend.GetLogger("gatewayd")

	store, err := clientstore.New(gwCfg.Gateway.ClientDBPath())
	if err != nil {
		return fmt.Errorf("failed to open the client database: %v", err)
	}
	logger.Noticef("Loaded %d registered clients.", store.Len())

	var srv *server.Server
	srv, err = server.New(&server.Config{
		LogBackend:       logBackend,
		Store:            store,
		HandshakeTimeout: gwCfg.Gateway.Handshake(),
		ReplayCacheSize:  gwCfg.Debug.ReplayCacheSize,
		MaxConnections:   gwCfg.Gateway.MaxConnections,
		Forwarder: func(from addressing.DestinationAddress, next addressing.RoutingAddress, pkt *packet.Packet) {
			logger.Debugf("%v forwarded a %v packet to %v.", from, pkt.Size(), next)
			if err := srv.Push(from, pkt.Payload); err != nil {
				logger.Warningf("Failed to push to %v: %v", from, err)
			}
		},
	})
	if err != nil {
		store.Close()
		return err
	}

	httpSrv := &http.Server{
		Addr:              gwCfg.Gateway.ListenAddress,
		Handler:           srv,
		ReadHeaderTimeout: gwCfg.Gateway.Handshake(),
		ErrorLog:          logBackend.GetGoLogger("gatewayd/http", "WARNING"),
	}
	var metricsSrv *http.Server
	if gwCfg.Metrics.Address != "" {
		metricsSrv = instrument.StartPrometheusListener(gwCfg.Metrics.Address)
	}

	haltCh := make(chan os.Signal, 1)
	signal.Notify(haltCh, os.Interrupt, syscall.SIGTERM)
	rotateCh := make(chan os.Signal, 1)
	signal.Notify(rotateCh, syscall.SIGHUP)
	go func() {
		for range rotateCh {
			if err := logBackend.Rotate(); err != nil {
				logger.Errorf("Failed to rotate the log: %v", err)
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Noticef("Listening on %v.", httpSrv.Addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-haltCh:
		logger.Notice("Shutting down.")
	case err = <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Listener failed: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	shutdownErr := multierr.Combine(
		httpSrv.Shutdown(ctx),
		srv.Shutdown(),
		store.Close(),
	)
	if metricsSrv != nil {
		shutdownErr = multierr.Append(shutdownErr, metricsSrv.Shutdown(ctx))
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return multierr.Append(err, shutdownErr)
	}
	return shutdownErr
}
