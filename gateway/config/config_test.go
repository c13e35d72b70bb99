// SPDX-FileCopyrightText: Copyright (C) 2026 The Mixlink Authors
// SPDX-License-Identifier: AGPL-3.0-only

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadFile(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	cfg, err := LoadFile("testdata/gateway.toml")
	require.NoError(err)
	require.Equal("INFO", cfg.Logging.Level)
	require.Equal("/var/lib/mixlink/gatewayd.log", cfg.Logging.File)
	require.Equal("0.0.0.0:30001", cfg.Gateway.ListenAddress)
	require.Equal("/var/lib/mixlink/clients.db", cfg.Gateway.ClientDBPath())
	require.Equal(10*time.Second, cfg.Gateway.Handshake())
	require.Equal(1024, cfg.Gateway.MaxConnections)
	require.Equal(4096, cfg.Debug.ReplayCacheSize)
	require.Empty(cfg.Metrics.Address)
}

func TestInvalid(t *testing.T) {
	t.Parallel()

	for name, body := range map[string]string{
		"no gateway":  `[Debug]`,
		"bad listen":  "[Gateway]\nListenAddress = \"30001\"\nDataDir = \"/tmp\"",
		"relative":    "[Gateway]\nListenAddress = \":30001\"\nDataDir = \"data\"",
		"bad level":   "[Logging]\nLevel = \"TRACE\"\n[Gateway]\nListenAddress = \":1\"\nDataDir = \"/tmp\"",
		"unknown key": "[Metrics]\nPort = 1\n[Gateway]\nListenAddress = \":1\"\nDataDir = \"/tmp\"",
	} {
		_, err := Load([]byte(body))
		require.Error(t, err, name)
	}
}
