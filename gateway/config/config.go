// SPDX-FileCopyrightText: Copyright (C) 2026 The Mixlink Authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package config implements the configuration for the gateway.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	defaultLogLevel         = "NOTICE"
	defaultHandshakeTimeout = 10
	defaultReplayCacheSize  = 1 << 16
	defaultMaxConnections   = 1024
	clientDBName            = "clients.db"
)

// Logging is the logging configuration.
type Logging struct {
	// Disable disables logging entirely.
	Disable bool

	// File specifies the log file, if omitted stdout will be used.
	File string

	// Level specifies the log level.
	Level string
}

func (lCfg *Logging) validate() error {
	lvl := strings.ToUpper(lCfg.Level)
	switch lvl {
	case "ERROR", "WARNING", "NOTICE", "INFO", "DEBUG":
	case "":
		lvl = defaultLogLevel
	default:
		return fmt.Errorf("config: Logging: Level '%v' is invalid", lCfg.Level)
	}
	lCfg.Level = lvl
	return nil
}

// Gateway is the gateway listener configuration.
type Gateway struct {
	// ListenAddress is the "host:port" the websocket listener binds to.
	ListenAddress string

	// DataDir is the absolute path to the gateway's state.
	DataDir string

	// HandshakeTimeout is the number of seconds a client has to register
	// or authenticate.
	HandshakeTimeout int

	// MaxConnections bounds the number of concurrent client connections.
	MaxConnections int
}

func (gCfg *Gateway) validate() error {
	if _, _, err := net.SplitHostPort(gCfg.ListenAddress); err != nil {
		return fmt.Errorf("config: Gateway: ListenAddress '%v' is invalid: %v", gCfg.ListenAddress, err)
	}
	if !filepath.IsAbs(gCfg.DataDir) {
		return fmt.Errorf("config: Gateway: DataDir '%v' is not an absolute path", gCfg.DataDir)
	}
	if gCfg.HandshakeTimeout <= 0 {
		gCfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if gCfg.MaxConnections <= 0 {
		gCfg.MaxConnections = defaultMaxConnections
	}
	return nil
}

// Handshake returns the handshake timeout.
func (gCfg *Gateway) Handshake() time.Duration {
	return time.Duration(gCfg.HandshakeTimeout) * time.Second
}

// ClientDBPath returns the path of the registered client database.
func (gCfg *Gateway) ClientDBPath() string {
	return filepath.Join(gCfg.DataDir, clientDBName)
}

// Metrics is the prometheus configuration.
type Metrics struct {
	// Address is the listen address of the /metrics endpoint, disabled if
	// empty.
	Address string
}

// Debug is the debug configuration.
type Debug struct {
	// ReplayCacheSize is the number of authentication IVs remembered per
	// gateway.
	ReplayCacheSize int
}

func (d *Debug) fixup() {
	if d.ReplayCacheSize <= 0 {
		d.ReplayCacheSize = defaultReplayCacheSize
	}
}

// Config is the top level gateway configuration.
type Config struct {
	Logging *Logging
	Gateway *Gateway
	Metrics *Metrics
	Debug   *Debug
}

// FixupAndValidate applies defaults to config entries and validates the
// configuration sections.
func (c *Config) FixupAndValidate() error {
	if c.Gateway == nil {
		return errors.New("config: No Gateway block was present")
	}
	if c.Logging == nil {
		c.Logging = &Logging{Level: defaultLogLevel}
	}
	if c.Metrics == nil {
		c.Metrics = &Metrics{}
	}
	if c.Debug == nil {
		c.Debug = &Debug{}
	}
	c.Debug.fixup()

	if err := c.Logging.validate(); err != nil {
		return err
	}
	return c.Gateway.validate()
}

// Load parses and validates the provided buffer b as a config file body and
// returns the Config.
func Load(b []byte) (*Config, error) {
	cfg := new(Config)
	md, err := toml.Decode(string(b), cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return nil, fmt.Errorf("config: Undecoded keys in config file: %v", undecoded)
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads, parses, and validates the provided file and returns the
// Config.
func LoadFile(f string) (*Config, error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}
	return Load(b)
}
