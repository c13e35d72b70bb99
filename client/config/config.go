// SPDX-FileCopyrightText: Copyright (C) 2026 The Mixlink Authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package config implements the configuration for the mixnet client.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/katzenpost/mixlink/client/mixtraffic"
	"github.com/katzenpost/mixlink/core/addressing"
	"github.com/katzenpost/mixlink/core/retry"
)

const (
	defaultLogLevel         = "NOTICE"
	defaultDialTimeout      = 30
	defaultHandshakeTimeout = 10
)

var defaultLogging = Logging{
	Disable: false,
	File:    "",
	Level:   defaultLogLevel,
}

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

// Gateway is the gateway connection configuration.
type Gateway struct {
	// URL is the gateway websocket URL, e.g. "ws://127.0.0.1:9000/".
	URL string

	// FirstHop is the "ip:port" of the first mix every packet is routed to.
	FirstHop string

	// DialTimeout is the number of seconds a single dial may take.
	DialTimeout int

	// HandshakeTimeout is the number of seconds registration or
	// authentication may take.
	HandshakeTimeout int
}

func (gCfg *Gateway) validate() error {
	u, err := url.Parse(gCfg.URL)
	if err != nil {
		return fmt.Errorf("config: Gateway: URL '%v' is invalid: %v", gCfg.URL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("config: Gateway: URL '%v' is not a websocket URL", gCfg.URL)
	}
	if _, err := addressing.ParseRoutingAddress(gCfg.FirstHop); err != nil {
		return fmt.Errorf("config: Gateway: FirstHop '%v' is invalid: %v", gCfg.FirstHop, err)
	}
	if gCfg.DialTimeout <= 0 {
		gCfg.DialTimeout = defaultDialTimeout
	}
	if gCfg.HandshakeTimeout <= 0 {
		gCfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	return nil
}

// FirstHopAddress returns the parsed FirstHop.
func (gCfg *Gateway) FirstHopAddress() addressing.RoutingAddress {
	a, err := addressing.ParseRoutingAddress(gCfg.FirstHop)
	if err != nil {
		panic("BUG: config: FirstHop was not validated: " + err.Error())
	}
	return a
}

// Dial returns the dial timeout.
func (gCfg *Gateway) Dial() time.Duration {
	return time.Duration(gCfg.DialTimeout) * time.Second
}

// Handshake returns the handshake timeout.
func (gCfg *Gateway) Handshake() time.Duration {
	return time.Duration(gCfg.HandshakeTimeout) * time.Second
}

// Metrics is the prometheus configuration.
type Metrics struct {
	// Address is the listen address of the /metrics endpoint, disabled if
	// empty.
	Address string
}

// Debug is the debug configuration.
type Debug struct {
	// MaxConsecutiveFailures is the number of consecutive failed sends
	// after which the gateway is considered dead.
	MaxConsecutiveFailures int

	// MaxQueuedBatches bounds the outbound queue, 0 is unbounded.
	MaxQueuedBatches int

	// DialAttempts is the number of connection attempts.
	DialAttempts int
}

func (d *Debug) fixup() {
	if d.MaxConsecutiveFailures <= 0 {
		d.MaxConsecutiveFailures = mixtraffic.MaxConsecutiveFailures
	}
	if d.MaxQueuedBatches < 0 {
		d.MaxQueuedBatches = 0
	}
	if d.DialAttempts <= 0 {
		d.DialAttempts = retry.DefaultMaxAttempts
	}
}

// Config is the top level client configuration.
type Config struct {
	// Logging
	Logging *Logging

	// Gateway is the gateway connection configuration.
	Gateway *Gateway

	// Metrics is the prometheus configuration.
	Metrics *Metrics

	// Debug is the debug configuration.
	Debug *Debug
}

// FixupAndValidate applies defaults to config entries and validates the
// configuration sections.
func (c *Config) FixupAndValidate() error {
	if c.Gateway == nil {
		return errors.New("config: No Gateway block was present")
	}

	// Handle missing sections if possible.
	if c.Logging == nil {
		l := defaultLogging
		c.Logging = &l
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
