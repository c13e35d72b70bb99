// SPDX-FileCopyrightText: Copyright (C) 2026 The Mixlink Authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package client implements the websocket connection from a mixnet client
// to its gateway.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/katzenpost/hpqc/rand"
	"gopkg.in/op/go-logging.v1"

	"github.com/katzenpost/mixlink/client/mixtraffic"
	"github.com/katzenpost/mixlink/core/addressing"
	"github.com/katzenpost/mixlink/core/log"
	"github.com/katzenpost/mixlink/core/packet"
	"github.com/katzenpost/mixlink/core/retry"
	"github.com/katzenpost/mixlink/core/worker"
	"github.com/katzenpost/mixlink/gateway/registration"
	"github.com/katzenpost/mixlink/gateway/requests"
	"github.com/katzenpost/mixlink/gateway/symmetric"
	"github.com/katzenpost/mixlink/internal/instrument"
)

const (
	defaultDialTimeout      = 30 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
)

// Config is a gateway client configuration.
type Config struct {
	// LogBackend is the logging backend to use for client logging.
	LogBackend *log.Backend

	// URL is the gateway websocket URL.
	URL string

	// Address is the client's destination address on the gateway.
	Address addressing.DestinationAddress

	// Keys are the keys of a previous registration.  If nil the client
	// registers on connect.
	Keys *registration.SharedKeys

	// DialTimeout bounds each websocket dial.
	DialTimeout time.Duration

	// HandshakeTimeout bounds registration and authentication.
	HandshakeTimeout time.Duration

	// Retry is the connect retry policy.
	Retry retry.Policy

	// OnMessageFn is the callback function called for every message pushed
	// by the gateway.  It is called from the connection's read loop and
	// must not block.
	OnMessageFn func([]byte)

	// OnKeysFn is called with the keys of a completed registration, for
	// example to persist them.
	OnKeysFn func(*registration.SharedKeys)

	// OnConnectionLostFn is called when an established connection fails.
	OnConnectionLostFn func(error)
}

func (cfg *Config) validate() error {
	if cfg.LogBackend == nil {
		return errors.New("gateway/client: no LogBackend provided")
	}
	if cfg.URL == "" {
		return errors.New("gateway/client: no URL provided")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = retry.DefaultPolicy()
	}
	return nil
}

// Client is a gateway connection.
type Client struct {
	worker.Worker
	sync.Mutex

	cfg *Config
	log *logging.Logger

	conn    *websocket.Conn
	keys    *registration.SharedKeys
	closing bool

	writeLock sync.Mutex
}

// New creates a new, unconnected Client.
func New(cfg *Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Client{
		cfg:  cfg,
		log:  cfg.LogBackend.GetLogger("gateway/client"),
		keys: cfg.Keys,
	}, nil
}

// Connect dials the gateway, retrying transient failures, and registers or
// authenticates.
func (c *Client) Connect(ctx context.Context) error {
	return retry.Do(ctx, c.cfg.Retry, func(attempt int) error {
		if attempt > 0 {
			c.log.Debugf("Reconnecting to %v, attempt %d.", c.cfg.URL, attempt+1)
		}
		err := c.connectOnce(ctx)
		if err != nil {
			c.log.Warningf("Failed to connect to %v: %v", c.cfg.URL, err)
		}
		return err
	})
}

func (c *Client) connectOnce(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.DialTimeout}
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()

	conn, _, err := dialer.DialContext(dialCtx, c.cfg.URL, nil)
	if err != nil {
		return &ConnectError{Err: err}
	}

	conn.SetReadDeadline(time.Now().Add(c.cfg.HandshakeTimeout))
	conn.SetWriteDeadline(time.Now().Add(c.cfg.HandshakeTimeout))
	c.Lock()
	keys := c.keys
	c.Unlock()
	if keys == nil {
		keys, err = c.register(conn)
	} else {
		err = c.authenticate(conn, keys)
	}
	if err != nil {
		conn.Close()
		return err
	}
	conn.SetReadDeadline(time.Time{})
	conn.SetWriteDeadline(time.Time{})

	c.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = conn
	c.keys = keys
	c.Unlock()

	c.log.Noticef("Connected to gateway %v as %v.", c.cfg.URL, c.cfg.Address)
	c.Go(func() { c.readLoop(conn, keys) })
	return nil
}

func writeText(conn *websocket.Conn, b []byte) error {
	return conn.WriteMessage(websocket.TextMessage, b)
}

func readText(conn *websocket.Conn) ([]byte, error) {
	mt, b, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if mt != websocket.TextMessage {
		return nil, newProtocolError("expected a text frame, got type %d", mt)
	}
	return b, nil
}

// readServerResponse reads the response that ends a registration
// (register set) or an authentication.
func (c *Client) readServerResponse(conn *websocket.Conn, register bool) error {
	b, err := readText(conn)
	if err != nil {
		return err
	}
	resp, err := requests.DecodeServerResponse(b)
	if err != nil {
		return &ProtocolError{Err: err}
	}
	switch r := resp.(type) {
	case *requests.RegisterResponse:
		if !register {
			return newProtocolError("unexpected register response to authenticate")
		}
	case *requests.AuthenticateResponse:
		if register {
			return newProtocolError("unexpected authenticate response to register")
		}
	case *requests.ErrorResponse:
		return fmt.Errorf("%w: %s", ErrAuthenticationFailed, r.Message)
	default:
		return newProtocolError("unexpected server response: %T", resp)
	}
	if !resp.ImpliesSuccessfulAuthentication() {
		return ErrAuthenticationFailed
	}
	return nil
}

func (c *Client) register(conn *websocket.Conn) (*registration.SharedKeys, error) {
	hs, err := registration.NewClientHandshake(c.cfg.Address, rand.Reader)
	if err != nil {
		return nil, err
	}
	init := &requests.RegisterHandshakeInitRequest{Data: hs.InitRequest()}
	if err := writeText(conn, requests.EncodeControlRequest(init)); err != nil {
		return nil, err
	}

	b, err := readText(conn)
	if err != nil {
		return nil, err
	}
	msg, err := requests.DecodeRegistrationHandshake(b)
	if err != nil {
		return nil, &ProtocolError{Err: err}
	}
	var payload *requests.HandshakePayload
	switch m := msg.(type) {
	case *requests.HandshakeError:
		return nil, fmt.Errorf("%w: %s", ErrAuthenticationFailed, m.Message)
	case *requests.HandshakePayload:
		payload = m
	default:
		return nil, newProtocolError("unexpected handshake message: %T", msg)
	}

	confirm, keys, err := hs.OnGatewayPayload(payload.Data)
	if err != nil {
		writeText(conn, requests.EncodeRegistrationHandshake(&requests.HandshakeError{Message: err.Error()}))
		return nil, &ProtocolError{Err: err}
	}
	if err := writeText(conn, requests.EncodeRegistrationHandshake(&requests.HandshakePayload{Data: confirm})); err != nil {
		return nil, err
	}
	if err := c.readServerResponse(conn, true); err != nil {
		return nil, err
	}

	c.log.Infof("Registered with gateway %v.", c.cfg.URL)
	if c.cfg.OnKeysFn != nil {
		c.cfg.OnKeysFn(keys)
	}
	return keys, nil
}

func (c *Client) authenticate(conn *websocket.Conn, keys *registration.SharedKeys) error {
	iv := make([]byte, symmetric.IVLength)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return err
	}
	encAddress, err := keys.EncryptAddress(c.cfg.Address, iv)
	if err != nil {
		return err
	}
	req := requests.NewAuthenticateRequest(c.cfg.Address, encAddress, iv)
	if err := writeText(conn, requests.EncodeControlRequest(req)); err != nil {
		return err
	}
	return c.readServerResponse(conn, false)
}

func (c *Client) readLoop(conn *websocket.Conn, keys *registration.SharedKeys) {
	defer c.onConnectionLost(conn)

	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			c.Lock()
			closing := c.closing
			c.Unlock()
			if !closing {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.log.Errorf("Connection to the gateway failed: %v", err)
				} else {
					c.log.Noticef("Gateway closed the connection: %v", err)
				}
				if c.cfg.OnConnectionLostFn != nil {
					c.cfg.OnConnectionLostFn(err)
				}
			}
			return
		}

		switch mt {
		case websocket.BinaryMessage:
			resp, err := requests.BinaryResponseFromEncryptedTaggedBytes(msg, keys)
			if err != nil {
				instrument.FrameRejected(requests.DecodeErrorReason(err))
				c.log.Warningf("Dropping pushed message: %v", err)
				continue
			}
			if m, ok := resp.(*requests.PushedMessage); ok && c.cfg.OnMessageFn != nil {
				c.cfg.OnMessageFn(m.Payload)
			}
		case websocket.TextMessage:
			resp, err := requests.DecodeServerResponse(msg)
			switch {
			case err != nil:
				c.log.Warningf("Dropping malformed control message: %v", err)
			case resp.IsError():
				c.log.Errorf("Gateway reported an error: %s", resp.(*requests.ErrorResponse).Message)
			default:
				c.log.Debugf("Ignoring control message: %T", resp)
			}
		}
	}
}

func (c *Client) onConnectionLost(conn *websocket.Conn) {
	c.Lock()
	defer c.Unlock()
	if c.conn == conn {
		c.conn = nil
	}
	conn.Close()
}

// IsConnected returns true iff the gateway connection is established.
func (c *Client) IsConnected() bool {
	c.Lock()
	defer c.Unlock()
	return c.conn != nil
}

// Keys returns the shared keys, or nil before the first registration.
func (c *Client) Keys() *registration.SharedKeys {
	c.Lock()
	defer c.Unlock()
	return c.keys
}

func (c *Client) writeFrames(ctx context.Context, frames ...[]byte) error {
	c.writeLock.Lock()
	defer c.writeLock.Unlock()

	c.Lock()
	conn := c.conn
	c.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultWriteTimeout)
	}
	conn.SetWriteDeadline(deadline)

	for _, frame := range frames {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			c.onConnectionLost(conn)
			return err
		}
	}
	return nil
}

func (c *Client) sharedKeys() (*registration.SharedKeys, error) {
	c.Lock()
	defer c.Unlock()
	if c.conn == nil {
		return nil, ErrNotConnected
	}
	return c.keys, nil
}

// SendPacket forwards pkt to the mix at address via the gateway.
func (c *Client) SendPacket(ctx context.Context, address addressing.RoutingAddress, pkt *packet.Packet) error {
	keys, err := c.sharedKeys()
	if err != nil {
		return err
	}
	return c.writeFrames(ctx, requests.NewForwardPacket(address, pkt).EncryptedTaggedBytes(keys))
}

// BatchSendPackets forwards every message.  No other send is interleaved
// with the batch.
func (c *Client) BatchSendPackets(ctx context.Context, messages []mixtraffic.MixMessage) error {
	keys, err := c.sharedKeys()
	if err != nil {
		return err
	}
	frames := make([][]byte, 0, len(messages))
	for _, m := range messages {
		frames = append(frames, requests.NewForwardPacket(m.Address, m.Packet).EncryptedTaggedBytes(keys))
	}
	return c.writeFrames(ctx, frames...)
}

// Close closes the gateway connection and stops the read loop.
func (c *Client) Close() {
	c.writeLock.Lock()
	c.Lock()
	conn := c.conn
	c.conn = nil
	c.closing = true
	c.Unlock()
	if conn != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}
	c.writeLock.Unlock()

	c.Halt()
}

var _ mixtraffic.GatewayConn = (*Client)(nil)
