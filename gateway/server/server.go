// SPDX-FileCopyrightText: Copyright (C) 2026 The Mixlink Authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package server implements the gateway side of the client websocket
// transport.
package server

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/multierr"
	"gopkg.in/op/go-logging.v1"

	"github.com/katzenpost/mixlink/core/addressing"
	"github.com/katzenpost/mixlink/core/log"
	"github.com/katzenpost/mixlink/core/packet"
	"github.com/katzenpost/mixlink/core/worker"
	"github.com/katzenpost/mixlink/gateway/clientstore"
	"github.com/katzenpost/mixlink/gateway/registration"
	"github.com/katzenpost/mixlink/gateway/requests"
	"github.com/katzenpost/mixlink/gateway/symmetric"
	"github.com/katzenpost/mixlink/internal/instrument"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultReplayCacheSize  = 1 << 16
	writeTimeout            = 10 * time.Second

	// maxMessageSize bounds incoming frames to the largest forward request.
	maxMessageSize = symmetric.TagLength + addressing.RoutingAddressLength +
		packet.HeaderLength + packet.PayloadOverhead + packet.ExtendedPayloadLength
)

var (
	// ErrNotConnected is the error returned when pushing to a client without
	// a live connection.
	ErrNotConnected = errors.New("gateway/server: client not connected")

	// ErrTooManyConnections is the error returned when MaxConnections is
	// reached.
	ErrTooManyConnections = errors.New("gateway/server: too many connections")

	errShuttingDown = errors.New("gateway/server: shutting down")
)

// Forwarder is called for every packet an authenticated client forwards.
// It is called from the client's read loop.
type Forwarder func(from addressing.DestinationAddress, next addressing.RoutingAddress, pkt *packet.Packet)

// Config is the gateway server configuration.
type Config struct {
	// LogBackend is the logging backend to use for server logging.
	LogBackend *log.Backend

	// Store holds the keys of registered clients.
	Store *clientstore.Store

	// Forwarder receives forwarded packets.
	Forwarder Forwarder

	// HandshakeTimeout bounds registration and authentication.
	HandshakeTimeout time.Duration

	// ReplayCacheSize is the number of remembered authentication IVs.
	ReplayCacheSize int

	// MaxConnections bounds concurrent connections, 0 is unbounded.
	MaxConnections int
}

func (cfg *Config) validate() error {
	if cfg.LogBackend == nil {
		return errors.New("gateway/server: no LogBackend provided")
	}
	if cfg.Store == nil {
		return errors.New("gateway/server: no Store provided")
	}
	if cfg.Forwarder == nil {
		return errors.New("gateway/server: no Forwarder provided")
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.ReplayCacheSize <= 0 {
		cfg.ReplayCacheSize = defaultReplayCacheSize
	}
	return nil
}

type replayKey [addressing.DestinationAddressLength + symmetric.IVLength]byte

// Server accepts client websocket connections.
type Server struct {
	worker.Worker
	sync.RWMutex

	cfg      *Config
	log      *logging.Logger
	upgrader websocket.Upgrader
	replay   *lru.Cache[replayKey, struct{}]

	pending int
	conns   map[addressing.DestinationAddress]*clientConn
	halted  bool
}

// New creates a Server.
func New(cfg *Config) (*Server, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	replay, err := lru.New[replayKey, struct{}](cfg.ReplayCacheSize)
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg: cfg,
		log: cfg.LogBackend.GetLogger("gateway/server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		replay: replay,
		conns:  make(map[addressing.DestinationAddress]*clientConn),
	}, nil
}

func (s *Server) acquireSlot() error {
	s.Lock()
	defer s.Unlock()
	if s.halted {
		return errShuttingDown
	}
	if s.cfg.MaxConnections > 0 && s.pending+len(s.conns) >= s.cfg.MaxConnections {
		return ErrTooManyConnections
	}
	s.pending++
	s.Add(1)
	return nil
}

func (s *Server) releaseSlot() {
	s.Lock()
	s.pending--
	s.Unlock()
	s.Done()
}

// ServeHTTP upgrades the request to a websocket and serves the client
// until the connection closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := s.acquireSlot(); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer s.releaseSlot()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debugf("Failed to upgrade %v: %v", r.RemoteAddr, err)
		return
	}
	ws.SetReadLimit(maxMessageSize)
	s.serveConn(ws, r.RemoteAddr)
}

func (s *Server) serveConn(ws *websocket.Conn, remote string) {
	defer ws.Close()

	ws.SetReadDeadline(time.Now().Add(s.cfg.HandshakeTimeout))
	ws.SetWriteDeadline(time.Now().Add(s.cfg.HandshakeTimeout))
	address, keys, err := s.onHandshake(ws)
	if err != nil {
		s.log.Noticef("Rejected client %v: %v", remote, err)
		return
	}
	ws.SetReadDeadline(time.Time{})
	ws.SetWriteDeadline(time.Time{})

	c := &clientConn{
		s:       s,
		ws:      ws,
		address: address,
		keys:    keys,
		log:     s.cfg.LogBackend.GetLogger(fmt.Sprintf("gateway/server:%v", address)),
	}
	if !s.addConn(c) {
		return
	}
	defer s.removeConn(c)

	s.log.Debugf("Client %v authenticated from %v.", address, remote)
	c.readLoop()
}

func (s *Server) addConn(c *clientConn) bool {
	s.Lock()
	defer s.Unlock()
	if s.halted {
		return false
	}
	if old, ok := s.conns[c.address]; ok {
		s.log.Noticef("Client %v reconnected, closing the previous connection.", c.address)
		old.close()
	} else {
		instrument.ClientConnected(1)
	}
	s.conns[c.address] = c
	return true
}

func (s *Server) removeConn(c *clientConn) {
	s.Lock()
	defer s.Unlock()
	if s.conns[c.address] == c {
		delete(s.conns, c.address)
		instrument.ClientConnected(-1)
	}
}

// Push delivers payload to the connected client address.
func (s *Server) Push(address addressing.DestinationAddress, payload []byte) error {
	s.RLock()
	c, ok := s.conns[address]
	s.RUnlock()
	if !ok {
		return ErrNotConnected
	}
	return c.writeBinary(requests.NewPushedMessage(payload).EncryptedTaggedBytes(c.keys))
}

// IsConnected returns true iff address has an authenticated connection.
func (s *Server) IsConnected(address addressing.DestinationAddress) bool {
	s.RLock()
	defer s.RUnlock()
	_, ok := s.conns[address]
	return ok
}

// Shutdown closes every client connection and waits for them to be torn
// down.
func (s *Server) Shutdown() error {
	s.Lock()
	s.halted = true
	var err error
	for _, c := range s.conns {
		err = multierr.Append(err, c.close())
	}
	s.Unlock()

	s.Halt()
	return err
}

type clientConn struct {
	sync.Mutex

	s   *Server
	log *logging.Logger

	ws      *websocket.Conn
	address addressing.DestinationAddress
	keys    *registration.SharedKeys
}

func (c *clientConn) writeBinary(b []byte) error {
	c.Lock()
	defer c.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(websocket.BinaryMessage, b)
}

func (c *clientConn) writeText(b []byte) error {
	c.Lock()
	defer c.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, b)
}

func (c *clientConn) close() error {
	c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
		time.Now().Add(time.Second))
	return c.ws.Close()
}

func (c *clientConn) readLoop() {
	for {
		mt, msg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debugf("Connection lost: %v", err)
			}
			return
		}

		switch mt {
		case websocket.BinaryMessage:
			c.onBinary(msg)
		case websocket.TextMessage:
			c.log.Debugf("Unexpected control message after authentication.")
			c.writeText(requests.EncodeServerResponse(requests.NewErrorResponse("unexpected control message")))
		}
	}
}

func (c *clientConn) onBinary(msg []byte) {
	req, err := requests.BinaryRequestFromEncryptedTaggedBytes(msg, c.keys)
	if err != nil {
		reason := requests.DecodeErrorReason(err)
		instrument.FrameRejected(reason)
		c.log.Warningf("Dropping binary request (%s): %v", reason, err)
		return
	}

	switch r := req.(type) {
	case *requests.ForwardPacket:
		instrument.PacketForwarded()
		c.s.cfg.Forwarder(c.address, r.Address, r.Packet)
	default:
		c.log.Errorf("BUG: unhandled binary request: %T", req)
	}
}
