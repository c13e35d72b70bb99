// SPDX-FileCopyrightText: Copyright (C) 2026 The Mixlink Authors
// SPDX-License-Identifier: AGPL-3.0-only

package server

import (
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/katzenpost/hpqc/rand"

	"github.com/katzenpost/mixlink/core/addressing"
	"github.com/katzenpost/mixlink/gateway/registration"
	"github.com/katzenpost/mixlink/gateway/requests"
	"github.com/katzenpost/mixlink/internal/instrument"
)

var (
	errReplayedIV      = errors.New("gateway/server: replayed authentication iv")
	errWrongProof      = errors.New("gateway/server: encrypted address mismatch")
	errClientAborted   = errors.New("gateway/server: client aborted the handshake")
	errExpectedText    = errors.New("gateway/server: expected a text frame")
	errUnexpectedFrame = errors.New("gateway/server: unexpected handshake message")
	errRegistered      = errors.New("gateway/server: address already registered")
)

func readText(ws *websocket.Conn) ([]byte, error) {
	mt, b, err := ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	if mt != websocket.TextMessage {
		return nil, errExpectedText
	}
	return b, nil
}

func writeText(ws *websocket.Conn, b []byte) error {
	return ws.WriteMessage(websocket.TextMessage, b)
}

func (s *Server) onHandshake(ws *websocket.Conn) (addressing.DestinationAddress, *registration.SharedKeys, error) {
	var address addressing.DestinationAddress

	b, err := readText(ws)
	if err != nil {
		return address, nil, err
	}
	req, err := requests.DecodeControlRequest(b)
	if err != nil {
		writeText(ws, requests.EncodeServerResponse(requests.NewErrorResponse("malformed request: %v", err)))
		return address, nil, err
	}

	switch r := req.(type) {
	case *requests.RegisterHandshakeInitRequest:
		address, keys, err := s.onRegister(ws, r.Data)
		instrument.Registration(err == nil)
		return address, keys, err
	case *requests.AuthenticateRequest:
		address, keys, err := s.onAuthenticate(r)
		instrument.Authentication(err == nil)
		writeText(ws, requests.EncodeServerResponse(&requests.AuthenticateResponse{Status: err == nil}))
		return address, keys, err
	default:
		return address, nil, errUnexpectedFrame
	}
}

func (s *Server) onRegister(ws *websocket.Conn, data []byte) (addressing.DestinationAddress, *registration.SharedKeys, error) {
	hs := registration.NewGatewayHandshake(rand.Reader)
	address, reply, err := hs.OnInit(data)
	if err == nil && s.cfg.Store.Exists(address) {
		err = errRegistered
	}
	if err != nil {
		writeText(ws, requests.EncodeRegistrationHandshake(&requests.HandshakeError{Message: err.Error()}))
		return address, nil, err
	}
	if err := writeText(ws, requests.EncodeRegistrationHandshake(&requests.HandshakePayload{Data: reply})); err != nil {
		return address, nil, err
	}

	b, err := readText(ws)
	if err != nil {
		return address, nil, err
	}
	msg, err := requests.DecodeRegistrationHandshake(b)
	if err != nil {
		writeText(ws, requests.EncodeRegistrationHandshake(&requests.HandshakeError{Message: err.Error()}))
		return address, nil, err
	}

	var keys *registration.SharedKeys
	switch m := msg.(type) {
	case *requests.HandshakeError:
		return address, nil, fmt.Errorf("%w: %s", errClientAborted, m.Message)
	case *requests.HandshakePayload:
		keys, err = hs.OnClientConfirm(m.Data)
	default:
		err = errUnexpectedFrame
	}
	if err == nil {
		err = s.cfg.Store.Put(address, keys)
	}

	writeText(ws, requests.EncodeServerResponse(&requests.RegisterResponse{Status: err == nil}))
	if err != nil {
		return address, nil, err
	}
	return address, keys, nil
}

func (s *Server) onAuthenticate(r *requests.AuthenticateRequest) (addressing.DestinationAddress, *registration.SharedKeys, error) {
	address, encAddress, iv, err := r.Decode()
	if err != nil {
		return address, nil, err
	}
	keys, err := s.cfg.Store.Keys(address)
	if err != nil {
		return address, nil, err
	}
	if !keys.VerifyAddress(address, encAddress, iv) {
		return address, nil, errWrongProof
	}

	var k replayKey
	copy(k[:], address[:])
	copy(k[addressing.DestinationAddressLength:], iv)
	if ok, _ := s.replay.ContainsOrAdd(k, struct{}{}); ok {
		return address, nil, errReplayedIV
	}
	return address, keys, nil
}
