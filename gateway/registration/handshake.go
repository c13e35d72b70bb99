// SPDX-FileCopyrightText: Copyright (C) 2026 The Mixlink Authors
// SPDX-License-Identifier: AGPL-3.0-only

package registration

import (
	"crypto/hmac"
	"errors"
	"hash"
	"io"

	"github.com/katzenpost/hpqc/nike"
	"github.com/katzenpost/hpqc/nike/x25519"
	"github.com/katzenpost/hpqc/util"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"github.com/katzenpost/mixlink/core/addressing"
	"github.com/katzenpost/mixlink/gateway/symmetric"
)

const (
	kdfLabel     = "mixlink-gateway-registration-v0"
	gatewayLabel = "gateway"
	clientLabel  = "client"

	// PublicKeyLength is the length of an ephemeral handshake key.
	PublicKeyLength = x25519.PublicKeySize

	// ConfirmationLength is the length of a key confirmation value.
	ConfirmationLength = symmetric.TagLength

	// InitLength is the length of the initial client handshake data.
	InitLength = addressing.DestinationAddressLength + PublicKeyLength

	// GatewayReplyLength is the length of the gateway handshake data.
	GatewayReplyLength = PublicKeyLength + ConfirmationLength
)

var (
	// ErrInvalidHandshake is the error returned when handshake data is
	// malformed.
	ErrInvalidHandshake = errors.New("registration: malformed handshake data")

	// ErrInvalidPublicKey is the error returned when the peer's ephemeral
	// key yields a degenerate shared secret.
	ErrInvalidPublicKey = errors.New("registration: invalid ephemeral public key")

	// ErrConfirmationFailed is the error returned when key confirmation
	// fails.
	ErrConfirmationFailed = errors.New("registration: key confirmation failed")

	// ErrInvalidIV is the error returned when an authentication IV has the
	// wrong size.
	ErrInvalidIV = errors.New("registration: invalid iv")

	errInvalidState = errors.New("registration: handshake message out of order")
)

func newBlake2b() hash.Hash {
	h, err := blake2b.New256(nil)
	if err != nil {
		panic("BUG: registration: blake2b.New256: " + err.Error())
	}
	return h
}

// sharedSecret computes the DH output.  x25519.Scheme.DeriveSecret panics on
// low order points, which are attacker controlled here.
func sharedSecret(sk nike.PrivateKey, pk nike.PublicKey) ([]byte, error) {
	secret, err := curve25519.X25519(sk.Bytes(), pk.Bytes())
	if err != nil {
		return nil, ErrInvalidPublicKey
	}
	return secret, nil
}

// deriveKeys expands the DH output into SharedKeys bound to transcript.
func deriveKeys(secret, transcript []byte) (*SharedKeys, error) {
	if util.CtIsZero(secret) {
		return nil, ErrInvalidPublicKey
	}
	info := append([]byte(kdfLabel), transcript...)
	okm := make([]byte, SharedKeysLength)
	if _, err := io.ReadFull(hkdf.New(newBlake2b, secret, nil, info), okm); err != nil {
		return nil, err
	}
	defer clear(okm)
	defer clear(secret)
	return SharedKeysFromBytes(okm)
}

func confirmation(keys *SharedKeys, label string, transcript []byte) []byte {
	return symmetric.Tag(keys.MacKey(), append([]byte(label), transcript...))
}

func buildTranscript(address addressing.DestinationAddress, clientKey, gatewayKey nike.PublicKey) []byte {
	t := make([]byte, 0, InitLength+PublicKeyLength)
	t = append(t, address.Bytes()...)
	t = append(t, clientKey.Bytes()...)
	return append(t, gatewayKey.Bytes()...)
}

// ClientHandshake is the client side of a registration handshake.
type ClientHandshake struct {
	scheme  nike.Scheme
	address addressing.DestinationAddress

	publicKey  nike.PublicKey
	privateKey nike.PrivateKey
	done       bool
}

// NewClientHandshake starts a registration for address, drawing the
// ephemeral key from rng.
func NewClientHandshake(address addressing.DestinationAddress, rng io.Reader) (*ClientHandshake, error) {
	scheme := x25519.Scheme(rng)
	pk, sk, err := scheme.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return &ClientHandshake{
		scheme:     scheme,
		address:    address,
		publicKey:  pk,
		privateKey: sk,
	}, nil
}

// InitRequest returns the data of the RegisterHandshakeInitRequest.
func (h *ClientHandshake) InitRequest() []byte {
	b := make([]byte, 0, InitLength)
	b = append(b, h.address.Bytes()...)
	return append(b, h.publicKey.Bytes()...)
}

// OnGatewayPayload processes the gateway handshake data.  It returns the
// client key confirmation to send back and the derived keys.
func (h *ClientHandshake) OnGatewayPayload(data []byte) ([]byte, *SharedKeys, error) {
	if h.done {
		return nil, nil, errInvalidState
	}
	h.done = true
	defer h.privateKey.Reset()

	if len(data) != GatewayReplyLength {
		return nil, nil, ErrInvalidHandshake
	}
	gatewayKey, err := h.scheme.UnmarshalBinaryPublicKey(data[:PublicKeyLength])
	if err != nil {
		return nil, nil, ErrInvalidHandshake
	}

	transcript := buildTranscript(h.address, h.publicKey, gatewayKey)
	secret, err := sharedSecret(h.privateKey, gatewayKey)
	if err != nil {
		return nil, nil, err
	}
	keys, err := deriveKeys(secret, transcript)
	if err != nil {
		return nil, nil, err
	}
	if !hmac.Equal(confirmation(keys, gatewayLabel, transcript), data[PublicKeyLength:]) {
		keys.Reset()
		return nil, nil, ErrConfirmationFailed
	}
	return confirmation(keys, clientLabel, transcript), keys, nil
}

// GatewayHandshake is the gateway side of a registration handshake.
type GatewayHandshake struct {
	scheme nike.Scheme

	transcript []byte
	keys       *SharedKeys
	state      int
}

const (
	stateAwaitInit = iota
	stateAwaitConfirm
	stateDone
)

// NewGatewayHandshake creates the gateway side of a handshake, drawing the
// ephemeral key from rng.
func NewGatewayHandshake(rng io.Reader) *GatewayHandshake {
	return &GatewayHandshake{scheme: x25519.Scheme(rng)}
}

// OnInit processes the client's initial handshake data and returns the
// claimed destination address and the gateway handshake data.
func (h *GatewayHandshake) OnInit(data []byte) (addressing.DestinationAddress, []byte, error) {
	var address addressing.DestinationAddress
	if h.state != stateAwaitInit {
		return address, nil, errInvalidState
	}
	h.state = stateDone

	if len(data) != InitLength {
		return address, nil, ErrInvalidHandshake
	}
	address, err := addressing.DestinationAddressFromBytes(data[:addressing.DestinationAddressLength])
	if err != nil {
		return address, nil, ErrInvalidHandshake
	}
	clientKey, err := h.scheme.UnmarshalBinaryPublicKey(data[addressing.DestinationAddressLength:])
	if err != nil {
		return address, nil, ErrInvalidHandshake
	}

	pk, sk, err := h.scheme.GenerateKeyPair()
	if err != nil {
		return address, nil, err
	}
	defer sk.Reset()

	transcript := buildTranscript(address, clientKey, pk)
	secret, err := sharedSecret(sk, clientKey)
	if err != nil {
		return address, nil, err
	}
	keys, err := deriveKeys(secret, transcript)
	if err != nil {
		return address, nil, err
	}

	h.transcript = transcript
	h.keys = keys
	h.state = stateAwaitConfirm

	reply := make([]byte, 0, GatewayReplyLength)
	reply = append(reply, pk.Bytes()...)
	return address, append(reply, confirmation(keys, gatewayLabel, transcript)...), nil
}

// OnClientConfirm verifies the client key confirmation and returns the
// derived keys.
func (h *GatewayHandshake) OnClientConfirm(data []byte) (*SharedKeys, error) {
	if h.state != stateAwaitConfirm {
		return nil, errInvalidState
	}
	h.state = stateDone

	if !hmac.Equal(confirmation(h.keys, clientLabel, h.transcript), data) {
		h.keys.Reset()
		return nil, ErrConfirmationFailed
	}
	return h.keys, nil
}
