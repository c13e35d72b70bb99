// SPDX-FileCopyrightText: Copyright (C) 2026 The Mixlink Authors
// SPDX-License-Identifier: AGPL-3.0-only

package requests

import (
	"errors"

	"github.com/katzenpost/mixlink/core/addressing"
	"github.com/katzenpost/mixlink/core/packet"
)

// BinaryRequest is a client to gateway request sent as an encrypted binary
// frame.
//
// The frame carries no type tag.  ForwardPacket is the only variant; any
// additional variant requires a discriminant inside the encrypted plaintext.
type BinaryRequest interface {
	// EncryptedTaggedBytes returns the framed request.
	EncryptedTaggedBytes(keys SharedKeys) []byte

	binaryRequest()
}

// ForwardPacket asks the gateway to forward a sphinx packet to the first
// hop.
type ForwardPacket struct {
	Address addressing.RoutingAddress
	Packet  *packet.Packet
}

// NewForwardPacket returns a ForwardPacket request.
func NewForwardPacket(address addressing.RoutingAddress, pkt *packet.Packet) *ForwardPacket {
	return &ForwardPacket{
		Address: address,
		Packet:  pkt,
	}
}

func (r *ForwardPacket) binaryRequest() {}

// Sphinx packets are randomized per packet, even along the same route.
func (r *ForwardPacket) uniquePlaintext() {}

// EncryptedTaggedBytes implements BinaryRequest.
func (r *ForwardPacket) EncryptedTaggedBytes(keys SharedKeys) []byte {
	pkt := r.Packet.Bytes()
	b := make([]byte, 0, addressing.RoutingAddressLength+len(pkt))
	b = append(b, r.Address.Bytes()...)
	b = append(b, pkt...)
	return encodeMessageFrame(r, b, keys)
}

// BinaryRequestFromEncryptedTaggedBytes authenticates, decrypts and parses a
// binary request frame.  raw is decrypted in place.
func BinaryRequestFromEncryptedTaggedBytes(raw []byte, keys SharedKeys) (BinaryRequest, error) {
	plaintext, err := DecodeFrame(raw, keys)
	if err != nil {
		return nil, err
	}

	address, pktBytes, err := addressing.SplitRoutingAddress(plaintext)
	if err != nil {
		return nil, ErrIncorrectlyEncodedAddress
	}
	if _, err := packet.SizeOf(len(pktBytes)); err != nil {
		return nil, &RequestOfInvalidSizeError{Size: len(pktBytes)}
	}
	pkt, err := packet.FromBytes(pktBytes)
	if err != nil {
		return nil, ErrMalformedPacket
	}
	return NewForwardPacket(address, pkt), nil
}

// BinaryResponse is a gateway to client message sent as an encrypted binary
// frame.
type BinaryResponse interface {
	// EncryptedTaggedBytes returns the framed response.
	EncryptedTaggedBytes(keys SharedKeys) []byte

	binaryResponse()
}

// PushedMessage is a message delivered to the client by its gateway.
type PushedMessage struct {
	Payload []byte
}

// NewPushedMessage returns a PushedMessage response.
func NewPushedMessage(payload []byte) *PushedMessage {
	return &PushedMessage{Payload: payload}
}

func (r *PushedMessage) binaryResponse() {}

// Delivered payloads are sphinx payloads, randomized per packet.
func (r *PushedMessage) uniquePlaintext() {}

// EncryptedTaggedBytes implements BinaryResponse.
func (r *PushedMessage) EncryptedTaggedBytes(keys SharedKeys) []byte {
	return encodeMessageFrame(r, r.Payload, keys)
}

// BinaryResponseFromEncryptedTaggedBytes authenticates and decrypts a binary
// response frame.  raw is decrypted in place.
func BinaryResponseFromEncryptedTaggedBytes(raw []byte, keys SharedKeys) (BinaryResponse, error) {
	plaintext, err := DecodeFrame(raw, keys)
	if err != nil {
		return nil, err
	}
	return NewPushedMessage(plaintext), nil
}

// DecodeErrorReason returns a short label for a per-frame decoding error,
// or "" if err is not one.  Decoding errors reject a single frame and leave
// the connection usable.
func DecodeErrorReason(err error) string {
	switch {
	case errors.Is(err, ErrTooShortRequest):
		return "too_short"
	case errors.Is(err, ErrInvalidMAC):
		return "invalid_mac"
	case errors.Is(err, ErrIncorrectlyEncodedAddress):
		return "bad_address"
	case errors.Is(err, ErrRequestOfInvalidSize):
		return "invalid_size"
	case errors.Is(err, ErrMalformedPacket):
		return "malformed_packet"
	case errors.Is(err, ErrMalformedEncryption):
		return "malformed_encryption"
	default:
		return ""
	}
}
