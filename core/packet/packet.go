// SPDX-FileCopyrightText: Copyright (C) 2026 The Mixlink Authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package packet provides the opaque sphinx packet container carried
// between a client and its gateway, and the permitted packet size classes.
package packet

import (
	"errors"
	"fmt"
)

const (
	// HeaderLength is the length of a sphinx packet header.
	HeaderLength = 348

	// PayloadOverhead is the per-packet payload authentication overhead.
	PayloadOverhead = 16

	// ACKPayloadLength is the payload length of an ACK packet.
	ACKPayloadLength = 23

	// RegularPayloadLength is the payload length of a regular packet.
	RegularPayloadLength = 2048

	// ExtendedPayloadLength is the payload length of an extended packet.
	ExtendedPayloadLength = 32 * 1024

	// Version is the packet format version, the first header byte.
	Version = 0x01
)

var (
	// ErrInvalidSize is the error returned for lengths that match no
	// size class.
	ErrInvalidSize = errors.New("packet: invalid packet size")

	// ErrMalformed is the error returned when packet bytes of a valid size
	// do not parse as a packet.
	ErrMalformed = errors.New("packet: malformed packet")
)

// Size is a packet size class.
type Size int

const (
	// ACK is the size class of SURB-ACK packets.
	ACK Size = iota
	// Regular is the size class of ordinary packets.
	Regular
	// Extended is the size class of large payload packets.
	Extended
)

// Len returns the total packet length for the size class.
func (s Size) Len() int {
	return HeaderLength + PayloadOverhead + s.PayloadLen()
}

// PayloadLen returns the user payload length for the size class.
func (s Size) PayloadLen() int {
	switch s {
	case ACK:
		return ACKPayloadLength
	case Regular:
		return RegularPayloadLength
	case Extended:
		return ExtendedPayloadLength
	default:
		panic(fmt.Sprintf("BUG: packet: invalid size class %d", int(s)))
	}
}

func (s Size) String() string {
	switch s {
	case ACK:
		return "ACK"
	case Regular:
		return "REGULAR"
	case Extended:
		return "EXTENDED"
	default:
		return fmt.Sprintf("[invalid size class: %d]", int(s))
	}
}

// Sizes lists every size class, smallest first.
var Sizes = []Size{ACK, Regular, Extended}

// SizeOf returns the size class of an n byte packet.
func SizeOf(n int) (Size, error) {
	for _, s := range Sizes {
		if s.Len() == n {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: %d", ErrInvalidSize, n)
}

// Packet is an opaque, already layer-encrypted sphinx packet.
type Packet struct {
	Header  []byte
	Payload []byte
}

// New assembles a packet from a header and a payload, copying both.
func New(header, payload []byte) (*Packet, error) {
	if len(header) != HeaderLength {
		return nil, fmt.Errorf("%w: header length %d", ErrMalformed, len(header))
	}
	if header[0] != Version {
		return nil, fmt.Errorf("%w: version %d", ErrMalformed, header[0])
	}
	if _, err := SizeOf(len(header) + len(payload)); err != nil {
		return nil, err
	}
	return &Packet{
		Header:  append([]byte{}, header...),
		Payload: append([]byte{}, payload...),
	}, nil
}

// FromBytes parses b, which must be the length of one of the size classes.
func FromBytes(b []byte) (*Packet, error) {
	if _, err := SizeOf(len(b)); err != nil {
		return nil, err
	}
	return New(b[:HeaderLength], b[HeaderLength:])
}

// Bytes returns the serialized packet.
func (p *Packet) Bytes() []byte {
	b := make([]byte, 0, len(p.Header)+len(p.Payload))
	b = append(b, p.Header...)
	return append(b, p.Payload...)
}

// Size returns the size class of the packet.
func (p *Packet) Size() Size {
	s, err := SizeOf(len(p.Header) + len(p.Payload))
	if err != nil {
		panic("BUG: packet: packet of invalid size: " + err.Error())
	}
	return s
}
