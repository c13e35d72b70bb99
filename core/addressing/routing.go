// SPDX-FileCopyrightText: Copyright (C) 2026 The Mixlink Authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package addressing implements the fixed-size byte encodings of mix node
// routing addresses and client destination addresses.
package addressing

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"

	"github.com/katzenpost/hpqc/util"
)

// RoutingAddressLength is the length of an encoded RoutingAddress.
const RoutingAddressLength = 32

const (
	versionIPv4 = 4
	versionIPv6 = 6

	headerLength = 1 + 2
)

// ErrInvalidRoutingAddress is the error returned when a RoutingAddress
// fails to decode.
var ErrInvalidRoutingAddress = errors.New("addressing: invalid routing address")

// RoutingAddress is the address of the next hop a packet is forwarded to.
//
// The wire form is version(1) || port(2, big endian) || ip(4 or 16),
// zero padded to RoutingAddressLength bytes.
type RoutingAddress struct {
	addr netip.AddrPort
}

// NewRoutingAddress creates a RoutingAddress from ap.  IPv4-mapped IPv6
// addresses are stored as IPv4.
func NewRoutingAddress(ap netip.AddrPort) (RoutingAddress, error) {
	ip := ap.Addr().Unmap()
	if !ip.IsValid() {
		return RoutingAddress{}, fmt.Errorf("%w: no ip address", ErrInvalidRoutingAddress)
	}
	if ip.Zone() != "" {
		return RoutingAddress{}, fmt.Errorf("%w: zoned address %v", ErrInvalidRoutingAddress, ip)
	}
	return RoutingAddress{addr: netip.AddrPortFrom(ip, ap.Port())}, nil
}

// ParseRoutingAddress parses a "host:port" string with a literal ip.
func ParseRoutingAddress(s string) (RoutingAddress, error) {
	ap, err := netip.ParseAddrPort(s)
	if err != nil {
		return RoutingAddress{}, fmt.Errorf("%w: %v", ErrInvalidRoutingAddress, err)
	}
	return NewRoutingAddress(ap)
}

// AddrPort returns the ip and port of the address.
func (a RoutingAddress) AddrPort() netip.AddrPort {
	return a.addr
}

// String returns the "ip:port" form of the address.
func (a RoutingAddress) String() string {
	return a.addr.String()
}

// Bytes returns the RoutingAddressLength byte encoding of the address.
func (a RoutingAddress) Bytes() []byte {
	b := make([]byte, RoutingAddressLength)
	ip := a.addr.Addr()
	switch {
	case ip.Is4():
		b[0] = versionIPv4
	case ip.Is6():
		b[0] = versionIPv6
	default:
		panic("BUG: addressing: encoding an uninitialized RoutingAddress")
	}
	binary.BigEndian.PutUint16(b[1:3], a.addr.Port())
	copy(b[headerLength:], ip.AsSlice())
	return b
}

// RoutingAddressFromBytes decodes exactly RoutingAddressLength bytes.
func RoutingAddressFromBytes(b []byte) (RoutingAddress, error) {
	if len(b) != RoutingAddressLength {
		return RoutingAddress{}, fmt.Errorf("%w: length %d", ErrInvalidRoutingAddress, len(b))
	}

	var ipLen int
	switch b[0] {
	case versionIPv4:
		ipLen = 4
	case versionIPv6:
		ipLen = 16
	default:
		return RoutingAddress{}, fmt.Errorf("%w: unknown version %d", ErrInvalidRoutingAddress, b[0])
	}
	if !util.CtIsZero(b[headerLength+ipLen:]) {
		return RoutingAddress{}, fmt.Errorf("%w: non-zero padding", ErrInvalidRoutingAddress)
	}

	ip, ok := netip.AddrFromSlice(b[headerLength : headerLength+ipLen])
	if !ok {
		return RoutingAddress{}, ErrInvalidRoutingAddress
	}
	port := binary.BigEndian.Uint16(b[1:3])
	return RoutingAddress{addr: netip.AddrPortFrom(ip, port)}, nil
}

// SplitRoutingAddress decodes the RoutingAddress prefix of b, returning it
// together with the remaining bytes.
func SplitRoutingAddress(b []byte) (RoutingAddress, []byte, error) {
	if len(b) < RoutingAddressLength {
		return RoutingAddress{}, nil, fmt.Errorf("%w: length %d", ErrInvalidRoutingAddress, len(b))
	}
	a, err := RoutingAddressFromBytes(b[:RoutingAddressLength])
	if err != nil {
		return RoutingAddress{}, nil, err
	}
	return a, b[RoutingAddressLength:], nil
}
