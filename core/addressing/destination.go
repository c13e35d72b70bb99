// SPDX-FileCopyrightText: Copyright (C) 2026 The Mixlink Authors
// SPDX-License-Identifier: AGPL-3.0-only

package addressing

import (
	"errors"
	"fmt"
	"io"

	"github.com/mr-tron/base58"
)

// DestinationAddressLength is the length of a client destination address.
const DestinationAddressLength = 32

// ErrInvalidDestinationAddress is the error returned when a
// DestinationAddress fails to decode.
var ErrInvalidDestinationAddress = errors.New("addressing: invalid destination address")

// DestinationAddress identifies a client to its gateway.
type DestinationAddress [DestinationAddressLength]byte

// NewDestinationAddress draws a fresh random DestinationAddress from r.
func NewDestinationAddress(r io.Reader) (DestinationAddress, error) {
	var d DestinationAddress
	if _, err := io.ReadFull(r, d[:]); err != nil {
		return d, err
	}
	return d, nil
}

// DestinationAddressFromBytes decodes exactly DestinationAddressLength bytes.
func DestinationAddressFromBytes(b []byte) (DestinationAddress, error) {
	var d DestinationAddress
	if len(b) != DestinationAddressLength {
		return d, fmt.Errorf("%w: length %d", ErrInvalidDestinationAddress, len(b))
	}
	copy(d[:], b)
	return d, nil
}

// DestinationAddressFromBase58 decodes the base58 text form.
func DestinationAddressFromBase58(s string) (DestinationAddress, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return DestinationAddress{}, fmt.Errorf("%w: %v", ErrInvalidDestinationAddress, err)
	}
	return DestinationAddressFromBytes(b)
}

// Bytes returns a copy of the address bytes.
func (d DestinationAddress) Bytes() []byte {
	return append([]byte{}, d[:]...)
}

// Base58 returns the base58 text form.
func (d DestinationAddress) Base58() string {
	return base58.Encode(d[:])
}

func (d DestinationAddress) String() string {
	return d.Base58()
}
