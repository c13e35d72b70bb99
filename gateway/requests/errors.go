// SPDX-FileCopyrightText: Copyright (C) 2026 The Mixlink Authors
// SPDX-License-Identifier: AGPL-3.0-only

package requests

import (
	"errors"
	"fmt"

	"github.com/katzenpost/mixlink/core/packet"
)

var (
	// ErrTooShortRequest is the error returned when a frame is shorter
	// than the authentication tag.
	ErrTooShortRequest = errors.New("requests: the request is too short")

	// ErrInvalidMAC is the error returned when a frame fails tag
	// verification.
	ErrInvalidMAC = errors.New("requests: provided MAC is invalid")

	// ErrIncorrectlyEncodedAddress is the error returned when the routing
	// address prefix of a forward request is malformed.
	ErrIncorrectlyEncodedAddress = errors.New("requests: address field was incorrectly encoded")

	// ErrRequestOfInvalidSize is matched by every *RequestOfInvalidSizeError.
	ErrRequestOfInvalidSize = errors.New("requests: received request had invalid size")

	// ErrMalformedPacket is the error returned when a forwarded packet of a
	// valid size does not parse.
	ErrMalformedPacket = errors.New("requests: received sphinx packet was malformed")

	// ErrMalformedEncryption is the error returned when the encrypted part
	// of a frame can not be decrypted.
	ErrMalformedEncryption = errors.New("requests: the received encrypted data was malformed")

	// ErrUnknownMessageType is the error returned when a control message
	// carries an unknown type discriminant.
	ErrUnknownMessageType = errors.New("requests: unknown message type")
)

// RequestOfInvalidSizeError is the error returned when a forwarded packet
// does not match any packet size class. errors.Is(err,
// ErrRequestOfInvalidSize) holds for it.
type RequestOfInvalidSizeError struct {
	// Size is the actual length of the packet bytes.
	Size int
}

// Error implements the error interface.
func (e *RequestOfInvalidSizeError) Error() string {
	return fmt.Sprintf("requests: received request had invalid size. (actual: %d, but expected one of: %d (ACK), %d (REGULAR), %d (EXTENDED))",
		e.Size, packet.ACK.Len(), packet.Regular.Len(), packet.Extended.Len())
}

// Is reports whether target is ErrRequestOfInvalidSize.
func (e *RequestOfInvalidSizeError) Is(target error) bool {
	return target == ErrRequestOfInvalidSize
}
