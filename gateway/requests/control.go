// SPDX-FileCopyrightText: Copyright (C) 2026 The Mixlink Authors
// SPDX-License-Identifier: AGPL-3.0-only

package requests

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/katzenpost/mixlink/core/addressing"
	"github.com/mr-tron/base58"
)

// Control message type discriminants.
const (
	typeAuthenticate                 = "authenticate"
	typeRegisterHandshakeInitRequest = "registerHandshakeInitRequest"
	typeHandshakePayload             = "handshakePayload"
	typeHandshakeError               = "handshakeError"
	typeRegister                     = "register"
	typeSend                         = "send"
	typeError                        = "error"
)

var errMissingField = errors.New("requests: missing field")

// ByteArray is a byte slice serialized as a JSON array of numbers.
type ByteArray []byte

// MarshalJSON implements json.Marshaler.
func (a ByteArray) MarshalJSON() ([]byte, error) {
	v := make([]uint16, len(a))
	for i, b := range a {
		v[i] = uint16(b)
	}
	return json.Marshal(v)
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *ByteArray) UnmarshalJSON(b []byte) error {
	var v []uint16
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	out := make([]byte, len(v))
	for i, x := range v {
		if x > 0xff {
			return fmt.Errorf("requests: byte value out of range: %d", x)
		}
		out[i] = byte(x)
	}
	*a = out
	return nil
}

// envelope is the union of every control message field.
type envelope struct {
	Type       string     `json:"type"`
	Address    *string    `json:"address,omitempty"`
	EncAddress *string    `json:"encAddress,omitempty"`
	IV         *string    `json:"iv,omitempty"`
	Data       *ByteArray `json:"data,omitempty"`
	Status     *bool      `json:"status,omitempty"`
	Message    *string    `json:"message,omitempty"`
}

func encode(e *envelope) []byte {
	b, err := json.Marshal(e)
	if err != nil {
		// Every envelope is built locally from valid types.
		panic("BUG: requests: failed to serialize control message: " + err.Error())
	}
	return b
}

func decodeEnvelope(b []byte) (*envelope, error) {
	e := new(envelope)
	if err := json.Unmarshal(b, e); err != nil {
		return nil, fmt.Errorf("requests: failed to parse control message: %w", err)
	}
	return e, nil
}

func requireFields(e *envelope, present ...bool) error {
	for _, ok := range present {
		if !ok {
			return fmt.Errorf("%w in %q message", errMissingField, e.Type)
		}
	}
	return nil
}

// ControlRequest is a client to gateway text frame.
type ControlRequest interface {
	envelope() *envelope
	controlRequest()
}

// AuthenticateRequest authenticates a client that registered earlier.  All
// fields are base58 encoded.
type AuthenticateRequest struct {
	Address    string
	EncAddress string
	IV         string
}

// NewAuthenticateRequest base58 encodes the authentication material.
func NewAuthenticateRequest(address addressing.DestinationAddress, encAddress, iv []byte) *AuthenticateRequest {
	return &AuthenticateRequest{
		Address:    address.Base58(),
		EncAddress: base58.Encode(encAddress),
		IV:         base58.Encode(iv),
	}
}

// Decode returns the binary authentication material.
func (r *AuthenticateRequest) Decode() (addressing.DestinationAddress, []byte, []byte, error) {
	address, err := addressing.DestinationAddressFromBase58(r.Address)
	if err != nil {
		return address, nil, nil, err
	}
	encAddress, err := base58.Decode(r.EncAddress)
	if err != nil {
		return address, nil, nil, fmt.Errorf("requests: invalid encrypted address: %w", err)
	}
	iv, err := base58.Decode(r.IV)
	if err != nil {
		return address, nil, nil, fmt.Errorf("requests: invalid iv: %w", err)
	}
	return address, encAddress, iv, nil
}

func (r *AuthenticateRequest) controlRequest() {}

func (r *AuthenticateRequest) envelope() *envelope {
	return &envelope{
		Type:       typeAuthenticate,
		Address:    &r.Address,
		EncAddress: &r.EncAddress,
		IV:         &r.IV,
	}
}

// RegisterHandshakeInitRequest starts the registration handshake.
type RegisterHandshakeInitRequest struct {
	Data []byte
}

func (r *RegisterHandshakeInitRequest) controlRequest() {}

func (r *RegisterHandshakeInitRequest) envelope() *envelope {
	d := ByteArray(r.Data)
	return &envelope{
		Type: typeRegisterHandshakeInitRequest,
		Data: &d,
	}
}

// EncodeControlRequest serializes r into a text frame body.
func EncodeControlRequest(r ControlRequest) []byte {
	return encode(r.envelope())
}

// DecodeControlRequest parses a text frame body.  The legacy
// "handshakePayload" discriminant is accepted as a
// RegisterHandshakeInitRequest.
func DecodeControlRequest(b []byte) (ControlRequest, error) {
	e, err := decodeEnvelope(b)
	if err != nil {
		return nil, err
	}

	switch e.Type {
	case typeAuthenticate:
		if err := requireFields(e, e.Address != nil, e.EncAddress != nil, e.IV != nil); err != nil {
			return nil, err
		}
		return &AuthenticateRequest{
			Address:    *e.Address,
			EncAddress: *e.EncAddress,
			IV:         *e.IV,
		}, nil
	case typeRegisterHandshakeInitRequest, typeHandshakePayload:
		if err := requireFields(e, e.Data != nil); err != nil {
			return nil, err
		}
		return &RegisterHandshakeInitRequest{Data: []byte(*e.Data)}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, e.Type)
	}
}

// RegistrationHandshake is a text frame exchanged while the registration
// handshake is in progress.
type RegistrationHandshake interface {
	envelope() *envelope
	registrationHandshake()
}

// HandshakePayload carries handshake data.
type HandshakePayload struct {
	Data []byte
}

func (m *HandshakePayload) registrationHandshake() {}

func (m *HandshakePayload) envelope() *envelope {
	d := ByteArray(m.Data)
	return &envelope{
		Type: typeHandshakePayload,
		Data: &d,
	}
}

// HandshakeError aborts the handshake.
type HandshakeError struct {
	Message string
}

func (m *HandshakeError) registrationHandshake() {}

func (m *HandshakeError) envelope() *envelope {
	return &envelope{
		Type:    typeHandshakeError,
		Message: &m.Message,
	}
}

// EncodeRegistrationHandshake serializes m into a text frame body.
func EncodeRegistrationHandshake(m RegistrationHandshake) []byte {
	return encode(m.envelope())
}

// DecodeRegistrationHandshake parses a text frame body.
func DecodeRegistrationHandshake(b []byte) (RegistrationHandshake, error) {
	e, err := decodeEnvelope(b)
	if err != nil {
		return nil, err
	}

	switch e.Type {
	case typeHandshakePayload:
		if err := requireFields(e, e.Data != nil); err != nil {
			return nil, err
		}
		return &HandshakePayload{Data: []byte(*e.Data)}, nil
	case typeHandshakeError:
		if err := requireFields(e, e.Message != nil); err != nil {
			return nil, err
		}
		return &HandshakeError{Message: *e.Message}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, e.Type)
	}
}

// ServerResponse is a gateway to client text frame.
type ServerResponse interface {
	envelope() *envelope

	// IsError returns true iff the response is an ErrorResponse.
	IsError() bool

	// ImpliesSuccessfulAuthentication returns true iff the response
	// reports a successful authentication or registration.
	ImpliesSuccessfulAuthentication() bool
}

// AuthenticateResponse answers an AuthenticateRequest.
type AuthenticateResponse struct {
	Status bool
}

func (r *AuthenticateResponse) envelope() *envelope {
	return &envelope{Type: typeAuthenticate, Status: &r.Status}
}

// IsError implements ServerResponse.
func (r *AuthenticateResponse) IsError() bool { return false }

// ImpliesSuccessfulAuthentication implements ServerResponse.
func (r *AuthenticateResponse) ImpliesSuccessfulAuthentication() bool { return r.Status }

// RegisterResponse concludes the registration handshake.
type RegisterResponse struct {
	Status bool
}

func (r *RegisterResponse) envelope() *envelope {
	return &envelope{Type: typeRegister, Status: &r.Status}
}

// IsError implements ServerResponse.
func (r *RegisterResponse) IsError() bool { return false }

// ImpliesSuccessfulAuthentication implements ServerResponse.
func (r *RegisterResponse) ImpliesSuccessfulAuthentication() bool { return r.Status }

// SendResponse reports the outcome of a send.
type SendResponse struct {
	Status bool
}

func (r *SendResponse) envelope() *envelope {
	return &envelope{Type: typeSend, Status: &r.Status}
}

// IsError implements ServerResponse.
func (r *SendResponse) IsError() bool { return false }

// ImpliesSuccessfulAuthentication implements ServerResponse.
func (r *SendResponse) ImpliesSuccessfulAuthentication() bool { return false }

// ErrorResponse reports a request failure.
type ErrorResponse struct {
	Message string
}

// NewErrorResponse returns an ErrorResponse with a formatted message.
func NewErrorResponse(f string, a ...interface{}) *ErrorResponse {
	return &ErrorResponse{Message: fmt.Sprintf(f, a...)}
}

func (r *ErrorResponse) envelope() *envelope {
	return &envelope{Type: typeError, Message: &r.Message}
}

// IsError implements ServerResponse.
func (r *ErrorResponse) IsError() bool { return true }

// ImpliesSuccessfulAuthentication implements ServerResponse.
func (r *ErrorResponse) ImpliesSuccessfulAuthentication() bool { return false }

// EncodeServerResponse serializes r into a text frame body.
func EncodeServerResponse(r ServerResponse) []byte {
	return encode(r.envelope())
}

// DecodeServerResponse parses a text frame body.
func DecodeServerResponse(b []byte) (ServerResponse, error) {
	e, err := decodeEnvelope(b)
	if err != nil {
		return nil, err
	}

	switch e.Type {
	case typeAuthenticate, typeRegister, typeSend:
		if err := requireFields(e, e.Status != nil); err != nil {
			return nil, err
		}
		switch e.Type {
		case typeAuthenticate:
			return &AuthenticateResponse{Status: *e.Status}, nil
		case typeRegister:
			return &RegisterResponse{Status: *e.Status}, nil
		default:
			return &SendResponse{Status: *e.Status}, nil
		}
	case typeError:
		if err := requireFields(e, e.Message != nil); err != nil {
			return nil, err
		}
		return &ErrorResponse{Message: *e.Message}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, e.Type)
	}
}
