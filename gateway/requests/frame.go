// SPDX-FileCopyrightText: Copyright (C) 2026 The Mixlink Authors
// SPDX-License-Identifier: AGPL-3.0-only

package requests

import (
	"github.com/katzenpost/mixlink/gateway/symmetric"
)

// SharedKeys is the per connection key material derived during
// registration.
type SharedKeys interface {
	// MacKey returns the frame authentication key.
	MacKey() []byte

	// EncryptionKey returns the frame encryption key.
	EncryptionKey() []byte

	// EncryptAndTag encrypts plaintext under iv (the zero IV if nil) and
	// returns tag || ciphertext, the tag covering the ciphertext.
	EncryptAndTag(plaintext, iv []byte) []byte
}

// uniquePlaintext is implemented by every message type sent in a zero IV
// frame.  Implementing it asserts the plaintext is unique per key.
type uniquePlaintext interface {
	uniquePlaintext()
}

// EncodeFrame encrypts plaintext under the zero IV and prefixes the tag.
// The plaintext MUST embed enough randomness to never repeat under keys.
func EncodeFrame(plaintext []byte, keys SharedKeys) []byte {
	return keys.EncryptAndTag(plaintext, nil)
}

func encodeMessageFrame(_ uniquePlaintext, plaintext []byte, keys SharedKeys) []byte {
	return EncodeFrame(plaintext, keys)
}

// DecodeFrame verifies the tag of raw and returns the decrypted plaintext.
// raw is decrypted in place.
func DecodeFrame(raw []byte, keys SharedKeys) ([]byte, error) {
	if len(raw) < symmetric.TagLength {
		return nil, ErrTooShortRequest
	}

	tag := raw[:symmetric.TagLength]
	msg := raw[symmetric.TagLength:]
	if !symmetric.VerifyTag(keys.MacKey(), msg, tag) {
		return nil, ErrInvalidMAC
	}

	if err := symmetric.XORKeyStream(keys.EncryptionKey(), symmetric.ZeroIV(), msg, msg); err != nil {
		return nil, ErrMalformedEncryption
	}
	return msg, nil
}
