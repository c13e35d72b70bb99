// SPDX-FileCopyrightText: Copyright (C) 2026 The Mixlink Authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package registration implements the client to gateway registration
// handshake and the shared key material it produces.
package registration

import (
	"crypto/subtle"
	"errors"

	"github.com/katzenpost/mixlink/core/addressing"
	"github.com/katzenpost/mixlink/gateway/symmetric"
)

// SharedKeysLength is the length of serialized SharedKeys.
const SharedKeysLength = symmetric.MacKeyLength + symmetric.EncryptionKeyLength

// ErrInvalidKeys is the error returned when key material has the wrong size.
var ErrInvalidKeys = errors.New("registration: invalid shared key material")

// SharedKeys is the symmetric key material shared by a client and its
// gateway.
type SharedKeys struct {
	macKey [symmetric.MacKeyLength]byte
	encKey [symmetric.EncryptionKeyLength]byte
}

// NewSharedKeys constructs SharedKeys from a MAC key and an encryption key.
func NewSharedKeys(macKey, encKey []byte) (*SharedKeys, error) {
	if len(macKey) != symmetric.MacKeyLength || len(encKey) != symmetric.EncryptionKeyLength {
		return nil, ErrInvalidKeys
	}
	k := new(SharedKeys)
	copy(k.macKey[:], macKey)
	copy(k.encKey[:], encKey)
	return k, nil
}

// SharedKeysFromBytes deserializes SharedKeys produced by Bytes.
func SharedKeysFromBytes(b []byte) (*SharedKeys, error) {
	if len(b) != SharedKeysLength {
		return nil, ErrInvalidKeys
	}
	return NewSharedKeys(b[:symmetric.MacKeyLength], b[symmetric.MacKeyLength:])
}

// Bytes returns the serialized keys.
func (k *SharedKeys) Bytes() []byte {
	b := make([]byte, 0, SharedKeysLength)
	b = append(b, k.macKey[:]...)
	return append(b, k.encKey[:]...)
}

// MacKey returns the frame authentication key.
func (k *SharedKeys) MacKey() []byte {
	return k.macKey[:]
}

// EncryptionKey returns the frame encryption key.
func (k *SharedKeys) EncryptionKey() []byte {
	return k.encKey[:]
}

// EncryptAndTag encrypts plaintext under iv, or the zero IV if iv is nil,
// and returns tag || ciphertext.
func (k *SharedKeys) EncryptAndTag(plaintext, iv []byte) []byte {
	if iv == nil {
		iv = symmetric.ZeroIV()
	}
	out := make([]byte, symmetric.TagLength+len(plaintext))
	ct := out[symmetric.TagLength:]
	if err := symmetric.XORKeyStream(k.encKey[:], iv, ct, plaintext); err != nil {
		panic("BUG: registration: " + err.Error())
	}
	copy(out, symmetric.Tag(k.macKey[:], ct))
	return out
}

// EncryptAddress encrypts the destination address under iv, proving
// possession of the keys when authenticating.
func (k *SharedKeys) EncryptAddress(address addressing.DestinationAddress, iv []byte) ([]byte, error) {
	if len(iv) != symmetric.IVLength {
		return nil, ErrInvalidIV
	}
	out := make([]byte, addressing.DestinationAddressLength)
	if err := symmetric.XORKeyStream(k.encKey[:], iv, out, address.Bytes()); err != nil {
		return nil, err
	}
	return out, nil
}

// VerifyAddress returns true iff encAddress is address encrypted under iv.
func (k *SharedKeys) VerifyAddress(address addressing.DestinationAddress, encAddress, iv []byte) bool {
	expected, err := k.EncryptAddress(address, iv)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(expected, encAddress) == 1
}

// Equal compares two sets of keys in constant time.
func (k *SharedKeys) Equal(other *SharedKeys) bool {
	return subtle.ConstantTimeCompare(k.Bytes(), other.Bytes()) == 1
}

// Reset clears the key material.
func (k *SharedKeys) Reset() {
	clear(k.macKey[:])
	clear(k.encKey[:])
}
