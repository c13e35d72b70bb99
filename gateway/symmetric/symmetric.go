// SPDX-FileCopyrightText: Copyright (C) 2026 The Mixlink Authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package symmetric provides the integrity and encryption primitives used to
// protect client to gateway traffic: keyed BLAKE2b-256 tags and the ChaCha20
// stream cipher.
package symmetric

import (
	"crypto/hmac"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20"
)

const (
	// MacKeyLength is the length of a tag key.
	MacKeyLength = 32

	// EncryptionKeyLength is the length of a stream cipher key.
	EncryptionKeyLength = chacha20.KeySize

	// TagLength is the length of an authentication tag.
	TagLength = blake2b.Size256

	// IVLength is the length of a stream cipher IV.
	IVLength = chacha20.NonceSize
)

// ZeroIV returns the all zero IV.  Callers may only use it for messages
// whose plaintext guarantees uniqueness under a given key.
func ZeroIV() []byte {
	return make([]byte, IVLength)
}

// Tag computes the authentication tag of msg under key.
func Tag(key, msg []byte) []byte {
	if len(key) != MacKeyLength {
		panic("BUG: symmetric: invalid MAC key length")
	}
	h, err := blake2b.New256(key)
	if err != nil {
		panic("BUG: symmetric: blake2b.New256: " + err.Error())
	}
	h.Write(msg)
	return h.Sum(nil)
}

// VerifyTag recomputes the tag of msg and compares it against tag in
// constant time.
func VerifyTag(key, msg, tag []byte) bool {
	return hmac.Equal(Tag(key, msg), tag)
}

// XORKeyStream encrypts or decrypts src into dst, which may overlap
// entirely.
func XORKeyStream(key, iv, dst, src []byte) error {
	c, err := chacha20.NewUnauthenticatedCipher(key, iv)
	if err != nil {
		return err
	}
	c.XORKeyStream(dst, src)
	return nil
}
