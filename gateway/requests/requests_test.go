// SPDX-FileCopyrightText: Copyright (C) 2026 The Mixlink Authors
// SPDX-License-Identifier: AGPL-3.0-only

package requests

import (
	"io"
	"testing"

	"github.com/katzenpost/hpqc/rand"
	"github.com/stretchr/testify/require"

	"github.com/katzenpost/mixlink/core/addressing"
	"github.com/katzenpost/mixlink/core/packet"
	"github.com/katzenpost/mixlink/gateway/symmetric"
)

type testKeys struct {
	macKey []byte
	encKey []byte
}

func (k *testKeys) MacKey() []byte        { return k.macKey }
func (k *testKeys) EncryptionKey() []byte { return k.encKey }

func (k *testKeys) EncryptAndTag(plaintext, iv []byte) []byte {
	if iv == nil {
		iv = symmetric.ZeroIV()
	}
	ct := make([]byte, len(plaintext))
	if err := symmetric.XORKeyStream(k.encKey, iv, ct, plaintext); err != nil {
		panic(err)
	}
	return append(symmetric.Tag(k.macKey, ct), ct...)
}

func randomBytes(t *testing.T, n int) []byte {
	b := make([]byte, n)
	_, err := io.ReadFull(rand.Reader, b)
	require.NoError(t, err)
	return b
}

func newTestKeys(t *testing.T) *testKeys {
	return &testKeys{
		macKey: randomBytes(t, symmetric.MacKeyLength),
		encKey: randomBytes(t, symmetric.EncryptionKeyLength),
	}
}

func newTestPacket(t *testing.T, s packet.Size) *packet.Packet {
	b := randomBytes(t, s.Len())
	b[0] = packet.Version
	pkt, err := packet.FromBytes(b)
	require.NoError(t, err)
	return pkt
}

func TestFrameRoundTrip(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	keys := newTestKeys(t)
	for _, n := range []int{0, 1, 31, 32, 33, 2412, 40000} {
		plaintext := randomBytes(t, n)
		frame := EncodeFrame(plaintext, keys)
		require.Len(frame, symmetric.TagLength+n)

		got, err := DecodeFrame(append([]byte{}, frame...), keys)
		require.NoError(err)
		require.Equal(plaintext, got)
	}
}

func TestFrameBitFlips(t *testing.T) {
	t.Parallel()

	keys := newTestKeys(t)
	frame := EncodeFrame(randomBytes(t, 64), keys)
	for i := range frame {
		for _, bit := range []byte{0x01, 0x80} {
			tampered := append([]byte{}, frame...)
			tampered[i] ^= bit
			_, err := DecodeFrame(tampered, keys)
			require.ErrorIs(t, err, ErrInvalidMAC, "byte %d", i)
		}
	}
}

func TestFrameTooShort(t *testing.T) {
	t.Parallel()

	keys := newTestKeys(t)
	for n := 0; n < symmetric.TagLength; n++ {
		_, err := DecodeFrame(make([]byte, n), keys)
		require.ErrorIs(t, err, ErrTooShortRequest)

		_, err = BinaryRequestFromEncryptedTaggedBytes(make([]byte, n), keys)
		require.ErrorIs(t, err, ErrTooShortRequest)

		_, err = BinaryResponseFromEncryptedTaggedBytes(make([]byte, n), keys)
		require.ErrorIs(t, err, ErrTooShortRequest)
	}
}

func TestFrameWrongKeys(t *testing.T) {
	t.Parallel()

	frame := EncodeFrame([]byte("hello gateway"), newTestKeys(t))
	_, err := DecodeFrame(frame, newTestKeys(t))
	require.ErrorIs(t, err, ErrInvalidMAC)
}

func TestFrameMalformedEncryption(t *testing.T) {
	t.Parallel()

	keys := newTestKeys(t)
	keys.encKey = keys.encKey[:7]
	ct := []byte("not really encrypted")
	frame := append(symmetric.Tag(keys.macKey, ct), ct...)

	_, err := DecodeFrame(frame, keys)
	require.ErrorIs(t, err, ErrMalformedEncryption)
	require.Equal(t, "malformed_encryption", DecodeErrorReason(err))
}

func TestForwardPacket(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	keys := newTestKeys(t)
	address, err := addressing.ParseRoutingAddress("203.0.113.9:29483")
	require.NoError(err)

	for _, s := range packet.Sizes {
		pkt := newTestPacket(t, s)
		raw := NewForwardPacket(address, pkt).EncryptedTaggedBytes(keys)
		require.Len(raw, symmetric.TagLength+addressing.RoutingAddressLength+s.Len())

		req, err := BinaryRequestFromEncryptedTaggedBytes(raw, keys)
		require.NoError(err)
		require.IsType(&ForwardPacket{}, req)

		fwd := req.(*ForwardPacket)
		require.Equal(address, fwd.Address)
		require.Equal(pkt.Bytes(), fwd.Packet.Bytes())
	}
}

func TestForwardPacketInvalidSize(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	keys := newTestKeys(t)
	address, err := addressing.ParseRoutingAddress("203.0.113.9:29483")
	require.NoError(err)

	for _, n := range []int{0, 1, packet.Regular.Len() - 1, packet.Regular.Len() + 1} {
		plaintext := append(address.Bytes(), randomBytes(t, n)...)
		_, err := BinaryRequestFromEncryptedTaggedBytes(EncodeFrame(plaintext, keys), keys)
		require.ErrorIs(err, ErrRequestOfInvalidSize)

		var sizeErr *RequestOfInvalidSizeError
		require.ErrorAs(err, &sizeErr)
		require.Equal(n, sizeErr.Size)
		require.Contains(sizeErr.Error(), "2412 (REGULAR)")
	}
}

func TestForwardPacketBadAddress(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	keys := newTestKeys(t)
	pkt := newTestPacket(t, packet.Regular)

	badAddress := make([]byte, addressing.RoutingAddressLength)
	badAddress[0] = 0xee
	_, err := BinaryRequestFromEncryptedTaggedBytes(EncodeFrame(append(badAddress, pkt.Bytes()...), keys), keys)
	require.ErrorIs(err, ErrIncorrectlyEncodedAddress)

	_, err = BinaryRequestFromEncryptedTaggedBytes(EncodeFrame(make([]byte, 5), keys), keys)
	require.ErrorIs(err, ErrIncorrectlyEncodedAddress)
	require.Equal("bad_address", DecodeErrorReason(err))
}

func TestForwardPacketMalformed(t *testing.T) {
	t.Parallel()

	keys := newTestKeys(t)
	address, err := addressing.ParseRoutingAddress("[2001:db8::2]:1")
	require.NoError(t, err)

	pktBytes := newTestPacket(t, packet.ACK).Bytes()
	pktBytes[0] = packet.Version + 1
	_, err = BinaryRequestFromEncryptedTaggedBytes(EncodeFrame(append(address.Bytes(), pktBytes...), keys), keys)
	require.ErrorIs(t, err, ErrMalformedPacket)
}

func TestPushedMessage(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	keys := newTestKeys(t)
	payload := randomBytes(t, 1234)

	raw := NewPushedMessage(payload).EncryptedTaggedBytes(keys)
	resp, err := BinaryResponseFromEncryptedTaggedBytes(raw, keys)
	require.NoError(err)
	require.Equal(&PushedMessage{Payload: payload}, resp)

	raw = NewPushedMessage(payload).EncryptedTaggedBytes(keys)
	raw[len(raw)-1] ^= 0x10
	_, err = BinaryResponseFromEncryptedTaggedBytes(raw, keys)
	require.ErrorIs(err, ErrInvalidMAC)
}

func TestDecodeErrorReason(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	require.Equal("too_short", DecodeErrorReason(ErrTooShortRequest))
	require.Equal("invalid_mac", DecodeErrorReason(ErrInvalidMAC))
	require.Equal("invalid_size", DecodeErrorReason(&RequestOfInvalidSizeError{Size: 3}))
	require.Equal("malformed_packet", DecodeErrorReason(ErrMalformedPacket))
	require.Equal("", DecodeErrorReason(io.EOF))
}
