// SPDX-FileCopyrightText: Copyright (C) 2026 The Mixlink Authors
// SPDX-License-Identifier: AGPL-3.0-only

package packet

import (
	"io"
	"testing"

	"github.com/katzenpost/hpqc/rand"
	"github.com/stretchr/testify/require"
)

func randomPacketBytes(t *testing.T, s Size) []byte {
	b := make([]byte, s.Len())
	_, err := io.ReadFull(rand.Reader, b)
	require.NoError(t, err)
	b[0] = Version
	return b
}

func TestSizeOf(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	for _, s := range Sizes {
		got, err := SizeOf(s.Len())
		require.NoError(err)
		require.Equal(s, got)
	}
	require.Equal(387, ACK.Len())
	require.Equal(2412, Regular.Len())
	require.Equal(33132, Extended.Len())

	_, err := SizeOf(Regular.Len() + 1)
	require.ErrorIs(err, ErrInvalidSize)
	_, err = SizeOf(0)
	require.ErrorIs(err, ErrInvalidSize)
}

func TestFromBytes(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	for _, s := range Sizes {
		b := randomPacketBytes(t, s)
		p, err := FromBytes(b)
		require.NoError(err)
		require.Equal(s, p.Size())
		require.Equal(b, p.Bytes())

		// The packet must not alias the input.
		b[1] ^= 0xff
		require.NotEqual(b, p.Bytes())
	}

	b := randomPacketBytes(t, Regular)
	b[0] = 0x7f
	_, err := FromBytes(b)
	require.ErrorIs(err, ErrMalformed)

	_, err = FromBytes(b[:100])
	require.ErrorIs(err, ErrInvalidSize)
}

func TestNew(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	header := make([]byte, HeaderLength)
	header[0] = Version

	p, err := New(header, make([]byte, PayloadOverhead+ACKPayloadLength))
	require.NoError(err)
	require.Equal(ACK, p.Size())
	require.Equal("ACK", p.Size().String())

	_, err = New(header[:10], nil)
	require.ErrorIs(err, ErrMalformed)

	_, err = New(header, make([]byte, 3))
	require.ErrorIs(err, ErrInvalidSize)
}
