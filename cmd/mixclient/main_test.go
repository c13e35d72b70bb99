// SPDX-FileCopyrightText: Copyright (C) 2026 The Mixlink Authors
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/katzenpost/mixlink/client/mixtraffic"
	"github.com/katzenpost/mixlink/core/addressing"
	"github.com/katzenpost/mixlink/core/packet"
)

func regularPacket() (*packet.Packet, error) {
	return randomPacket(packet.Regular)
}

func drain(t *testing.T, queue *mixtraffic.BatchQueue) []int {
	var sizes []int
	for {
		batch, err := queue.Pop(context.Background())
		if errors.Is(err, mixtraffic.ErrQueueClosed) {
			return sizes
		}
		require.NoError(t, err)
		sizes = append(sizes, len(batch))
	}
}

func TestProduce(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	firstHop, err := addressing.ParseRoutingAddress("198.51.100.7:29483")
	require.NoError(err)

	queue := mixtraffic.NewBatchQueue(0)
	n, err := produce(context.Background(), queue, firstHop, 7, 3, regularPacket)
	require.NoError(err)
	require.Equal(7, n)
	require.Equal([]int{3, 3, 1}, drain(t, queue))
}

func TestProduceGenerationFailure(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	firstHop, err := addressing.ParseRoutingAddress("198.51.100.7:29483")
	require.NoError(err)

	errNoEntropy := errors.New("no entropy")
	calls := 0
	newPacket := func() (*packet.Packet, error) {
		if calls++; calls > 4 {
			return nil, errNoEntropy
		}
		return regularPacket()
	}

	queue := mixtraffic.NewBatchQueue(0)
	n, err := produce(context.Background(), queue, firstHop, 10, 2, newPacket)
	require.ErrorIs(err, errNoEntropy)
	require.Equal(4, n)
	require.Equal([]int{2, 2}, drain(t, queue))
}

func TestProduceCanceledWhileFull(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	firstHop, err := addressing.ParseRoutingAddress("198.51.100.7:29483")
	require.NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	queue := mixtraffic.NewBatchQueue(1)
	n, err := produce(ctx, queue, firstHop, 3, 1, regularPacket)
	require.ErrorIs(err, context.Canceled)
	require.Equal(1, n)
	require.Equal([]int{1}, drain(t, queue))
}

func TestRandomPacket(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	a, err := randomPacket(packet.Regular)
	require.NoError(err)
	require.Equal(packet.Regular, a.Size())
	require.Equal(byte(packet.Version), a.Header[0])

	b, err := randomPacket(packet.Regular)
	require.NoError(err)
	require.NotEqual(a.Bytes(), b.Bytes())
}

func TestSendCommandFlags(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	cmd := newRootCommand()
	cmd.SetArgs([]string{"send", "--count", "0", "--config", "testdata/does-not-exist.toml"})
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	require.ErrorContains(cmd.Execute(), "invalid argument")

	cmd = newRootCommand()
	cmd.SetArgs([]string{"send"})
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	require.ErrorContains(cmd.Execute(), "required flag")
}
