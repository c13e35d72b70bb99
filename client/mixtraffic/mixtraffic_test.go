// SPDX-FileCopyrightText: Copyright (C) 2026 The Mixlink Authors
// SPDX-License-Identifier: AGPL-3.0-only

package mixtraffic

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/katzenpost/hpqc/rand"
	"github.com/stretchr/testify/require"

	"github.com/katzenpost/mixlink/core/addressing"
	"github.com/katzenpost/mixlink/core/log"
	"github.com/katzenpost/mixlink/core/packet"
)

var errSend = errors.New("connection reset by peer")

type mockConn struct {
	sync.Mutex

	fail        func(call int) bool
	calls       int
	singleSends int
	batchSends  int
	sent        []MixMessage
}

func (m *mockConn) result() error {
	call := m.calls
	m.calls++
	if m.fail != nil && m.fail(call) {
		return errSend
	}
	return nil
}

func (m *mockConn) SendPacket(_ context.Context, address addressing.RoutingAddress, pkt *packet.Packet) error {
	m.Lock()
	defer m.Unlock()
	m.singleSends++
	m.sent = append(m.sent, NewMixMessage(address, pkt))
	return m.result()
}

func (m *mockConn) BatchSendPackets(_ context.Context, messages []MixMessage) error {
	m.Lock()
	defer m.Unlock()
	m.batchSends++
	m.sent = append(m.sent, messages...)
	return m.result()
}

func newTestBackend(t *testing.T) *log.Backend {
	b, err := log.New("", "DEBUG", true)
	require.NoError(t, err)
	return b
}

func newTestMessage(t *testing.T) MixMessage {
	b := make([]byte, packet.ACK.Len())
	_, err := rand.Reader.Read(b)
	require.NoError(t, err)
	b[0] = packet.Version
	pkt, err := packet.FromBytes(b)
	require.NoError(t, err)
	address, err := addressing.ParseRoutingAddress("192.0.2.1:1234")
	require.NoError(t, err)
	return NewMixMessage(address, pkt)
}

func newTestBatch(t *testing.T, n int) []MixMessage {
	batch := make([]MixMessage, n)
	for i := range batch {
		batch[i] = newTestMessage(t)
	}
	return batch
}

func TestBatchDispatch(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	ctx := context.Background()

	conn := &mockConn{}
	c := New(newTestBackend(t), conn, NewBatchQueue(0), 0)

	require.NoError(c.onBatch(ctx, newTestBatch(t, 1)))
	require.Equal(1, conn.singleSends)
	require.Equal(0, conn.batchSends)

	require.NoError(c.onBatch(ctx, newTestBatch(t, 5)))
	require.Equal(1, conn.singleSends)
	require.Equal(1, conn.batchSends)
	require.Len(conn.sent, 6)

	require.NoError(c.onBatch(ctx, nil))
	require.Equal(2, conn.calls)
}

func TestFailureCounterReset(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	ctx := context.Background()

	conn := &mockConn{fail: func(call int) bool { return call < MaxConsecutiveFailures-1 }}
	c := New(newTestBackend(t), conn, NewBatchQueue(0), 0)

	for i := 0; i < MaxConsecutiveFailures-1; i++ {
		require.NoError(c.onBatch(ctx, newTestBatch(t, 1)))
		require.Equal(i+1, c.consecutiveFailures)
	}
	require.NoError(c.onBatch(ctx, newTestBatch(t, 1)))
	require.Equal(0, c.consecutiveFailures)

	// The counter starts over after a success.
	conn.fail = func(int) bool { return true }
	for i := 0; i < MaxConsecutiveFailures-1; i++ {
		require.NoError(c.onBatch(ctx, newTestBatch(t, 2)))
	}
}

func TestFailureEscalation(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	ctx := context.Background()

	conn := &mockConn{fail: func(int) bool { return true }}
	c := New(newTestBackend(t), conn, NewBatchQueue(0), 0)

	for i := 0; i < MaxConsecutiveFailures-1; i++ {
		require.NoError(c.onBatch(ctx, newTestBatch(t, 1)))
	}
	err := c.onBatch(ctx, newTestBatch(t, 1))
	require.ErrorIs(err, ErrGatewayUnreachable)
	require.ErrorIs(err, errSend)

	var uerr *GatewayUnreachableError
	require.ErrorAs(err, &uerr)
	require.Equal(MaxConsecutiveFailures, uerr.Failures)
}

func TestRunGatewayUnreachable(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	queue := NewBatchQueue(0)
	for i := 0; i < 10; i++ {
		require.NoError(queue.Push(newTestBatch(t, 1)))
	}

	conn := &mockConn{fail: func(int) bool { return true }}
	err := New(newTestBackend(t), conn, queue, 3).Run(context.Background())
	require.ErrorIs(err, ErrGatewayUnreachable)
	require.Equal(3, conn.calls)
	require.Equal(7, queue.Len())
}

func TestRunDrainsClosedQueue(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	queue := NewBatchQueue(0)
	var want []MixMessage
	for i := 1; i <= 4; i++ {
		batch := newTestBatch(t, i)
		want = append(want, batch...)
		require.NoError(queue.Push(batch))
	}
	queue.Close()
	require.ErrorIs(queue.Push(newTestBatch(t, 1)), ErrQueueClosed)

	conn := &mockConn{}
	require.NoError(New(newTestBackend(t), conn, queue, 0).Run(context.Background()))
	require.Equal(want, conn.sent)
	require.Equal(1, conn.singleSends)
	require.Equal(3, conn.batchSends)
}

func TestRunCanceled(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	c := New(newTestBackend(t), &mockConn{}, NewBatchQueue(0), 0)

	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()
	cancel()

	select {
	case err := <-errCh:
		require.ErrorIs(err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not observe cancellation")
	}
}

func TestStartHalt(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	queue := NewBatchQueue(0)
	conn := &mockConn{}
	c := New(newTestBackend(t), conn, queue, 0)
	c.Start(context.Background())

	require.NoError(queue.Push(newTestBatch(t, 1)))
	require.Eventually(func() bool {
		conn.Lock()
		defer conn.Unlock()
		return conn.calls == 1
	}, 5*time.Second, time.Millisecond)

	c.Halt()
	<-c.DoneCh()
	require.NoError(c.Err())
}

func TestQueue(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	ctx := context.Background()

	q := NewBatchQueue(2)
	require.ErrorIs(q.Push(nil), ErrEmptyBatch)

	a, b := newTestBatch(t, 1), newTestBatch(t, 2)
	require.NoError(q.Push(a))
	require.NoError(q.Push(b))
	require.ErrorIs(q.Push(newTestBatch(t, 1)), ErrQueueFull)

	got, err := q.Pop(ctx)
	require.NoError(err)
	require.Equal(a, got)

	q.Close()
	q.Close()
	got, err = q.Pop(ctx)
	require.NoError(err)
	require.Equal(b, got)

	_, err = q.Pop(ctx)
	require.ErrorIs(err, ErrQueueClosed)
}

func TestQueueConcurrentProducers(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	const producers, perProducer = 8, 50
	q := NewBatchQueue(0)
	conn := &mockConn{}
	c := New(newTestBackend(t), conn, q, 0)

	address, err := addressing.ParseRoutingAddress("192.0.2.1:1234")
	require.NoError(err)
	template := newTestMessage(t)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				b := template.Packet.Bytes()
				copy(b[1:], fmt.Sprintf("%03d%03d", p, i))
				pkt, err := packet.FromBytes(b)
				if err != nil {
					panic(err)
				}
				if err := q.Push([]MixMessage{NewMixMessage(address, pkt)}); err != nil {
					panic(err)
				}
			}
		}(p)
	}

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()
	wg.Wait()
	q.Close()
	require.NoError(<-done)
	require.Len(conn.sent, producers*perProducer)

	// Each producer's batches are dispatched in push order.
	next := make(map[string]int)
	for _, m := range conn.sent {
		tag := string(m.Packet.Bytes()[1:7])
		i, err := strconv.Atoi(tag[3:])
		require.NoError(err)
		require.Equal(next[tag[:3]], i)
		next[tag[:3]]++
	}
}
