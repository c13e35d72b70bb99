// SPDX-FileCopyrightText: Copyright (C) 2026 The Mixlink Authors
// SPDX-License-Identifier: AGPL-3.0-only

package mixtraffic

import (
	"context"
	"errors"
	"sync"

	"github.com/katzenpost/mixlink/internal/instrument"
)

var (
	// ErrEmptyBatch is the error returned when pushing an empty batch.
	ErrEmptyBatch = errors.New("mixtraffic: empty batch")

	// ErrQueueClosed is the error returned by Push after Close, and by Pop
	// once the closed queue is drained.
	ErrQueueClosed = errors.New("mixtraffic: queue closed")

	// ErrQueueFull is the error returned by Push when a bounded queue is
	// full.
	ErrQueueFull = errors.New("mixtraffic: queue is full")
)

// BatchQueue is a multi producer, single consumer FIFO of outbound batches.
type BatchQueue struct {
	sync.Mutex

	batches  [][]MixMessage
	maxLen   int
	closed   bool
	notifyCh chan struct{}
}

// NewBatchQueue returns a queue holding at most maxLen batches, or an
// unbounded queue if maxLen is 0.
func NewBatchQueue(maxLen int) *BatchQueue {
	return &BatchQueue{
		maxLen:   maxLen,
		notifyCh: make(chan struct{}, 1),
	}
}

// Push appends batch to the queue.  It never blocks.
func (q *BatchQueue) Push(batch []MixMessage) error {
	if len(batch) == 0 {
		return ErrEmptyBatch
	}

	q.Lock()
	defer q.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	if q.maxLen > 0 && len(q.batches) >= q.maxLen {
		return ErrQueueFull
	}
	q.batches = append(q.batches, append([]MixMessage(nil), batch...))
	instrument.QueueDepth(len(q.batches))

	select {
	case q.notifyCh <- struct{}{}:
	default:
	}
	return nil
}

// Pop removes the oldest batch, waiting for one if the queue is empty.  It
// returns ErrQueueClosed once the queue is closed and drained, or ctx.Err().
func (q *BatchQueue) Pop(ctx context.Context) ([]MixMessage, error) {
	for {
		q.Lock()
		if len(q.batches) > 0 {
			batch := q.batches[0]
			q.batches[0] = nil
			q.batches = q.batches[1:]
			instrument.QueueDepth(len(q.batches))
			q.Unlock()
			return batch, nil
		}
		closed := q.closed
		q.Unlock()
		if closed {
			return nil, ErrQueueClosed
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.notifyCh:
		}
	}
}

// Len returns the number of queued batches.
func (q *BatchQueue) Len() int {
	q.Lock()
	defer q.Unlock()
	return len(q.batches)
}

// Close stops accepting batches.  Already queued batches can still be
// popped.
func (q *BatchQueue) Close() {
	q.Lock()
	defer q.Unlock()
	if !q.closed {
		q.closed = true
		close(q.notifyCh)
	}
}
