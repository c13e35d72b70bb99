// SPDX-FileCopyrightText: Copyright (C) 2026 The Mixlink Authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package mixtraffic dispatches outbound packet batches to the gateway.
package mixtraffic

import (
	"context"
	"errors"
	"sync"

	"gopkg.in/op/go-logging.v1"

	"github.com/katzenpost/mixlink/core/addressing"
	"github.com/katzenpost/mixlink/core/log"
	"github.com/katzenpost/mixlink/core/packet"
	"github.com/katzenpost/mixlink/core/worker"
	"github.com/katzenpost/mixlink/internal/instrument"
)

// MaxConsecutiveFailures is the default number of consecutive failed sends
// after which the gateway is considered dead.
const MaxConsecutiveFailures = 100

// GatewayConn is a connection to the gateway.
type GatewayConn interface {
	// SendPacket sends a single packet.
	SendPacket(ctx context.Context, address addressing.RoutingAddress, pkt *packet.Packet) error

	// BatchSendPackets sends every message in one network operation.
	BatchSendPackets(ctx context.Context, messages []MixMessage) error
}

// Controller drains a BatchQueue into a GatewayConn.
type Controller struct {
	worker.Worker

	log   *logging.Logger
	conn  GatewayConn
	queue *BatchQueue

	maxFailures         int
	consecutiveFailures int

	errLock sync.Mutex
	err     error
	doneCh  chan struct{}
}

// New creates a Controller.  A maxFailures of 0 selects
// MaxConsecutiveFailures.
func New(logBackend *log.Backend, conn GatewayConn, queue *BatchQueue, maxFailures int) *Controller {
	if maxFailures <= 0 {
		maxFailures = MaxConsecutiveFailures
	}
	return &Controller{
		log:         logBackend.GetLogger("mixtraffic"),
		conn:        conn,
		queue:       queue,
		maxFailures: maxFailures,
		doneCh:      make(chan struct{}),
	}
}

func (c *Controller) onBatch(ctx context.Context, batch []MixMessage) error {
	var err error
	switch len(batch) {
	case 0:
		c.log.Error("BUG: dropping empty batch")
		return nil
	case 1:
		err = c.conn.SendPacket(ctx, batch[0].Address, batch[0].Packet)
		if err == nil {
			instrument.BatchSent("single")
		}
	default:
		err = c.conn.BatchSendPackets(ctx, batch)
		if err == nil {
			instrument.BatchSent("batch")
		}
	}

	if err == nil {
		c.consecutiveFailures = 0
		instrument.PacketsSent(len(batch))
		return nil
	}

	c.consecutiveFailures++
	instrument.SendFailure()
	c.log.Errorf("Failed to send sphinx packet(s) to the gateway: %v", err)
	if c.consecutiveFailures >= c.maxFailures {
		instrument.GatewayUnreachable()
		uerr := &GatewayUnreachableError{Failures: c.consecutiveFailures, Err: err}
		c.log.Critical(uerr.Error())
		return uerr
	}
	return nil
}

// Run dispatches batches until the queue is closed and drained (returning
// nil), ctx is done (returning ctx.Err()), or the failure threshold is
// reached (returning a *GatewayUnreachableError).
func (c *Controller) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := c.queue.Pop(ctx)
		switch {
		case errors.Is(err, ErrQueueClosed):
			c.log.Debug("Outbound queue closed, stopping.")
			return nil
		case err != nil:
			return err
		}
		if err := c.onBatch(ctx, batch); err != nil {
			return err
		}
	}
}

// Start runs the dispatch loop in the background until Halt is called.
func (c *Controller) Start(ctx context.Context) {
	c.Go(func() {
		ctx, cancel := c.HaltContext(ctx)
		defer cancel()

		err := c.Run(ctx)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		c.errLock.Lock()
		c.err = err
		c.errLock.Unlock()
		close(c.doneCh)
	})
}

// DoneCh returns a channel closed once the background loop has returned.
func (c *Controller) DoneCh() <-chan struct{} {
	return c.doneCh
}

// Err returns the error the background loop terminated with.
func (c *Controller) Err() error {
	c.errLock.Lock()
	defer c.errLock.Unlock()
	return c.err
}
