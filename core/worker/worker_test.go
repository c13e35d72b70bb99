// SPDX-FileCopyrightText: Copyright (C) 2026 The Mixlink Authors
// SPDX-License-Identifier: AGPL-3.0-only

package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWorkerHalt(t *testing.T) {
	t.Parallel()

	w := new(Worker)
	done := make(chan struct{})
	w.Go(func() {
		<-w.HaltCh()
		close(done)
	})
	w.Halt()
	w.Halt()

	select {
	case <-done:
	default:
		t.Fatal("worker go routine did not observe halt")
	}
}

func TestWorkerHaltContext(t *testing.T) {
	t.Parallel()

	w := new(Worker)
	ctx, cancelFn := w.HaltContext(context.Background())
	defer cancelFn()

	go w.Halt()

	select {
	case <-ctx.Done():
		require.ErrorIs(t, ctx.Err(), context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("halt did not cancel the context")
	}
}
