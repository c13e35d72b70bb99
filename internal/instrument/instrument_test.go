// SPDX-FileCopyrightText: Copyright (C) 2026 The Mixlink Authors
// SPDX-License-Identifier: AGPL-3.0-only

//go:build !noprometheus

package instrument

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	require := require.New(t)

	before := testutil.ToFloat64(framesRejected.WithLabelValues("invalid_mac"))
	FrameRejected("invalid_mac")
	FrameRejected("invalid_mac")
	require.Equal(before+2, testutil.ToFloat64(framesRejected.WithLabelValues("invalid_mac")))

	QueueDepth(7)
	require.Equal(float64(7), testutil.ToFloat64(queueDepth))

	before = testutil.ToFloat64(registrations.WithLabelValues("failure"))
	Registration(false)
	require.Equal(before+1, testutil.ToFloat64(registrations.WithLabelValues("failure")))
}
