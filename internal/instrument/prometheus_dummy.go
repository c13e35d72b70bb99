// SPDX-FileCopyrightText: Copyright (C) 2026 The Mixlink Authors
// SPDX-License-Identifier: AGPL-3.0-only

//go:build noprometheus

package instrument

import "net/http"

// StartPrometheusListener does nothing
func StartPrometheusListener(address string) *http.Server { return &http.Server{Addr: address} }

// PacketsSent does nothing
func PacketsSent(n int) {}

// BatchSent does nothing
func BatchSent(mode string) {}

// SendFailure does nothing
func SendFailure() {}

// GatewayUnreachable does nothing
func GatewayUnreachable() {}

// QueueDepth does nothing
func QueueDepth(n int) {}

// FrameRejected does nothing
func FrameRejected(reason string) {}

// Registration does nothing
func Registration(ok bool) {}

// Authentication does nothing
func Authentication(ok bool) {}

// PacketForwarded does nothing
func PacketForwarded() {}

// ClientConnected does nothing
func ClientConnected(delta int) {}
