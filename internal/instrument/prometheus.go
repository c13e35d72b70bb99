// SPDX-FileCopyrightText: Copyright (C) 2026 The Mixlink Authors
// SPDX-License-Identifier: AGPL-3.0-only

//go:build !noprometheus

// Package instrument exports client and gateway metrics to prometheus.
package instrument

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	packetsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mixlink_client_packets_sent_total",
			Help: "Number of packets handed to the gateway",
		},
	)
	batchesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mixlink_client_batches_sent_total",
			Help: "Number of outbound batches sent, by dispatch mode",
		},
		[]string{"mode"},
	)
	sendFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mixlink_client_send_failures_total",
			Help: "Number of failed batch sends",
		},
	)
	gatewayUnreachable = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mixlink_client_gateway_unreachable_total",
			Help: "Number of times the failure threshold was reached",
		},
	)
	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mixlink_client_outbound_queue_batches",
			Help: "Number of batches waiting in the outbound queue",
		},
	)
	framesRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mixlink_rejected_frames_total",
			Help: "Number of binary frames rejected while decoding, by reason",
		},
		[]string{"reason"},
	)
	registrations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mixlink_gateway_registrations_total",
			Help: "Number of registration handshakes, by outcome",
		},
		[]string{"status"},
	)
	authentications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mixlink_gateway_authentications_total",
			Help: "Number of authentication attempts, by outcome",
		},
		[]string{"status"},
	)
	packetsForwarded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mixlink_gateway_packets_forwarded_total",
			Help: "Number of packets received from clients and forwarded",
		},
	)
	connectedClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mixlink_gateway_connected_clients",
			Help: "Number of authenticated client connections",
		},
	)
)

func init() {
	prometheus.MustRegister(
		packetsSent,
		batchesSent,
		sendFailures,
		gatewayUnreachable,
		queueDepth,
		framesRejected,
		registrations,
		authentications,
		packetsForwarded,
		connectedClients,
	)
}

func status(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// StartPrometheusListener serves /metrics on address.  The returned server
// is already listening in the background; the caller closes it.
func StartPrometheusListener(address string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: address, Handler: mux}
	go srv.ListenAndServe()
	return srv
}

// PacketsSent adds n to the number of packets sent.
func PacketsSent(n int) {
	packetsSent.Add(float64(n))
}

// BatchSent counts a batch dispatched as "single" or "batch".
func BatchSent(mode string) {
	batchesSent.WithLabelValues(mode).Inc()
}

// SendFailure counts a failed send.
func SendFailure() {
	sendFailures.Inc()
}

// GatewayUnreachable counts reaching the failure threshold.
func GatewayUnreachable() {
	gatewayUnreachable.Inc()
}

// QueueDepth sets the outbound queue depth.
func QueueDepth(n int) {
	queueDepth.Set(float64(n))
}

// FrameRejected counts a rejected binary frame.
func FrameRejected(reason string) {
	framesRejected.WithLabelValues(reason).Inc()
}

// Registration counts a registration handshake outcome.
func Registration(ok bool) {
	registrations.WithLabelValues(status(ok)).Inc()
}

// Authentication counts an authentication outcome.
func Authentication(ok bool) {
	authentications.WithLabelValues(status(ok)).Inc()
}

// PacketForwarded counts a packet received from a client.
func PacketForwarded() {
	packetsForwarded.Inc()
}

// ClientConnected adjusts the connected client gauge by delta.
func ClientConnected(delta int) {
	connectedClients.Add(float64(delta))
}
