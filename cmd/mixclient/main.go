// SPDX-FileCopyrightText: Copyright (C) 2026 The Mixlink Authors
// SPDX-License-Identifier: AGPL-3.0-only

// mixclient sends packets to a gateway.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/katzenpost/hpqc/rand"
	"github.com/spf13/cobra"

	"github.com/katzenpost/mixlink/client/config"
	"github.com/katzenpost/mixlink/client/mixtraffic"
	"github.com/katzenpost/mixlink/common"
	"github.com/katzenpost/mixlink/core/addressing"
	"github.com/katzenpost/mixlink/core/log"
	"github.com/katzenpost/mixlink/core/packet"
	"github.com/katzenpost/mixlink/core/retry"
	"github.com/katzenpost/mixlink/gateway/client"
	"github.com/katzenpost/mixlink/internal/instrument"
)

// exitGatewayUnreachable is the exit status when the gateway is considered
// dead.
const exitGatewayUnreachable = 3

type sendConfig struct {
	ConfigFile string
	Count      int
	BatchSize  int
	Wait       time.Duration
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mixclient",
		Short: "Mixnet gateway client",
		Long: `mixclient connects to a mixnet gateway over a websocket, registers a
fresh destination address and forwards packets to the configured first hop.`,
	}
	cmd.AddCommand(newSendCommand())
	return cmd
}

func newSendCommand() *cobra.Command {
	var cfg sendConfig

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send random REGULAR packets through the gateway",
		Example: `  # Send 100 packets in batches of 10
  mixclient send --config client.toml --count 100 --batch 10

  # Send and wait for a loopback gateway to push the payloads back
  mixclient send -c client.toml -n 5 --wait 5s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&cfg.ConfigFile, "config", "c", "",
		"path to the client configuration file (TOML format)")
	cmd.Flags().IntVarP(&cfg.Count, "count", "n", 1, "number of packets to send")
	cmd.Flags().IntVarP(&cfg.BatchSize, "batch", "b", 1, "number of packets per batch")
	cmd.Flags().DurationVar(&cfg.Wait, "wait", 0, "time to wait for pushed messages after sending")
	cmd.MarkFlagRequired("config")

	return cmd
}

func main() {
	common.ExecuteWithFang(newRootCommand())
}

func randomPacket(s packet.Size) (*packet.Packet, error) {
	b := make([]byte, s.Len())
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, err
	}
	b[0] = packet.Version
	return packet.FromBytes(b)
}

// produce queues count packets from newPacket in batches of batchSize and
// closes queue.  It returns the number of packets queued.
func produce(ctx context.Context, queue *mixtraffic.BatchQueue, firstHop addressing.RoutingAddress, count, batchSize int, newPacket func() (*packet.Packet, error)) (int, error) {
	defer queue.Close()

	queued := 0
	for queued < count {
		n := min(batchSize, count-queued)
		batch := make([]mixtraffic.MixMessage, 0, n)
		for i := 0; i < n; i++ {
			pkt, err := newPacket()
			if err != nil {
				return queued, fmt.Errorf("failed to generate a packet: %w", err)
			}
			batch = append(batch, mixtraffic.NewMixMessage(firstHop, pkt))
		}
		for {
			err := queue.Push(batch)
			if err == nil {
				break
			}
			if !errors.Is(err, mixtraffic.ErrQueueFull) {
				return queued, fmt.Errorf("failed to enqueue a batch: %w", err)
			}
			select {
			case <-time.After(10 * time.Millisecond):
			case <-ctx.Done():
				return queued, ctx.Err()
			}
		}
		queued += n
	}
	return queued, nil
}

func runSend(ctx context.Context, cfg sendConfig) error {
	if cfg.Count <= 0 || cfg.BatchSize <= 0 {
		return errors.New("invalid argument: --count and --batch must be positive")
	}

	clientCfg, err := config.LoadFile(cfg.ConfigFile)
	if err != nil {
		return fmt.Errorf("failed to load config file '%v': %v", cfg.ConfigFile, err)
	}
	logBackend, err := log.New(clientCfg.Logging.File, clientCfg.Logging.Level, clientCfg.Logging.Disable)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %v", err)
	}
	logger := logBackend.GetLogger("mixclient")

	var metricsSrv *http.Server
	if clientCfg.Metrics.Address != "" {
		metricsSrv = instrument.StartPrometheusListener(clientCfg.Metrics.Address)
		defer metricsSrv.Close()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	address, err := addressing.NewDestinationAddress(rand.Reader)
	if err != nil {
		return err
	}

	var received atomic.Int64
	policy := retry.DefaultPolicy()
	policy.MaxAttempts = clientCfg.Debug.DialAttempts
	gw, err := client.New(&client.Config{
		LogBackend:       logBackend,
		URL:              clientCfg.Gateway.URL,
		Address:          address,
		DialTimeout:      clientCfg.Gateway.Dial(),
		HandshakeTimeout: clientCfg.Gateway.Handshake(),
		Retry:            policy,
		OnMessageFn: func(b []byte) {
			received.Add(1)
			logger.Debugf("Received a %d byte message.", len(b))
		},
	})
	if err != nil {
		return err
	}
	defer gw.Close()
	if err := gw.Connect(ctx); err != nil {
		return err
	}

	queue := mixtraffic.NewBatchQueue(clientCfg.Debug.MaxQueuedBatches)
	firstHop := clientCfg.Gateway.FirstHopAddress()
	type produced struct {
		n   int
		err error
	}
	producedCh := make(chan produced, 1)
	go func() {
		n, err := produce(ctx, queue, firstHop, cfg.Count, cfg.BatchSize, func() (*packet.Packet, error) {
			return randomPacket(packet.Regular)
		})
		producedCh <- produced{n, err}
	}()

	controller := mixtraffic.New(logBackend, gw, queue, clientCfg.Debug.MaxConsecutiveFailures)
	err = controller.Run(ctx)
	if errors.Is(err, mixtraffic.ErrGatewayUnreachable) {
		return &common.ExitError{Code: exitGatewayUnreachable, Err: err}
	}
	if err != nil {
		return err
	}
	p := <-producedCh
	if p.err != nil {
		return fmt.Errorf("stopped after queueing %d of %d packets: %w", p.n, cfg.Count, p.err)
	}
	logger.Noticef("Sent %d packets to %v.", p.n, firstHop)

	if cfg.Wait > 0 {
		select {
		case <-time.After(cfg.Wait):
		case <-ctx.Done():
		}
		logger.Noticef("Received %d pushed messages.", received.Load())
	}
	return nil
}
