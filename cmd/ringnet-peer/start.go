// Copyright (C) 2025 ringnet-io
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ringnet-io/ringnet/config"
	"github.com/ringnet-io/ringnet/health"
	"github.com/ringnet-io/ringnet/identity"
	"github.com/ringnet-io/ringnet/internal/logger"
	"github.com/ringnet-io/ringnet/internal/metrics"
	"github.com/ringnet-io/ringnet/overlay"
	"github.com/ringnet-io/ringnet/transport"
	"github.com/ringnet-io/ringnet/transport/wsconn"
)

const ringPath = "/ring"

var startFlags struct {
	configDir string
	debug     bool
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a ring peer and run until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPeer(cmd.Context())
	},
}

func init() {
	startCmd.Flags().StringVar(&startFlags.configDir, "config-dir", "config", "directory containing peer config files")
	startCmd.Flags().BoolVar(&startFlags.debug, "debug", false, "enable debug logging")
	rootCmd.AddCommand(startCmd)
}

func runPeer(ctx context.Context) error {
	// A .env file, when present, feeds the RINGNET_* variables the config
	// loader reads. Its absence is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load(config.LoaderOptions{ConfigDir: startFlags.configDir})
	if err != nil {
		return err
	}

	log := logger.NewDefaultLogger()
	if startFlags.debug || (cfg.Peer != nil && cfg.Peer.Debug) {
		log.SetLevel(logger.DebugLevel)
	} else if cfg.Logging != nil {
		if level, ok := logger.ParseLevel(cfg.Logging.Level); ok {
			log.SetLevel(level)
		}
	}
	logger.SetDefaultLogger(log)

	if cfg.Keys == nil {
		return fmt.Errorf("configuration has no keys section; ring_public_key and signature files are required")
	}
	self, err := identity.Load(identity.LoadConfig{
		PrivateKeyPath: cfg.Keys.PrivateKey,
		PublicKeyPath:  cfg.Keys.PublicKey,
		RingPublicPath: cfg.Keys.RingPublicKey,
		SignaturePath:  cfg.Keys.Signature,
	})
	if err != nil {
		return err
	}
	log.Info("identity loaded and verified against ring authority")

	port := cfg.ListenPort()
	listenAddr := fmt.Sprintf(":%d", port)

	var (
		listener transport.Listener
		dialer   transport.Dialer
	)
	if cfg.TLS != nil && cfg.TLS.CertFile != "" {
		listener, err = wsconn.ListenTLS(listenAddr, ringPath, cfg.TLS.CertFile, cfg.TLS.KeyFile)
		dialer = wsconn.NewTLSDialer(ringPath, nil)
	} else {
		log.Warn("no TLS credentials configured; listening in plaintext")
		listener, err = wsconn.Listen(listenAddr, ringPath)
		dialer = wsconn.NewDialer(ringPath)
	}
	if err != nil {
		return err
	}

	lo, hi := cfg.DiscoveryRange()
	node, err := overlay.NewNode(overlay.Config{
		Self:                self,
		Listener:            listener,
		Dialer:              dialer,
		PublicAddress:       publicAddress(cfg),
		ListenPort:          port,
		DiscoveryAddresses:  discoveryCandidates(cfg),
		DiscoveryRange:      overlay.PortRange{Low: lo, High: hi},
		StartDiscovery:      cfg.StartDiscovery(),
		RequireConfirmation: cfg.Peer != nil && cfg.Peer.RequireConfirmation,
		Log:                 log,
	})
	if err != nil {
		return err
	}

	node.Events.On(overlay.EventReady, func(interface{}) {
		log.Info("peer ready", logger.String("listen", listener.Addr()))
	})
	node.Events.On(overlay.EventConnection, func(payload interface{}) {
		if link, ok := payload.(*overlay.Link); ok {
			log.Info("peer trusted",
				logger.String("fingerprint", link.Fingerprint),
				logger.String("remoteAddr", link.RemoteAddr()))
		}
	})
	node.Events.On(overlay.EventDiscovering, func(interface{}) {
		log.Debug("discovery pass started")
	})
	node.Events.On(overlay.EventDiscovered, func(interface{}) {
		log.Info("discovery pass complete", logger.Int("peers", node.Table.Len()))
	})

	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		go func() {
			addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
			log.Info("metrics listening", logger.String("addr", addr), logger.String("path", cfg.Metrics.Path))
			if err := metrics.StartServer(addr, cfg.Metrics.Path); err != nil {
				log.Error("metrics server stopped", logger.Error(err))
			}
		}()
	}

	if cfg.Health != nil && cfg.Health.Enabled {
		startHealthServer(cfg, log, self, listener, node)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	node.Start(ctx)
	<-ctx.Done()

	log.Info("shutting down")
	return node.Close()
}

// startHealthServer registers the runtime checks and serves them. The
// peer-table check only arms after the first discovery pass completes, so
// a freshly started peer is not reported unhealthy while it is still
// looking for its ring.
func startHealthServer(cfg *config.Config, log logger.Logger, self *identity.Identity, listener transport.Listener, node *overlay.Node) {
	checker := health.NewHealthChecker(cfg.Health.Timeout)
	checker.SetLogger(log)

	checker.RegisterCheck("identity", health.IdentityHealthCheck(self.VerifySelf))
	checker.RegisterCheck("listener", health.ListenerHealthCheck(listener.Addr))
	checker.RegisterCheck("discovery-queue", health.DiscoveryQueueHealthCheck(node.Discovery.QueueDepth, 1000))

	var armPeerCheck sync.Once
	node.Events.On(overlay.EventDiscovered, func(interface{}) {
		armPeerCheck.Do(func() {
			checker.RegisterCheck("peer-table", health.PeerTableHealthCheck(node.Table.Len, 1))
		})
	})

	mux := newHealthMux(cfg.Health.Path, checker)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Health.Port)
		log.Info("health listening", logger.String("addr", addr), logger.String("path", cfg.Health.Path))
		if err := mux.ListenAndServe(addr); err != nil {
			log.Error("health server stopped", logger.Error(err))
		}
	}()
}

func publicAddress(cfg *config.Config) string {
	if cfg.Peer != nil {
		return cfg.Peer.PublicAddress
	}
	return ""
}

func discoveryCandidates(cfg *config.Config) []overlay.Candidate {
	if cfg.Discovery == nil {
		return nil
	}
	out := make([]overlay.Candidate, 0, len(cfg.Discovery.Addresses))
	for _, a := range cfg.Discovery.Addresses {
		out = append(out, overlay.Candidate{Address: a.Address, Signature: a.Signature})
	}
	return out
}
