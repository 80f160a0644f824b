// Copyright (c) 2017 OysterPack, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// anycastd runs an anycast node. The node holds destinations that remote nodes can request messages from, and
// requests messages from destinations held by remote nodes. Nodes exchange envelopes over NATS.
//
//	anycastd -config /etc/anycast/anycast.yaml
//
// Producers add messages to the node's store by publishing a JSON encoded message to anycast.<node id>.publish,
// e.g., {"dest":"orders","topic":"X","payload":"b3JkZXIgIzE="}. If the NATS message has a reply subject, the node
// replies with {"seq":N} or {"error":"..."}. Consumers embed pkg/engine to request messages from the node.
//
// Every config setting can be overridden via the environment, e.g., ANYCAST_NODE_ID=node-a.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	natsio "github.com/nats-io/go-nats"
	"github.com/oysterpack/anycast/pkg/anycast"
	"github.com/oysterpack/anycast/pkg/config"
	"github.com/oysterpack/anycast/pkg/engine"
	"github.com/oysterpack/anycast/pkg/logging"
	"github.com/oysterpack/anycast/pkg/messaging/nats"
	"github.com/oysterpack/anycast/pkg/messaging/nats/server"
	"github.com/oysterpack/anycast/pkg/metrics"
	"github.com/oysterpack/anycast/pkg/msgstore"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type pkgobject struct{}

var logger = logging.NewPackageLogger(pkgobject{})

func main() {
	configPath := flag.String("config", "", "config file path (YAML or TOML)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Str("config", *configPath).Msg("Failed to load config")
	}
	logging.SetLevel(cfg.Node.LogLevel)

	store, err := openStore(cfg.Node)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open the message store")
	}
	defer store.Close()

	natsURL := cfg.NATS.URL
	if cfg.NATS.Embedded.Enabled {
		natsServer := server.NewNATSServer(server.Config{
			Host:     cfg.NATS.Embedded.Host,
			Port:     cfg.NATS.Embedded.Port,
			LogLevel: cfg.Node.LogLevel,
		})
		if err := natsServer.StartUp(server.DEFAULT_STARTUP_TIMEOUT); err != nil {
			logger.Fatal().Err(err).Msg("Failed to start the embedded NATS server")
		}
		defer natsServer.Shutdown()
		natsURL = natsServer.URL()
	}

	conn, err := nats.Connect(natsURL, natsio.Timeout(cfg.NATS.ConnectTimeout), natsio.ReconnectWait(cfg.NATS.ReconnectWait))
	if err != nil {
		logger.Fatal().Err(err).Str(nats.URL, natsURL).Msg("Failed to connect to NATS")
	}
	defer conn.Close()

	node, err := engine.New(engine.Config{
		Node:              anycast.NodeID(cfg.Node.ID),
		Settings:          cfg.Protocol.Settings(),
		DefaultTimeout:    cfg.Protocol.DefaultTimeout,
		SweepInterval:     cfg.Protocol.SweepInterval,
		SubscriberBufSize: cfg.NATS.SubscriberBufSize,
	}, store, nats.NewTransport(conn))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create the engine")
	}
	if err := node.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start the engine")
	}
	publishSub, err := nats.ServePublish(conn, node.Node(), cfg.NATS.SubscriberBufSize, node.Publish)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to subscribe to the publish topic")
	}
	logger.Info().Str(nats.TOPIC, string(nats.PublishTopic(node.Node()))).Msg("Accepting published messages")

	metricsServer := startMetricsServer(cfg.Metrics.Addr)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigs:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
	case <-node.Dying():
		logger.Error().Err(node.Err()).Msg("Engine died")
	}

	publishSub.Unsubscribe()
	if metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		metricsServer.Shutdown(ctx)
		cancel()
	}
	if err := node.Stop(); err != nil {
		logger.Error().Err(err).Msg("Engine stop failed")
	}
}

func openStore(cfg config.NodeConfig) (msgstore.Store, error) {
	if cfg.StorePath == "" {
		logger.Warn().Msg("node.store_path is not set : messages are kept in memory")
		return msgstore.NewMemoryStore(), nil
	}
	return msgstore.OpenBoltStore(cfg.StorePath)
}

func startMetricsServer(addr string) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{ErrorHandling: promhttp.ContinueOnError}))
	metricsServer := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Str("addr", addr).Msg("Metrics server failed")
		}
	}()
	logger.Info().Str("addr", addr).Msg("Metrics server started")
	return metricsServer
}
