/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/carverauto/poolguard/pkg/actuator"
	"github.com/carverauto/poolguard/pkg/agent"
	"github.com/carverauto/poolguard/pkg/audit"
	"github.com/carverauto/poolguard/pkg/config"
	"github.com/carverauto/poolguard/pkg/logger"
	"github.com/carverauto/poolguard/pkg/metrics"
	"github.com/carverauto/poolguard/pkg/rules"
	"github.com/carverauto/poolguard/pkg/sensor"
	"github.com/carverauto/poolguard/pkg/server"
	"github.com/carverauto/poolguard/pkg/session"
	"github.com/carverauto/poolguard/pkg/store"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/poolguard/agent.json", "Path to agent config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cfg agent.Config

	cfgLoader := config.NewConfig(nil)
	if err := cfgLoader.LoadAndValidate(ctx, *configPath, &cfg); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logConfig := cfg.Logging
	if logConfig == nil {
		logConfig = logger.DefaultConfig()
	}

	agentLogger, err := logger.NewComponent("agent", logConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() { _ = db.Close() }()

	client, err := server.NewClient(cfg.Server, agentLogger.WithComponent("server"))
	if err != nil {
		return fmt.Errorf("failed to create server client: %w", err)
	}

	sessionMgr, err := session.NewManager(ctx, cfg.Session, client, db,
		agentLogger.WithComponent("session"))
	if err != nil {
		return fmt.Errorf("failed to create session manager: %w", err)
	}

	client.SetAuthProvider(sessionMgr)

	auditLog, err := audit.New(ctx, cfg.Audit, db, agentLogger.WithComponent("audit"))
	if err != nil {
		return fmt.Errorf("failed to restore audit log: %w", err)
	}

	syncer := audit.NewSyncer(auditLog, client, cfg.Sync, agentLogger.WithComponent("sync"))

	if !auditLog.VerifyChain() {
		// Local control continues, but a broken chain must never be
		// transmitted. The control loop raises the operator alarm on its
		// first flush against the halted syncer.
		agentLogger.Error().Msg("Audit chain verification failed at startup")
		syncer.Halt()
	}

	var writer actuator.PinWriter = actuator.NewSysfsWriter()
	if cfg.MockGPIO {
		writer = actuator.NopWriter{}
	}

	driver := actuator.NewGPIODriver(writer, cfg.Pins, cfg.ActiveLow,
		agentLogger.WithComponent("gpio"))
	if err := driver.ParkAll(ctx); err != nil {
		return fmt.Errorf("failed to park relays: %w", err)
	}

	registry := actuator.NewRegistry(driver, cfg.ActuatorIDs(),
		agentLogger.WithComponent("actuator"))

	source, err := sensor.NewMQTTSource(cfg.MQTT, agentLogger.WithComponent("sensor"))
	if err != nil {
		return fmt.Errorf("failed to connect to sensor hub: %w", err)
	}
	defer source.Close()

	builder := sensor.NewBuilder(source, cfg.Channels)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	queue := agent.NewCommandQueue(0, agentLogger.WithComponent("commands"))

	if cfg.Stream.URL != "" {
		listener := agent.NewListener(cfg.Stream, sessionMgr, queue,
			agentLogger.WithComponent("stream"))
		go listener.Run(ctx)
	}

	if cfg.ListenAddr != "" {
		go serveDiagnostics(cfg.ListenAddr, reg, agentLogger)
	}

	loop := agent.NewLoop(cfg.Loop, rules.NewEngine(), registry, auditLog, syncer,
		client, builder, queue, m, agentLogger.WithComponent("loop"))

	return loop.Run(ctx)
}

func serveDiagnostics(addr string, reg *prometheus.Registry, log logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("Diagnostics endpoint listening")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("Diagnostics endpoint failed")
	}
}
