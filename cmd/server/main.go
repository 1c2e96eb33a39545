// Copyright 2026 The voicecore Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package main provides the entry point for the voicecore server, the
// per-turn decision engine behind automated field-service phone calls.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/chatterlinx/voicecore/internal/api"
	"github.com/chatterlinx/voicecore/internal/api/handlers/management"
	"github.com/chatterlinx/voicecore/internal/assembler"
	"github.com/chatterlinx/voicecore/internal/buildinfo"
	"github.com/chatterlinx/voicecore/internal/cacheservice"
	"github.com/chatterlinx/voicecore/internal/config"
	"github.com/chatterlinx/voicecore/internal/gate"
	"github.com/chatterlinx/voicecore/internal/learning"
	"github.com/chatterlinx/voicecore/internal/llm"
	"github.com/chatterlinx/voicecore/internal/logging"
	"github.com/chatterlinx/voicecore/internal/memory"
	"github.com/chatterlinx/voicecore/internal/pipeline"
	"github.com/chatterlinx/voicecore/internal/resolver"
	"github.com/chatterlinx/voicecore/internal/scenario"
	"github.com/chatterlinx/voicecore/internal/session"
	"github.com/chatterlinx/voicecore/internal/triage"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// init initializes the shared logger setup.
func init() {
	logging.SetupBaseLogger()
	buildinfo.Version = Version
	buildinfo.Commit = Commit
	buildinfo.BuildDate = BuildDate
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("voicecore %s (%s, %s)\n", buildinfo.Version, buildinfo.Commit, buildinfo.BuildDate)
		return
	}

	if err := godotenv.Load(); err == nil {
		log.Debug("loaded environment from .env")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Warnf("config file unavailable (%v), using defaults", err)
		cfg = config.Default()
	}
	logging.ConfigureLogOutput(cfg.LoggingToFile, cfg.LogsDir)

	if err := run(cfg); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

func run(cfg *config.Config) error {
	// Cache backend: Redis when configured, in-process otherwise. Every
	// consumer treats cache failures as misses, so neither choice is fatal.
	var cache cacheservice.Cache
	if cfg.RedisURL != "" {
		rc, err := cacheservice.NewRedisCache(cfg.RedisURL, cfg.Cache.AlertFailureThreshold, cfg.Cache.AlertCooldown)
		if err != nil {
			return fmt.Errorf("parsing redis url: %w", err)
		}
		cache = rc
	} else {
		log.Info("no redis configured, using in-process cache")
		cache = cacheservice.NewMemoryCache()
	}

	store, err := learning.Open(cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return fmt.Errorf("opening learning store: %w", err)
	}
	defer store.Close()

	scenarios, err := scenario.NewLoader(filepath.Join(cfg.DataDir, "scenarios"))
	if err != nil {
		return fmt.Errorf("loading scenario packs: %w", err)
	}
	if err := scenarios.StartWatching(); err != nil {
		log.Warnf("scenario hot reload unavailable: %v", err)
	}
	defer scenarios.Close()

	archiver, err := session.NewArchiver(filepath.Join(cfg.DataDir, "call-archive"))
	if err != nil {
		return fmt.Errorf("opening call archive: %w", err)
	}
	defer archiver.Close()

	budget := llm.NewBudget(cfg.LLM.BudgetTokensPerWindow, cfg.LLM.BudgetWindow)
	breaker := llm.NewBreaker(cfg.LLM.BreakerFailureThreshold, cfg.LLM.BreakerCooldown)

	var generative resolver.Generative
	if cfg.LLM.APIKey != "" {
		generative = llm.NewClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model, budget, breaker)
	} else {
		log.Warn("no LLM api key configured, generative tier disabled")
	}

	compiler := triage.NewCompiler(store, cache, cfg.Triage.RuleSetTTL)
	matcher := triage.NewMatcher()
	sessions := session.NewManager(archiver)
	hydrator := memory.NewHydrator(store, cache)
	g := gate.New(gate.Thresholds{
		MinPathSamples:     cfg.Gate.MinPathSamples,
		MinPathSuccessRate: cfg.Gate.MinPathSuccessRate,
		KnownCallerHits:    cfg.Gate.KnownCallerHits,
	})
	recorder := learning.NewRecorder(store, cache)

	engine := pipeline.NewEngine(
		compiler,
		matcher,
		scenarios,
		sessions,
		hydrator,
		g,
		resolver.New(cfg.Resolver, generative),
		assembler.New(cfg.Assembler, nil),
		recorder,
	)

	server := api.NewServer(cfg, engine,
		api.NewHealthHandler(cache, store, breaker, g, engine, sessions),
		management.NewRulesHandler(store, compiler, matcher),
	)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warnf("server shutdown: %v", err)
	}
	// Let in-flight learning writes land before the store closes.
	recorder.Wait()
	return nil
}
