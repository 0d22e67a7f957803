// Command extractd runs the extraction engine as an HTTP JSON server
// (SPEC_FULL.md §6.1 dual entrypoints), mirroring the teacher's
// cmd/quaero/main.go startup sequence: load config, init logger, build the
// App, start the server, wait for an interrupt, shut down gracefully.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lorekeeper/extractor/internal/app"
	"github.com/lorekeeper/extractor/internal/common"
	"github.com/lorekeeper/extractor/internal/server"
)

func main() {
	configPath := flag.String("config", "extractor.toml", "configuration file path")
	port := flag.Int("port", 0, "server port (overrides config)")
	host := flag.String("host", "", "server host (overrides config)")
	flag.Parse()

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *host != "" {
		cfg.Server.Host = *host
	}

	logger := common.SetupLogger(cfg)
	defer common.Stop()

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize application")
	}
	defer application.Close()

	srv := server.New(application)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	statsCtx, stopStats := context.WithCancel(context.Background())
	defer stopStats()
	common.SafeGoWithContext(statsCtx, logger, "cost-summary-reporter", func() {
		ticker := time.NewTicker(15 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-statsCtx.Done():
				return
			case <-ticker.C:
				summary, err := application.CostStore.SummaryByProvider(statsCtx)
				if err != nil {
					logger.Warn().Err(err).Msg("failed to summarize cost metrics")
					continue
				}
				logger.Info().Interface("by_provider", summary).Msg("periodic cost summary")
			}
		}
	})

	logger.Info().
		Str("url", fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)).
		Msg("extraction server ready")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	logger.Info().Msg("server stopped")
}
