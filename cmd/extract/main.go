// Command extract is a one-shot CLI runner: fetch one URL, run it through
// the Master Orchestration Engine, and print the resulting OrchestrationResult as JSON
// (SPEC_FULL.md §6.1). Mirrors the teacher's cmd/quaero flag/config/logger
// startup sequence (cmd/quaero/main.go), narrowed to a single-request run.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/lorekeeper/extractor/internal/app"
	"github.com/lorekeeper/extractor/internal/common"
	"github.com/lorekeeper/extractor/internal/core/orchestrator"
	"github.com/lorekeeper/extractor/internal/core/types"
)

func main() {
	configPath := flag.String("config", "extractor.toml", "configuration file path")
	url := flag.String("url", "", "article URL to extract")
	site := flag.String("site", "", "site key (defaults to the URL itself)")
	language := flag.String("language", "", "optional language hint")
	category := flag.String("category", "", "optional category hint")
	flag.Parse()

	if *url == "" {
		fmt.Fprintln(os.Stderr, "usage: extract -url <article-url> [-site <site-key>]")
		os.Exit(2)
	}

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := common.SetupLogger(cfg)
	defer common.Stop()

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize extraction engine")
	}
	defer application.Close()

	siteKey := *site
	if siteKey == "" {
		siteKey = *url
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Extraction.RequestTimeoutSeconds+5)*time.Second)
	defer cancel()

	result := application.Engine.Run(ctx, orchestrator.Request{
		URL:  *url,
		Site: siteKey,
		Hints: types.Hints{
			Language: *language,
			Category: *category,
		},
	})

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to marshal result")
	}
	fmt.Println(string(out))

	if !result.OK {
		os.Exit(1)
	}
}
