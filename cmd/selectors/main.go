// Command selectors is an operator CLI for the Selector Store (C8),
// supporting a "seed" verb that pre-loads a known-good SelectorSet for a
// site without going through UC3 discovery (SPEC_FULL.md Supplemented
// Features: operators migrating selector knowledge from an existing rules
// file). Flag parsing style matches the teacher's cmd/quaero subcommand
// files (cmd/quaero/collect.go, cmd/quaero/query.go).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/lorekeeper/extractor/internal/common"
	"github.com/lorekeeper/extractor/internal/core/types"
	"github.com/lorekeeper/extractor/internal/storage/sqlite"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "seed":
		runSeed(os.Args[2:])
	case "get":
		runGet(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: selectors seed -site <site> -title <sel> -body <sel> -date <sel> [-config <path>]")
	fmt.Fprintln(os.Stderr, "       selectors get -site <site> [-config <path>]")
}

func runSeed(args []string) {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	configPath := fs.String("config", "extractor.toml", "configuration file path")
	site := fs.String("site", "", "site key")
	title := fs.String("title", "", "title selector (CSS path or meta:<key>)")
	body := fs.String("body", "", "body selector")
	date := fs.String("date", "", "date selector")
	fs.Parse(args)

	if *site == "" || *title == "" || *body == "" || *date == "" {
		usage()
		os.Exit(2)
	}

	cfg, logger := loadConfigAndLogger(*configPath)
	db, err := sqlite.Open(cfg.Storage.SQLitePath, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open storage")
	}
	defer db.Close()

	store := sqlite.NewSelectorStore(db)
	set := types.SelectorSet{
		Title:      types.ParseSelector(*title),
		Body:       types.ParseSelector(*body),
		Date:       types.ParseSelector(*date),
		Source:     types.SourceUC1Reuse,
		Confidence: 1.0,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	existing, err := store.Get(ctx, *site)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to check for an existing selector record")
	}

	if existing == nil {
		if _, err := store.PutNew(ctx, *site, set, set.Source); err != nil {
			logger.Fatal().Err(err).Msg("failed to seed selector record")
		}
	} else {
		if _, err := store.Replace(ctx, *site, set, set.Source); err != nil {
			logger.Fatal().Err(err).Msg("failed to replace selector record")
		}
	}

	fmt.Printf("seeded selectors for %s: title=%s body=%s date=%s\n", *site, set.Title.String(), set.Body.String(), set.Date.String())
}

func runGet(args []string) {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	configPath := fs.String("config", "extractor.toml", "configuration file path")
	site := fs.String("site", "", "site key")
	fs.Parse(args)

	if *site == "" {
		usage()
		os.Exit(2)
	}

	cfg, logger := loadConfigAndLogger(*configPath)
	db, err := sqlite.Open(cfg.Storage.SQLitePath, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open storage")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rec, err := sqlite.NewSelectorStore(db).Get(ctx, *site)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to read selector record")
	}
	if rec == nil {
		fmt.Printf("no selector record for %s\n", *site)
		return
	}

	fmt.Printf("site=%s title=%s body=%s date=%s source=%s success=%d failure=%d\n",
		rec.Site, rec.Set.Title.String(), rec.Set.Body.String(), rec.Set.Date.String(),
		rec.Source, rec.SuccessCount, rec.FailureCount)
}

func loadConfigAndLogger(path string) (*common.Config, arbor.ILogger) {
	cfg, err := common.LoadConfig(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := common.SetupLogger(cfg)
	return cfg, logger
}
