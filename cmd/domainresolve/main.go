package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/domainresolve/domainresolve/internal/enrich"
	"github.com/domainresolve/domainresolve/internal/table"
)

func main() {
	// Logging setup
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	var (
		inputPath  string
		outputPath string
		configPath string
		model      string
		verbose    bool
	)

	flag.StringVar(&inputPath, "input", "companies.csv", "Path to input CSV with a company name column")
	flag.StringVar(&outputPath, "output", "enriched.csv", "Path to write the enriched CSV")
	flag.StringVar(&configPath, "config", os.Getenv("DOMAINRESOLVE_CONFIG"), "Optional YAML/JSON config file overlaying the environment")
	flag.StringVar(&model, "model", "", "Override the chat model name")
	flag.BoolVar(&verbose, "v", false, "Verbose logging")
	flag.Parse()

	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	cfg := enrich.FromEnv()
	if configPath != "" {
		if err := cfg.LoadFile(configPath); err != nil {
			log.Fatal().Err(err).Str("path", configPath).Msg("load config file")
		}
	}
	if model != "" {
		cfg.OpenAIModel = model
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, inputPath, outputPath); err != nil {
		log.Fatal().Err(err).Msg("enrichment failed")
	}
}

func run(ctx context.Context, cfg enrich.Config, inputPath, outputPath string) error {
	in, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	tbl, err := table.ReadCSV(in)
	in.Close()
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	log.Info().Str("input", inputPath).Int("rows", len(tbl.Rows)).Msg("input loaded")

	engine := enrich.New(cfg)
	engine.Progress = func(current, total int, message string) {
		log.Info().Int("current", current).Int("total", total).Msg(message)
	}

	enrichErr := engine.Enrich(ctx, tbl)
	if enrichErr != nil {
		// Rows finished before the failure are still worth writing.
		log.Error().Err(enrichErr).Msg("enrichment stopped early, writing partial results")
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer out.Close()
	if err := tbl.WriteCSV(out); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	log.Info().Str("output", outputPath).Msg("output written")
	return enrichErr
}
