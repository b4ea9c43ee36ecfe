package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	appconfig "fundingflow/config"
	"fundingflow/logger"
	"fundingflow/models"
	"fundingflow/processor"
	"fundingflow/reader/bybit"
	"fundingflow/reader/coingecko"
	"fundingflow/writer"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	minCap := flag.Float64("min-cap", -1, "Minimum market cap in USD (overrides config)")
	top := flag.Int("top", 0, "Entries per ranking direction (overrides config)")
	skipMarketCap := flag.Bool("skip-market-cap", false, "Disable market cap filtering")
	noColor := flag.Bool("no-color", false, "Disable colored table output")
	flag.Parse()

	cfg, err := appconfig.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if *minCap >= 0 {
		cfg.Ranking.MinMarketCapUSD = *minCap
	}
	if *top > 0 {
		cfg.Ranking.Top = *top
	}
	if *skipMarketCap {
		cfg.Ranking.SkipMarketCap = true
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleShutdown(cancel)

	if err := run(ctx, cfg, !*noColor); err != nil {
		if isInterrupt(err) {
			log.WithComponent("main").Warn("interrupted, shutting down")
			os.Exit(130)
		}
		log.WithError(err).Error("run failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *appconfig.Config, color bool) error {
	log := logger.GetLogger().WithComponent("main").WithFields(logger.Fields{
		"run_id": uuid.NewString(),
	})

	log.WithFields(logger.Fields{
		"service":  cfg.Fundingflow.Name,
		"version":  cfg.Fundingflow.Version,
		"min_cap":  cfg.Ranking.MinMarketCapUSD,
		"top":      cfg.Ranking.Top,
		"skip_cap": cfg.Ranking.SkipMarketCap,
	}).Info("starting fundingflow")

	exchange := bybit.NewReader(cfg)

	instruments, err := exchange.FetchInstruments(ctx)
	if err != nil {
		return fmt.Errorf("load instrument catalog: %w", err)
	}

	perps := models.FilterBySettlement(instruments, cfg.Source.Bybit.SettlementCoin)
	log.WithFields(logger.Fields{
		"instruments": len(instruments),
		"settled":     len(perps),
	}).Info("instrument catalog filtered")

	symbols := make([]string, 0, len(perps))
	for _, inst := range perps {
		symbols = append(symbols, inst.Symbol)
	}

	funding, tickers, err := exchange.FetchFundingAndTickers(ctx, symbols)
	if err != nil {
		return fmt.Errorf("load funding and tickers: %w", err)
	}

	caps := map[string]models.MarketCapRecord{}
	if !cfg.Ranking.SkipMarketCap {
		bases := make([]string, 0, len(perps))
		for _, inst := range perps {
			bases = append(bases, inst.Base(cfg.Source.Bybit.SettlementCoin))
		}
		caps, err = coingecko.NewReader(cfg).ResolveMarketCaps(ctx, bases)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			// Unknown capitalizations pass the filter, so a dead provider
			// degrades to an unfiltered ranking rather than an abort.
			log.WithError(err).Warn("market cap resolution failed, treating all capitalizations as unknown")
			caps = map[string]models.MarketCapRecord{}
		}
	}

	ranker := processor.NewRanker(cfg)
	positive, negative := ranker.Rank(perps, funding, tickers, caps, processor.Options{
		Top:             cfg.Ranking.Top,
		MinMarketCapUSD: cfg.Ranking.MinMarketCapUSD,
		SkipMarketCap:   cfg.Ranking.SkipMarketCap,
		SettlementCoin:  cfg.Source.Bybit.SettlementCoin,
	})

	w := writer.NewTableWriter(os.Stdout, color)
	w.RenderRanking("HIGHEST POSITIVE FUNDING", positive)
	w.RenderRanking("MOST NEGATIVE FUNDING", negative)

	log.WithFields(logger.RunSummary()).Info("run complete")
	return nil
}

// isInterrupt reports whether err originates from the cancelled run
// context rather than a pipeline failure. The run error itself is
// consulted so that a real failure racing a late signal still reports
// as a failure.
func isInterrupt(err error) bool {
	return errors.Is(err, context.Canceled)
}

func handleShutdown(cancel context.CancelFunc) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	<-ch
	cancel()
}
