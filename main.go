package main

import (
	"context"
	"flag"
	"os"
	"strings"
	"time"

	"bizharvest/browser"
	"bizharvest/config"
	"bizharvest/harvest"
	"bizharvest/models"
	"bizharvest/services"
	"bizharvest/storage"
	"bizharvest/utils"
)

func main() {
	queryText := flag.String("query", "", "Company name or business category to search for")
	location := flag.String("location", "", "Location scope of the search")
	urls := flag.String("urls", "", "Comma-separated listing page URLs, one per source")
	maxRecords := flag.Int("max", 0, "Record budget per source (0 = config default)")
	flag.Parse()

	cfg := config.Load()
	logger := utils.NewLoggerWithLevel(cfg.LogLevel)

	logger.Info("=== Business Listing Harvester starting ===")

	sources := splitSources(*urls)
	if len(sources) == 0 {
		logger.Error("No listing URLs given. Pass -urls with one or more listing page URLs.")
		os.Exit(1)
	}

	selectors, err := config.LoadSelectors(cfg.SelectorsPath)
	if err != nil {
		logger.Warn("Selector overlay not loaded, using defaults: %v", err)
	}

	query := models.SearchQuery{
		Text:       *queryText,
		Location:   *location,
		MaxRecords: *maxRecords,
	}

	logger.Info("Config — sources: %d | budget/source: %d | concurrency: %d | rate: %dms",
		len(sources), cfg.MaxRecords, cfg.MaxConcurrency, cfg.RateLimitMs)

	csvWriter, err := storage.NewCSVWriter(cfg.CSVOutputPath)
	if err != nil {
		logger.Error("Failed to create CSV writer: %v", err)
		os.Exit(1)
	}
	defer csvWriter.Close()

	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.RunTimeoutSec)*time.Second)
	defer cancel()

	runners := make([]services.SourceRunner, len(sources))
	for i, startURL := range sources {
		startURL := startURL
		runners[i] = func(ctx context.Context) (*models.ParseResult, error) {
			surf, err := browser.NewChromeSurface(cfg, logger)
			if err != nil {
				// The only fatal per-source condition: no browser at all.
				return nil, err
			}
			defer surf.Close()

			orch := harvest.NewOrchestrator(cfg, selectors, surf, logger)
			return orch.Run(ctx, query, startURL), nil
		}
	}

	pool := utils.NewWorkerPool(cfg.MaxConcurrency, cfg.RateLimitMs)
	results, combined, err := services.JoinSources(ctx, pool, runners)
	if err != nil {
		logger.Error("Harvest join incomplete: %v", err)
	}
	if len(results) == 0 {
		logger.Error("No source produced a result. Exiting.")
		os.Exit(1)
	}

	written := 0
	for _, res := range results {
		for _, card := range res.Cards {
			if err := csvWriter.WriteCard(card); err != nil {
				logger.Error("CSV write failed: %v", err)
				break
			}
			written++
		}
	}
	logger.Info("Wrote %d cards to %s", written, cfg.CSVOutputPath)

	if cfg.PostgresEnabled {
		persistToPostgres(cfg, logger, results)
	}

	report := services.NewReportService(logger)
	report.Print(combined, results)
}

// persistToPostgres is best-effort: a missing database degrades the run to
// CSV-only output instead of failing it.
func persistToPostgres(cfg *config.Config, logger *utils.Logger, results []*models.ParseResult) {
	pgWriter, err := storage.NewPostgresWriter(cfg.DSN())
	if err != nil {
		logger.Error("PostgreSQL unavailable, keeping CSV output only: %v", err)
		return
	}
	defer pgWriter.Close()

	for _, res := range results {
		if err := pgWriter.Write(res.Cards); err != nil {
			logger.Error("PostgreSQL write failed: %v", err)
			return
		}
	}
	logger.Info("Cards stored in PostgreSQL (table: cards)")
}

func splitSources(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
