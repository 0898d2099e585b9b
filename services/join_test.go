package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"bizharvest/models"
	"bizharvest/utils"
)

func stubRunner(summary models.AggregateSummary) SourceRunner {
	return func(ctx context.Context) (*models.ParseResult, error) {
		return &models.ParseResult{Status: models.StatusComplete, Aggregated: summary}, nil
	}
}

func TestJoinSourcesCombinesRuns(t *testing.T) {
	runners := []SourceRunner{
		stubRunner(models.AggregateSummary{TotalCards: 2, RatedCards: 2, RatingMean: 4.0}),
		stubRunner(models.AggregateSummary{TotalCards: 2, RatedCards: 2, RatingMean: 2.0}),
	}
	pool := utils.NewWorkerPool(2, 0)

	results, combined, err := JoinSources(context.Background(), pool, runners)
	if err != nil {
		t.Fatalf("JoinSources: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results: got %d, want 2", len(results))
	}
	if combined.TotalCards != 4 {
		t.Errorf("TotalCards: got %d, want 4", combined.TotalCards)
	}
	if combined.RatingMean != 3.0 {
		t.Errorf("RatingMean: got %v, want 3.0", combined.RatingMean)
	}
}

func TestJoinSourcesSurfacesFirstError(t *testing.T) {
	sentinel := errors.New("browser crashed")
	runners := []SourceRunner{
		stubRunner(models.AggregateSummary{TotalCards: 1}),
		func(ctx context.Context) (*models.ParseResult, error) {
			return nil, sentinel
		},
	}
	pool := utils.NewWorkerPool(2, 0)

	results, combined, err := JoinSources(context.Background(), pool, runners)
	if err == nil {
		t.Fatal("JoinSources: got nil error, want wrapped source error")
	}
	if !errors.Is(err, sentinel) {
		t.Errorf("error chain lost the cause: %v", err)
	}
	if !strings.Contains(err.Error(), "source 2") {
		t.Errorf("error does not name the failing source: %v", err)
	}
	// The healthy source's result still comes back for inspection.
	if len(results) != 1 {
		t.Errorf("results: got %d, want 1", len(results))
	}
	if combined.TotalCards != 1 {
		t.Errorf("TotalCards: got %d, want 1", combined.TotalCards)
	}
}
