package services

import (
	"math"
	"testing"

	"bizharvest/models"
)

func floatPtr(v float64) *float64 { return &v }

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestFoldComputesRunningMeans(t *testing.T) {
	agg := NewAggregator()
	cards := []*models.CardRecord{
		{Rating: 5, ReviewsCount: 10, PositiveReviews: 8, NegativeReviews: 2,
			AnsweredReviews: 6, UnansweredReviews: 4, AvgResponseTimeDays: floatPtr(2)},
		{Rating: 4, ReviewsCount: 4, PositiveReviews: 1, NegativeReviews: 3,
			AnsweredReviews: 0, UnansweredReviews: 4},
		{Rating: 3, ReviewsCount: 0, AvgResponseTimeDays: floatPtr(4)},
	}
	for _, c := range cards {
		agg.Fold(c)
	}

	s := agg.Summary()
	if s.TotalCards != 3 {
		t.Errorf("TotalCards: got %d, want 3", s.TotalCards)
	}
	if s.RatedCards != 3 {
		t.Errorf("RatedCards: got %d, want 3", s.RatedCards)
	}
	if !almostEqual(s.RatingMean, 4.0) {
		t.Errorf("RatingMean: got %v, want 4.0", s.RatingMean)
	}
	if s.ReviewsCount != 14 {
		t.Errorf("ReviewsCount: got %d, want 14", s.ReviewsCount)
	}
	if s.PositiveReviews != 9 || s.NegativeReviews != 5 {
		t.Errorf("review split: got %d/%d, want 9/5", s.PositiveReviews, s.NegativeReviews)
	}
	if s.AnsweredReviews != 6 || s.UnansweredReviews != 8 {
		t.Errorf("response split: got %d/%d, want 6/8", s.AnsweredReviews, s.UnansweredReviews)
	}
	if s.ResponseTimeSamples != 2 {
		t.Errorf("ResponseTimeSamples: got %d, want 2", s.ResponseTimeSamples)
	}
	if !almostEqual(s.ResponseTimeMean, 3.0) {
		t.Errorf("ResponseTimeMean: got %v, want 3.0", s.ResponseTimeMean)
	}
}

func TestFoldSkipsUnratedCards(t *testing.T) {
	agg := NewAggregator()
	agg.Fold(&models.CardRecord{Rating: 5})
	agg.Fold(&models.CardRecord{Rating: 0})

	s := agg.Summary()
	if s.TotalCards != 2 {
		t.Errorf("TotalCards: got %d, want 2", s.TotalCards)
	}
	if s.RatedCards != 1 {
		t.Errorf("RatedCards: got %d, want 1", s.RatedCards)
	}
	if !almostEqual(s.RatingMean, 5.0) {
		t.Errorf("RatingMean: got %v, want 5.0 (unrated card must not dilute)", s.RatingMean)
	}
}

// One sample per card even when the card's mean came from many reviews, so
// a single high-volume card cannot dominate the response-time metric.
func TestFoldWeighsResponseTimePerCard(t *testing.T) {
	agg := NewAggregator()
	agg.Fold(&models.CardRecord{ReviewsCount: 500, AvgResponseTimeDays: floatPtr(10)})
	agg.Fold(&models.CardRecord{ReviewsCount: 2, AvgResponseTimeDays: floatPtr(2)})

	s := agg.Summary()
	if s.ResponseTimeSamples != 2 {
		t.Errorf("ResponseTimeSamples: got %d, want 2", s.ResponseTimeSamples)
	}
	if !almostEqual(s.ResponseTimeMean, 6.0) {
		t.Errorf("ResponseTimeMean: got %v, want 6.0", s.ResponseTimeMean)
	}
}

// The summary is valid mid-run: folding the remaining cards after a read
// yields the same result as folding everything in one pass.
func TestSummaryReadableMidRun(t *testing.T) {
	cards := []*models.CardRecord{
		{Rating: 4, ReviewsCount: 3, AvgResponseTimeDays: floatPtr(1)},
		{Rating: 2, ReviewsCount: 7},
		{Rating: 5, ReviewsCount: 1, AvgResponseTimeDays: floatPtr(5)},
	}

	oneShot := NewAggregator()
	for _, c := range cards {
		oneShot.Fold(c)
	}

	interrupted := NewAggregator()
	interrupted.Fold(cards[0])
	mid := interrupted.Summary()
	if mid.TotalCards != 1 || !almostEqual(mid.RatingMean, 4.0) {
		t.Errorf("mid-run summary: got %+v", mid)
	}
	interrupted.Fold(cards[1])
	interrupted.Fold(cards[2])

	if got, want := interrupted.Summary(), oneShot.Summary(); got != want {
		t.Errorf("resumed fold diverged:\ngot  %+v\nwant %+v", got, want)
	}
}

func TestMergeSummariesReweightsMeans(t *testing.T) {
	a := models.AggregateSummary{
		TotalCards: 3, RatedCards: 3, RatingMean: 5.0,
		ReviewsCount: 30, PositiveReviews: 20, NegativeReviews: 5,
		ResponseTimeMean: 2.0, ResponseTimeSamples: 2,
	}
	b := models.AggregateSummary{
		TotalCards: 1, RatedCards: 1, RatingMean: 1.0,
		ReviewsCount: 4, AnsweredReviews: 4,
		ResponseTimeMean: 8.0, ResponseTimeSamples: 1,
	}
	empty := models.AggregateSummary{TotalCards: 2}

	merged := MergeSummaries(a, b, empty)

	if merged.TotalCards != 6 {
		t.Errorf("TotalCards: got %d, want 6", merged.TotalCards)
	}
	if merged.RatedCards != 4 {
		t.Errorf("RatedCards: got %d, want 4", merged.RatedCards)
	}
	if !almostEqual(merged.RatingMean, 4.0) {
		t.Errorf("RatingMean: got %v, want 4.0 (weighted, not averaged)", merged.RatingMean)
	}
	if !almostEqual(merged.ResponseTimeMean, 4.0) {
		t.Errorf("ResponseTimeMean: got %v, want 4.0", merged.ResponseTimeMean)
	}
	if merged.ReviewsCount != 34 {
		t.Errorf("ReviewsCount: got %d, want 34", merged.ReviewsCount)
	}
}

func TestMergeSummariesEmptyInput(t *testing.T) {
	merged := MergeSummaries()
	if merged != (models.AggregateSummary{}) {
		t.Errorf("MergeSummaries(): got %+v, want zero value", merged)
	}
}
