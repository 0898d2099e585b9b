package services

import (
	"fmt"
	"sort"
	"strings"

	"bizharvest/models"
	"bizharvest/utils"
)

// ReportService renders a harvest summary to the terminal.
type ReportService struct {
	logger *utils.Logger
}

// NewReportService creates a ReportService.
func NewReportService(logger *utils.Logger) *ReportService {
	return &ReportService{logger: logger}
}

// Print writes the aggregate summary and the top-rated cards for one or
// more joined runs.
func (s *ReportService) Print(summary models.AggregateSummary, results []*models.ParseResult) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Printf("\n\033[1;35m%s\033[0m\n", sep)
	fmt.Printf("\033[1;35m  📊 HARVEST SUMMARY\033[0m\n")
	fmt.Printf("\033[1;35m%s\033[0m\n\n", sep)

	fmt.Printf("\033[1;33m  Runs\033[0m\n")
	fmt.Printf("  %s\n", thin)
	for _, r := range results {
		fmt.Printf("  %s — %q (%s): %d cards, %s\n",
			r.RunID[:8], r.Query.Text, r.Query.Location, r.Aggregated.TotalCards, r.Status)
	}
	fmt.Println()

	fmt.Printf("\033[1;33m  Cards\033[0m\n")
	fmt.Printf("  %s\n", thin)
	fmt.Printf("  Total cards collected  : \033[1m%d\033[0m\n", summary.TotalCards)
	if summary.RatedCards > 0 {
		fmt.Printf("  Mean rating            : \033[1;32m%.2f ★\033[0m (over %d rated cards)\n",
			summary.RatingMean, summary.RatedCards)
	} else {
		fmt.Printf("  No rated cards\n")
	}
	fmt.Println()

	fmt.Printf("\033[1;33m  Reviews\033[0m\n")
	fmt.Printf("  %s\n", thin)
	fmt.Printf("  Total reviews          : \033[1m%d\033[0m\n", summary.ReviewsCount)
	fmt.Printf("  Positive (★4–5)        : \033[1;32m%d\033[0m\n", summary.PositiveReviews)
	fmt.Printf("  Negative (below ★4)    : \033[1;31m%d\033[0m\n", summary.NegativeReviews)
	fmt.Printf("  Answered / unanswered  : %d / %d\n", summary.AnsweredReviews, summary.UnansweredReviews)
	if summary.ResponseTimeSamples > 0 {
		fmt.Printf("  Mean response time     : \033[1m%.1f days\033[0m (over %d cards)\n",
			summary.ResponseTimeMean, summary.ResponseTimeSamples)
	} else {
		fmt.Printf("  No response-time data\n")
	}
	fmt.Println()

	topRated := collectTopRated(results, 5)
	fmt.Printf("\033[1;33m  Top %d Highest Rated\033[0m\n", len(topRated))
	fmt.Printf("  %s\n", thin)
	if len(topRated) == 0 {
		fmt.Printf("  No rated cards found\n")
	} else {
		for i, c := range topRated {
			fmt.Printf("  \033[1m%d.\033[0m %-40s \033[1;32m%.2f ★\033[0m (%d reviews)\n",
				i+1, truncate(c.Name, 38), c.Rating, c.ReviewsCount)
		}
	}

	fmt.Printf("\n\033[1;35m%s\033[0m\n\n", sep)
}

func collectTopRated(results []*models.ParseResult, n int) []*models.CardRecord {
	var rated []*models.CardRecord
	for _, r := range results {
		for _, c := range r.Cards {
			if c.Rating > 0 {
				rated = append(rated, c)
			}
		}
	}
	sort.Slice(rated, func(i, j int) bool {
		return rated[i].Rating > rated[j].Rating
	})
	if len(rated) > n {
		rated = rated[:n]
	}
	return rated
}

// truncate shortens s to max runes. Counting runes, not bytes, keeps
// Cyrillic names printable.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
