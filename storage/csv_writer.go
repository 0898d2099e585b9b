package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"bizharvest/models"
)

// multiValueJoin separates rubric and opening-hours values inside one cell.
const multiValueJoin = "; "

// CardColumns is the stable CSV column order for card records.
var CardColumns = []string{
	"name", "address", "company_id", "rating", "reviews_count",
	"positive_reviews", "negative_reviews", "answered_reviews",
	"unanswered_reviews", "avg_response_days", "phone", "website",
	"rubrics", "opening_hours", "url", "scraped_at",
}

// CSVWriter writes harvested card records to a CSV file. It is safe for
// concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSVWriter creates (or truncates) the CSV file at the given path and
// writes the header row. Intermediate directories are created automatically.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv: create file %q: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(CardColumns); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: write header: %w", err)
	}
	w.Flush()

	return &CSVWriter{file: f, writer: w}, nil
}

// Write emits one record keyed by column name, satisfying RecordWriter.
// Unknown keys are ignored; missing keys render empty cells.
func (c *CSVWriter) Write(record map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	row := make([]string, len(CardColumns))
	for i, col := range CardColumns {
		row[i] = cellString(record[col])
	}
	if err := c.writer.Write(row); err != nil {
		return fmt.Errorf("csv: write row: %w", err)
	}
	c.writer.Flush()
	return c.writer.Error()
}

// WriteCard converts a finished card to the sink record shape and writes it.
func (c *CSVWriter) WriteCard(card *models.CardRecord) error {
	return c.Write(CardRecordMap(card))
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.writer.Flush()
	return c.file.Close()
}

// CardRecordMap flattens a card into the format-agnostic record shape
// consumed by RecordWriter sinks.
func CardRecordMap(card *models.CardRecord) map[string]any {
	record := map[string]any{
		"name":               card.Name,
		"address":            card.Address,
		"company_id":         card.CompanyID,
		"rating":             card.Rating,
		"reviews_count":      card.ReviewsCount,
		"positive_reviews":   card.PositiveReviews,
		"negative_reviews":   card.NegativeReviews,
		"answered_reviews":   card.AnsweredReviews,
		"unanswered_reviews": card.UnansweredReviews,
		"phone":              card.Phone,
		"website":            card.Website,
		"rubrics":            joinValues(card.Rubrics),
		"opening_hours":      joinValues(card.OpeningHours),
		"url":                card.SourceURL,
		"scraped_at":         card.ScrapedAt.Format(time.RFC3339),
	}
	if card.AvgResponseTimeDays != nil {
		record["avg_response_days"] = *card.AvgResponseTimeDays
	} else {
		record["avg_response_days"] = ""
	}
	return record
}

func joinValues(values []string) string {
	out := ""
	for i, v := range values {
		if i > 0 {
			out += multiValueJoin
		}
		out += v
	}
	return out
}

func cellString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'f', 2, 64)
	default:
		return fmt.Sprint(val)
	}
}
