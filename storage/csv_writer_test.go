package storage

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"bizharvest/models"
)

func sampleCard() *models.CardRecord {
	days := 2.5
	return &models.CardRecord{
		Name:                "Кофейня Бодрость",
		Address:             "пр. Мира, 10",
		CompanyID:           "70000001042",
		Rating:              4.6,
		ReviewsCount:        42,
		PositiveReviews:     30,
		NegativeReviews:     8,
		AnsweredReviews:     25,
		UnansweredReviews:   17,
		AvgResponseTimeDays: &days,
		Phone:               "+7 900 123-45-67",
		Website:             "https://bodrost.example",
		Rubrics:             []string{"Кофейня", "Кондитерская"},
		OpeningHours:        []string{"Mo-Fr 08:00-22:00", "Sa-Su 09:00-21:00"},
		SourceURL:           "https://maps.example.com/firm/70000001042",
		ScrapedAt:           time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC),
	}
}

func TestCardRecordMapCoversAllColumns(t *testing.T) {
	record := CardRecordMap(sampleCard())

	for _, col := range CardColumns {
		if _, ok := record[col]; !ok {
			t.Errorf("column %q missing from record map", col)
		}
	}
	if len(record) != len(CardColumns) {
		t.Errorf("record has %d keys, columns expect %d", len(record), len(CardColumns))
	}

	if got := record["rubrics"]; got != "Кофейня; Кондитерская" {
		t.Errorf("rubrics: got %q", got)
	}
	if got := record["scraped_at"]; got != "2024-06-15T12:00:00Z" {
		t.Errorf("scraped_at: got %q", got)
	}
}

func TestCardRecordMapNilResponseTime(t *testing.T) {
	card := sampleCard()
	card.AvgResponseTimeDays = nil

	if got := CardRecordMap(card)["avg_response_days"]; got != "" {
		t.Errorf("avg_response_days: got %v, want empty cell", got)
	}
}

func TestCSVWriterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "cards.csv")

	w, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("NewCSVWriter: %v", err)
	}
	if err := w.WriteCard(sampleCard()); err != nil {
		t.Fatalf("WriteCard: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows: got %d, want header plus one record", len(rows))
	}
	if rows[0][0] != "name" || rows[0][len(rows[0])-1] != "scraped_at" {
		t.Errorf("header: got %v", rows[0])
	}

	got := make(map[string]string, len(rows[0]))
	for i, col := range rows[0] {
		got[col] = rows[1][i]
	}
	if got["name"] != "Кофейня Бодрость" {
		t.Errorf("name cell: got %q", got["name"])
	}
	if got["rating"] != "4.60" {
		t.Errorf("rating cell: got %q", got["rating"])
	}
	if got["reviews_count"] != "42" {
		t.Errorf("reviews_count cell: got %q", got["reviews_count"])
	}
	if got["avg_response_days"] != "2.50" {
		t.Errorf("avg_response_days cell: got %q", got["avg_response_days"])
	}
	if got["url"] != "https://maps.example.com/firm/70000001042" {
		t.Errorf("url cell: got %q", got["url"])
	}
}
