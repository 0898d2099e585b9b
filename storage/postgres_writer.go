package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"bizharvest/models"
)

// PostgresWriter persists finished card records to PostgreSQL.
type PostgresWriter struct {
	db *sql.DB
}

// NewPostgresWriter opens a connection to PostgreSQL, runs schema migrations,
// and returns a ready-to-use PostgresWriter.
func NewPostgresWriter(dsn string) (*PostgresWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	pw := &PostgresWriter{db: db}
	if err := pw.migrate(); err != nil {
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return pw, nil
}

func (pw *PostgresWriter) migrate() error {
	_, err := pw.db.Exec(`
		CREATE TABLE IF NOT EXISTS cards (
			id                 SERIAL PRIMARY KEY,
			name               TEXT         NOT NULL DEFAULT '',
			address            TEXT         NOT NULL DEFAULT '',
			company_id         TEXT         NOT NULL DEFAULT '',
			rating             NUMERIC(4,2) NOT NULL DEFAULT 0,
			reviews_count      INT          NOT NULL DEFAULT 0,
			positive_reviews   INT          NOT NULL DEFAULT 0,
			negative_reviews   INT          NOT NULL DEFAULT 0,
			answered_reviews   INT          NOT NULL DEFAULT 0,
			unanswered_reviews INT          NOT NULL DEFAULT 0,
			avg_response_days  NUMERIC(8,2),
			phone              TEXT         NOT NULL DEFAULT '',
			website            TEXT         NOT NULL DEFAULT '',
			rubrics            TEXT         NOT NULL DEFAULT '',
			url                TEXT         UNIQUE NOT NULL,
			scraped_at         TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_cards_rating  ON cards(rating);
		CREATE INDEX IF NOT EXISTS idx_cards_name    ON cards(name);
	`)
	return err
}

// Write batch-inserts finished cards; re-harvested URLs are skipped.
func (pw *PostgresWriter) Write(cards []*models.CardRecord) error {
	if len(cards) == 0 {
		return nil
	}

	const batchSize = 50
	for i := 0; i < len(cards); i += batchSize {
		end := i + batchSize
		if end > len(cards) {
			end = len(cards)
		}
		if err := pw.insertBatch(cards[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (pw *PostgresWriter) insertBatch(batch []*models.CardRecord) error {
	const cols = 15
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]interface{}, 0, len(batch)*cols)

	for idx, c := range batch {
		base := idx * cols
		placeholders := make([]string, cols)
		for j := range placeholders {
			placeholders[j] = fmt.Sprintf("$%d", base+j+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(placeholders, ",")+")")

		var responseDays sql.NullFloat64
		if c.AvgResponseTimeDays != nil {
			responseDays = sql.NullFloat64{Float64: *c.AvgResponseTimeDays, Valid: true}
		}
		valueArgs = append(valueArgs,
			c.Name, c.Address, c.CompanyID, c.Rating, c.ReviewsCount,
			c.PositiveReviews, c.NegativeReviews, c.AnsweredReviews,
			c.UnansweredReviews, responseDays, c.Phone, c.Website,
			strings.Join(c.Rubrics, multiValueJoin), c.SourceURL, c.ScrapedAt)
	}

	query := fmt.Sprintf(`
		INSERT INTO cards (name, address, company_id, rating, reviews_count,
			positive_reviews, negative_reviews, answered_reviews,
			unanswered_reviews, avg_response_days, phone, website, rubrics,
			url, scraped_at)
		VALUES %s
		ON CONFLICT (url) DO NOTHING
	`, strings.Join(valueStrings, ","))

	_, err := pw.db.Exec(query, valueArgs...)
	return err
}

func (pw *PostgresWriter) Close() error {
	return pw.db.Close()
}

// FetchAll retrieves all stored cards, most recent first.
func (pw *PostgresWriter) FetchAll() ([]*models.CardRecord, error) {
	rows, err := pw.db.Query(`
		SELECT name, address, company_id, rating, reviews_count,
			positive_reviews, negative_reviews, answered_reviews,
			unanswered_reviews, avg_response_days, phone, website, rubrics,
			url, scraped_at
		FROM cards
		ORDER BY scraped_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch all: %w", err)
	}
	defer rows.Close()

	var cards []*models.CardRecord
	for rows.Next() {
		c := &models.CardRecord{}
		var responseDays sql.NullFloat64
		var rubrics string
		if err := rows.Scan(
			&c.Name, &c.Address, &c.CompanyID, &c.Rating, &c.ReviewsCount,
			&c.PositiveReviews, &c.NegativeReviews, &c.AnsweredReviews,
			&c.UnansweredReviews, &responseDays, &c.Phone, &c.Website,
			&rubrics, &c.SourceURL, &c.ScrapedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan row: %w", err)
		}
		if responseDays.Valid {
			v := responseDays.Float64
			c.AvgResponseTimeDays = &v
		}
		if rubrics != "" {
			c.Rubrics = strings.Split(rubrics, multiValueJoin)
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}
