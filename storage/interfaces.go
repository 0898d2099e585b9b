package storage

import "bizharvest/models"

// RecordWriter is the sink contract the harvest core emits into: one record
// at a time, format-agnostic.
type RecordWriter interface {
	Write(record map[string]any) error
	Close() error
}

// CardWriter is the interface for typed persistence of finished cards.
type CardWriter interface {
	Write(cards []*models.CardRecord) error
	Close() error
}
