package storage

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"portal-harvester/pkg/config"
	"portal-harvester/pkg/models"
	"portal-harvester/pkg/utils"
)

// IndexSink hands harvested documents to a downstream indexer
type IndexSink interface {
	// Submit delivers a batch. Resubmitting the same URL replaces the earlier record.
	Submit(ctx context.Context, docs []*models.Document) error

	// Name identifies the sink in logs and summaries
	Name() string

	// Close releases the sink's resources
	Close() error
}

// NoopSink discards documents. Used when index.sink is "none".
type NoopSink struct{}

func (NoopSink) Submit(context.Context, []*models.Document) error { return nil }
func (NoopSink) Name() string                                     { return "none" }
func (NoopSink) Close() error                                     { return nil }

// NewSink builds the sink selected by cfg. cfg must already be validated.
func NewSink(cfg config.IndexConfig, log *logrus.Entry) (IndexSink, error) {
	switch cfg.Sink {
	case "", "none":
		return NoopSink{}, nil
	case "badger":
		return NewBadgerSink(cfg.BadgerDir, log)
	case "kafka":
		return NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic, log), nil
	}
	return nil, fmt.Errorf("%w: unknown sink '%s'", utils.ErrIndexSink, cfg.Sink)
}

func docKey(url string) []byte {
	return []byte(docKeyPrefix + utils.CalculateStringSHA256(url))
}
