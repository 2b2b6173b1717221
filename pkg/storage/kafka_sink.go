package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"portal-harvester/pkg/models"
	"portal-harvester/pkg/utils"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes one message per document, keyed by URL
type KafkaSink struct {
	writer messageWriter
	topic  string
	log    *logrus.Entry
}

// NewKafkaSink creates a sink writing to topic on the given brokers
func NewKafkaSink(brokers []string, topic string, log *logrus.Entry) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: false,
		},
		topic: topic,
		log:   log,
	}
}

// NewKafkaSinkWithWriter builds a sink around a custom writer (tests).
func NewKafkaSinkWithWriter(writer messageWriter, topic string, log *logrus.Entry) *KafkaSink {
	return &KafkaSink{writer: writer, topic: topic, log: log}
}

// Name implements IndexSink
func (k *KafkaSink) Name() string { return "kafka" }

// Submit implements IndexSink. Same-URL messages share a key so compaction keeps the latest.
func (k *KafkaSink) Submit(ctx context.Context, docs []*models.Document) error {
	msgs := make([]kafka.Message, 0, len(docs))
	now := time.Now().UTC()
	for _, d := range docs {
		if d == nil {
			continue
		}
		payload, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("%w: marshal document %s: %w", utils.ErrParsing, d.URL, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(d.URL),
			Value: payload,
			Time:  now,
			Headers: []kafka.Header{
				{Key: "category", Value: []byte(d.Category)},
				{Key: "content_hash", Value: []byte(d.ContentHash)},
			},
		})
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("%w: publish %d documents to %s: %w", utils.ErrIndexSink, len(msgs), k.topic, err)
	}
	k.log.Infof("Published %d documents to kafka topic %s", len(msgs), k.topic)
	return nil
}

// Close implements IndexSink
func (k *KafkaSink) Close() error {
	return k.writer.Close()
}
