package storage

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portal-harvester/pkg/models"
	"portal-harvester/pkg/utils"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaSink_Submit(t *testing.T) {
	w := &fakeWriter{}
	sink := NewKafkaSinkWithWriter(w, "harvest.documents", testLogger())

	doc := testDoc("https://mosdac.gov.in/insat-3dr", "INSAT-3DR")
	require.NoError(t, sink.Submit(context.Background(), []*models.Document{doc, nil}))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, doc.URL, string(msg.Key))
	assert.Contains(t, string(msg.Value), `"title":"INSAT-3DR"`)

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "missions", headers["category"])
	assert.Equal(t, doc.ContentHash, headers["content_hash"])

	require.NoError(t, sink.Close())
	assert.True(t, w.closed)
}

func TestKafkaSink_Errors(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	sink := NewKafkaSinkWithWriter(w, "harvest.documents", testLogger())

	err := sink.Submit(context.Background(), []*models.Document{testDoc("https://mosdac.gov.in/a", "a")})
	assert.ErrorIs(t, err, utils.ErrIndexSink)

	// Empty batches never reach the writer
	assert.NoError(t, sink.Submit(context.Background(), nil))
}
