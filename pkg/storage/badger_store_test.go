package storage

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portal-harvester/pkg/models"
	"portal-harvester/pkg/utils"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func newTestSink(t *testing.T) *BadgerSink {
	t.Helper()
	sink, err := NewBadgerSink(t.TempDir(), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { sink.Close() })
	return sink
}

func testDoc(url, title string) *models.Document {
	return &models.Document{
		URL:         url,
		Title:       title,
		BodyText:    "body of " + title,
		Category:    "missions",
		Length:      1500,
		ContentHash: utils.CalculateStringSHA256(title),
		Quality:     models.QualityMedium,
	}
}

func TestBadgerSink_SubmitAndGet(t *testing.T) {
	sink := newTestSink(t)
	ctx := context.Background()

	docs := []*models.Document{
		testDoc("https://mosdac.gov.in/insat-3d", "INSAT-3D"),
		testDoc("https://mosdac.gov.in/oceansat-2", "Oceansat-2"),
		nil,
	}
	require.NoError(t, sink.Submit(ctx, docs))

	got, ok, err := sink.Get("https://mosdac.gov.in/insat-3d")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "INSAT-3D", got.Title)
	assert.Equal(t, models.Category("missions"), got.Category)

	_, ok, err = sink.Get("https://mosdac.gov.in/missing")
	require.NoError(t, err)
	assert.False(t, ok)

	count, err := sink.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestBadgerSink_ResubmitOverwrites(t *testing.T) {
	sink := newTestSink(t)
	ctx := context.Background()
	url := "https://mosdac.gov.in/insat-3d"

	require.NoError(t, sink.Submit(ctx, []*models.Document{testDoc(url, "old")}))
	require.NoError(t, sink.Submit(ctx, []*models.Document{testDoc(url, "new")}))

	got, ok, err := sink.Get(url)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "new", got.Title)

	count, err := sink.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestBadgerSink_ConcurrentPut(t *testing.T) {
	sink := newTestSink(t)

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := range 40 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Half the writers collide on the same key
			url := fmt.Sprintf("https://mosdac.gov.in/page-%d", i%20)
			errs <- sink.Put(testDoc(url, fmt.Sprintf("t%d", i)))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	count, err := sink.Count()
	require.NoError(t, err)
	assert.Equal(t, 20, count)
}

func TestBadgerSink_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	url := "https://mosdac.gov.in/scatsat-1"

	first, err := NewBadgerSink(dir, testLogger())
	require.NoError(t, err)
	require.NoError(t, first.Submit(context.Background(), []*models.Document{testDoc(url, "SCATSAT-1")}))
	require.NoError(t, first.Close())

	second, err := NewBadgerSink(dir, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { second.Close() })

	got, ok, err := second.Get(url)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "SCATSAT-1", got.Title)
}

func TestBadgerSink_ClosedAndCancelled(t *testing.T) {
	sink := newTestSink(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sink.Submit(ctx, []*models.Document{testDoc("https://mosdac.gov.in/a", "a")}), context.Canceled)

	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close(), "double close is a no-op")
	assert.ErrorIs(t, sink.Submit(context.Background(), nil), utils.ErrIndexSink)
}

func TestBadgerSink_RunGCStopsOnCancel(t *testing.T) {
	sink := newTestSink(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		sink.RunGC(ctx, 10*time.Millisecond)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunGC did not stop after cancellation")
	}
}
