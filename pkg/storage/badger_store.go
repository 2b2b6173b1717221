package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"portal-harvester/pkg/log"
	"portal-harvester/pkg/models"
	"portal-harvester/pkg/utils"
)

const docKeyPrefix = "doc:" // Prefix for document keys: doc:<sha256(url)>

// BadgerSink stores documents in a local BadgerDB keyed by URL hash
type BadgerSink struct {
	db  *badger.DB
	log *logrus.Entry
}

// NewBadgerSink opens (or creates) the document index at dir
func NewBadgerSink(dir string, logger *logrus.Entry) (*BadgerSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: cannot create index directory %s: %w", utils.ErrFilesystem, dir, err)
	}

	logger.Infof("Opening document index at: %s", dir)
	opts := badger.DefaultOptions(dir).
		WithLogger(log.NewBadgerLogrusAdapter(log.Component(logger, "badgerdb"))).
		WithNumVersionsToKeep(1)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open badger database at %s: %w", utils.ErrDatabase, dir, err)
	}
	return &BadgerSink{db: db, log: logger}, nil
}

// Name implements IndexSink
func (s *BadgerSink) Name() string { return "badger" }

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction conflicts.
// Conflicts on overlapping keys clear within microseconds.
func (s *BadgerSink) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := range maxConflictRetries {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

// Submit implements IndexSink. Each document overwrites any earlier record for its URL.
func (s *BadgerSink) Submit(ctx context.Context, docs []*models.Document) error {
	if s.db == nil || s.db.IsClosed() {
		return fmt.Errorf("%w: badger index is closed", utils.ErrIndexSink)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	values := make(map[string][]byte, len(docs))
	for _, d := range docs {
		if d == nil {
			continue
		}
		b, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("%w: marshal document %s: %w", utils.ErrParsing, d.URL, err)
		}
		values[string(docKey(d.URL))] = b
	}

	// One write batch keeps large runs out of ErrTxnTooBig
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for k, v := range values {
		if err := wb.Set([]byte(k), v); err != nil {
			return fmt.Errorf("%w: %w: %w", utils.ErrIndexSink, utils.ErrDatabase, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("%w: %w: flush: %w", utils.ErrIndexSink, utils.ErrDatabase, err)
	}
	s.log.Infof("Indexed %d documents into badger", len(values))
	return nil
}

// Put stores a single document through a conflict-retried transaction
func (s *BadgerSink) Put(doc *models.Document) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: marshal document %s: %w", utils.ErrParsing, doc.URL, err)
	}
	err = s.dbUpdate(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(docKey(doc.URL), b))
	})
	if err != nil {
		return fmt.Errorf("%w: put %s: %w", utils.ErrDatabase, doc.URL, err)
	}
	return nil
}

// Get returns the stored document for url, or (nil, false, nil) when absent
func (s *BadgerSink) Get(url string) (*models.Document, bool, error) {
	var doc *models.Document
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(docKey(url))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var d models.Document
			if err := json.Unmarshal(val, &d); err != nil {
				return fmt.Errorf("%w: %w", utils.ErrParsing, err)
			}
			doc = &d
			return nil
		})
	})
	if err != nil {
		return nil, false, fmt.Errorf("%w: get %s: %w", utils.ErrDatabase, url, err)
	}
	return doc, doc != nil, nil
}

// Count returns the number of stored documents
func (s *BadgerSink) Count() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(docKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// RunGC runs value log garbage collection every interval until ctx is done
func (s *BadgerSink) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.CollectGarbage()
		case <-ctx.Done():
			s.log.Debugf("Stopping index GC: %v", ctx.Err())
			return
		}
	}
}

// CollectGarbage runs value log GC until nothing is left to rewrite
func (s *BadgerSink) CollectGarbage() {
	if s.db == nil || s.db.IsClosed() {
		return
	}
	var err error
	for {
		if err = s.db.RunValueLogGC(0.5); err != nil {
			break
		}
	}
	if !errors.Is(err, badger.ErrNoRewrite) {
		s.log.Errorf("BadgerDB GC error: %v", err)
	}
}

// Close implements IndexSink
func (s *BadgerSink) Close() error {
	if s.db == nil || s.db.IsClosed() {
		return nil
	}
	if err := s.db.Close(); err != nil {
		s.log.Errorf("Error closing document index: %v", err)
		return err
	}
	return nil
}
