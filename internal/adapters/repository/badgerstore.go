package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/deborabastos/esplanada-ratings/internal/domain/model"
	"github.com/deborabastos/esplanada-ratings/pkg/metrics"
)

// Key prefixes for BadgerDB storage.
const (
	recordKeyPrefix  = "record:"
	activeKeyPrefix  = "active:"
	subjectKeyPrefix = "subject:"
	orderKeyPrefix   = "order:"
)

// writeRetries bounds retries on transaction conflicts. Anything beyond
// that surfaces to the caller as a storage failure; the caller owns
// backoff so the rate limiter's accounting stays truthful.
const writeRetries = 2

// BadgerStore implements Store on BadgerDB. Durable on disk by default;
// in-memory mode serves tests and throwaway runs.
type BadgerStore struct {
	db    *badger.DB
	count atomic.Int64
}

// NewBadgerStore opens the store. An empty dir selects in-memory mode.
func NewBadgerStore(opts ...Option) (*BadgerStore, error) {
	cfg := storeConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	bopts := badger.DefaultOptions(cfg.dir).WithLogger(nil)
	if cfg.dir == "" {
		bopts = bopts.WithInMemory(true)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	s := &BadgerStore{db: db}
	if err := s.initCount(); err != nil {
		_ = db.Close()
		return nil, err
	}
	metrics.UpdateRecordsTotal(int(s.count.Load()))
	return s, nil
}

// initCount scans active record keys once at open.
func (s *BadgerStore) initCount() error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(recordKeyPrefix)})
		defer it.Close()
		var n int64
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		s.count.Store(n)
		return nil
	})
}

// Put stores a new active record.
func (s *BadgerStore) Put(ctx context.Context, rec model.Record) error {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryWriteLatency(float64(time.Since(start).Milliseconds()))
	}()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	activeKey := []byte(activeKeyPrefix + rec.SubjectID + ":" + rec.Identity)
	orderKey := []byte(fmt.Sprintf("%s%s:%019d:%s", orderKeyPrefix, rec.SubjectID, rec.AcceptedAt.UnixNano(), rec.ID))

	err = s.update(ctx, func(txn *badger.Txn) error {
		if _, err := txn.Get(activeKey); err == nil {
			return ErrActiveExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("active index check: %w", err)
		}
		if err := txn.Set([]byte(recordKeyPrefix+rec.ID), data); err != nil {
			return fmt.Errorf("set record: %w", err)
		}
		if err := txn.Set(activeKey, []byte(rec.ID)); err != nil {
			return fmt.Errorf("set active index: %w", err)
		}
		if err := txn.Set(orderKey, []byte(rec.ID)); err != nil {
			return fmt.Errorf("set order index: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	metrics.UpdateRecordsTotal(int(s.count.Add(1)))
	return nil
}

// Replace swaps the active record in place, keeping its id.
func (s *BadgerStore) Replace(ctx context.Context, rec model.Record) error {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryWriteLatency(float64(time.Since(start).Milliseconds()))
	}()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	return s.update(ctx, func(txn *badger.Txn) error {
		key := []byte(recordKeyPrefix + rec.ID)
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("get record: %w", err)
		}
		// Active and order indexes are keyed by subject/identity/id, all
		// unchanged on an in-place replace.
		return txn.Set(key, data)
	})
}

// Active returns the active record for (identity, subject).
func (s *BadgerStore) Active(ctx context.Context, identityDigest, subjectID string) (model.Record, bool, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryReadLatency(float64(time.Since(start).Milliseconds()))
	}()

	var rec model.Record
	found := false

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(activeKeyPrefix + subjectID + ":" + identityDigest))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get active index: %w", err)
		}

		var id string
		if err := item.Value(func(val []byte) error {
			id = string(val)
			return nil
		}); err != nil {
			return err
		}

		rec, err = getRecord(txn, id)
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		metrics.RecordRepositoryError()
		return model.Record{}, false, err
	}
	return rec, found, nil
}

// Get returns a record by id.
func (s *BadgerStore) Get(ctx context.Context, id string) (model.Record, error) {
	var rec model.Record
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = getRecord(txn, id)
		return err
	})
	if err != nil {
		return model.Record{}, err
	}
	return rec, nil
}

// SubjectScores returns the subject's current scores in first
// acceptance order.
func (s *BadgerStore) SubjectScores(ctx context.Context, subjectID string) ([]int, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryReadLatency(float64(time.Since(start).Milliseconds()))
	}()

	var scores []int
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(orderKeyPrefix + subjectID + ":")
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var id string
			if err := it.Item().Value(func(val []byte) error {
				id = string(val)
				return nil
			}); err != nil {
				return err
			}
			rec, err := getRecord(txn, id)
			if err != nil {
				return err
			}
			scores = append(scores, rec.Score)
		}
		return nil
	})
	if err != nil {
		metrics.RecordRepositoryError()
		return nil, err
	}
	return scores, nil
}

// EnsureSubject registers a subject if it is not yet known.
func (s *BadgerStore) EnsureSubject(ctx context.Context, sub model.Subject) error {
	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("marshal subject: %w", err)
	}

	return s.update(ctx, func(txn *badger.Txn) error {
		key := []byte(subjectKeyPrefix + sub.ID)
		if _, err := txn.Get(key); err == nil {
			return nil // first registration wins
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("get subject: %w", err)
		}
		return txn.Set(key, data)
	})
}

// SubjectCreatedAt returns when a subject was registered.
func (s *BadgerStore) SubjectCreatedAt(ctx context.Context, subjectID string) (time.Time, bool, error) {
	var sub model.Subject
	found := false

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(subjectKeyPrefix + subjectID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get subject: %w", err)
		}
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &sub)
		}); err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return time.Time{}, false, err
	}
	return sub.CreatedAt, found, nil
}

// Subjects returns every registered subject.
func (s *BadgerStore) Subjects(ctx context.Context) ([]model.Subject, error) {
	var subs []model.Subject
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(subjectKeyPrefix), PrefetchValues: true})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var sub model.Subject
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &sub)
			}); err != nil {
				return err
			}
			subs = append(subs, sub)
		}
		return nil
	})
	if err != nil {
		metrics.RecordRepositoryError()
		return nil, err
	}
	return subs, nil
}

// Count returns the number of active rating records.
func (s *BadgerStore) Count(ctx context.Context) int {
	return int(s.count.Load())
}

// Close releases the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// update runs a write transaction with bounded conflict retries.
func (s *BadgerStore) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt <= writeRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	if err != nil && !errors.Is(err, ErrActiveExists) && !errors.Is(err, ErrNotFound) {
		metrics.RecordRepositoryError()
	}
	return err
}

// getRecord reads and unmarshals one record inside a transaction.
func getRecord(txn *badger.Txn, id string) (model.Record, error) {
	var rec model.Record
	item, err := txn.Get([]byte(recordKeyPrefix + id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return model.Record{}, ErrNotFound
	}
	if err != nil {
		return model.Record{}, fmt.Errorf("get record: %w", err)
	}
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	}); err != nil {
		return model.Record{}, err
	}
	return rec, nil
}
