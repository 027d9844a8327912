// Package bolt provides an EventStore backed by a BoltDB file
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/kode4food/dispatch"
)

type (
	// Store is an EventStore that keeps events in a BoltDB file. Events are
	// keyed by a monotonically increasing sequence, so a cursor scan
	// yields insertion order
	Store struct {
		db *bbolt.DB
	}
)

const (
	eventsBucket   = "events"
	eventIDsBucket = "event_ids"

	DefaultOpenTimeout = time.Second
)

var (
	// ErrPathRequired indicates an empty database path
	ErrPathRequired = errors.New("storage path is required")

	// ErrBucketMissing indicates the database was not initialized
	ErrBucketMissing = errors.New("event bucket is missing")
)

var _ dispatch.EventStore = (*Store)(nil)

// Open opens (creating if needed) a BoltDB-backed Store at path
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrPathRequired
	}

	db, err := bbolt.Open(
		filepath.Clean(path), 0o600,
		&bbolt.Options{Timeout: DefaultOpenTimeout},
	)
	if err != nil {
		return nil, fmt.Errorf("open event db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{eventsBucket, eventIDsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append stores evs as one transaction
func (s *Store) Append(
	ctx context.Context, evs ...*dispatch.Event,
) ([]*dispatch.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(evs) == 0 {
		return evs, nil
	}
	if err := dispatch.CheckBatch(evs); err != nil {
		return nil, err
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		events := tx.Bucket([]byte(eventsBucket))
		ids := tx.Bucket([]byte(eventIDsBucket))
		if events == nil || ids == nil {
			return ErrBucketMissing
		}

		for _, ev := range evs {
			if ids.Get([]byte(ev.ID)) != nil {
				return &dispatch.DuplicateEventError{ID: ev.ID}
			}
		}

		for _, ev := range evs {
			seq, err := events.NextSequence()
			if err != nil {
				return err
			}
			data, err := json.Marshal(ev)
			if err != nil {
				return fmt.Errorf("marshal event: %w", err)
			}
			key := sequenceKey(seq)
			if err := events.Put(key, data); err != nil {
				return err
			}
			if err := ids.Put([]byte(ev.ID), key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return evs, nil
}

// Query returns the stored events matching q
func (s *Store) Query(
	ctx context.Context, q dispatch.EventQuery,
) ([]*dispatch.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	matched := []*dispatch.Event{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		events := tx.Bucket([]byte(eventsBucket))
		if events == nil {
			return ErrBucketMissing
		}

		c := events.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			ev := &dispatch.Event{}
			if err := json.Unmarshal(v, ev); err != nil {
				return fmt.Errorf("decode event %d: %w", sequenceOf(k), err)
			}
			if q.Matches(ev) {
				matched = append(matched, ev)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	start, end := q.Window(len(matched))
	return matched[start:end], nil
}

func sequenceKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

func sequenceOf(key []byte) uint64 {
	if len(key) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(key)
}
