// Package storage provides persistent storage for aggregated datasets and
// training history. It uses BoltDB as the underlying storage engine.
//
// Events are keyed by an order-preserving encoding of their signed id, so a
// cursor walk returns them sorted by event id.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"muonfit/internal/dataset"

	"go.etcd.io/bbolt"
)

const (
	eventsBucket  = "events"  // Aggregated events keyed by event id
	metaBucket    = "meta"    // Dataset count and aggregation stats
	historyBucket = "history" // Loss history keyed by run id

	dbFile = "muonfit-data.db"

	countKey = "count"
	statsKey = "stats"
)

// ErrNoDataset is returned when the store holds no aggregated dataset.
var ErrNoDataset = errors.New("no dataset stored")

// Store provides persistent storage for aggregated events using BoltDB.
type Store struct {
	db *bbolt.DB
}

// New creates a new storage instance in dataPath.
// It opens the BoltDB database and creates the buckets.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, dbFile)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{eventsBucket, metaBucket, historyBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database. Closing twice is not an error.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// PutEvents replaces the stored dataset with events in one transaction and
// records the event count and stats alongside.
func (s *Store) PutEvents(events []dataset.AggregatedEvent, stats dataset.AggregateStats) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket([]byte(eventsBucket)); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return fmt.Errorf("clear events bucket: %w", err)
		}
		b, err := tx.CreateBucket([]byte(eventsBucket))
		if err != nil {
			return fmt.Errorf("create events bucket: %w", err)
		}

		for _, ev := range events {
			data, err := json.Marshal(ev)
			if err != nil {
				return fmt.Errorf("marshal event %d: %w", ev.EventID, err)
			}
			if err := b.Put(eventKey(ev.EventID), data); err != nil {
				return fmt.Errorf("put event %d: %w", ev.EventID, err)
			}
		}

		meta := tx.Bucket([]byte(metaBucket))
		count := make([]byte, 8)
		binary.BigEndian.PutUint64(count, uint64(len(events)))
		if err := meta.Put([]byte(countKey), count); err != nil {
			return fmt.Errorf("put event count: %w", err)
		}

		data, err := json.Marshal(stats)
		if err != nil {
			return fmt.Errorf("marshal stats: %w", err)
		}
		return meta.Put([]byte(statsKey), data)
	})
}

// Events returns every stored event ordered by event id.
func (s *Store) Events() ([]dataset.AggregatedEvent, error) {
	var events []dataset.AggregatedEvent

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(eventsBucket)).ForEach(func(k, v []byte) error {
			var ev dataset.AggregatedEvent
			if err := json.Unmarshal(v, &ev); err != nil {
				return fmt.Errorf("unmarshal event %d: %w", decodeEventKey(k), err)
			}
			events = append(events, ev)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// EventCount returns the number of events recorded by the last PutEvents.
func (s *Store) EventCount() (int, error) {
	var count int
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(metaBucket)).Get([]byte(countKey))
		if v == nil {
			return ErrNoDataset
		}
		count = int(binary.BigEndian.Uint64(v))
		return nil
	})
	return count, err
}

// Stats returns the aggregation stats recorded by the last PutEvents.
func (s *Store) Stats() (dataset.AggregateStats, error) {
	var stats dataset.AggregateStats
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(metaBucket)).Get([]byte(statsKey))
		if v == nil {
			return ErrNoDataset
		}
		return json.Unmarshal(v, &stats)
	})
	return stats, err
}

// eventKey flips the sign bit so that big-endian byte order matches signed
// integer order.
func eventKey(id int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(id)^(1<<63))
	return key
}

func decodeEventKey(key []byte) int64 {
	return int64(binary.BigEndian.Uint64(key) ^ (1 << 63))
}
