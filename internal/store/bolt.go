package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Neol00/ClockSpeeds/internal/domain"
	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

const (
	BucketTopology = "topology" // key: "current" -> topology JSON
	BucketApplied  = "applied"  // key: "current" -> AppliedSettings JSON
	BucketHistory  = "history"  // key: sequence -> AppliedRecord JSON
)

const currentKey = "current"

const maxHistory = 250

const lockTimeout = 2 * time.Second

var ErrBucketNotFound = errors.New("bucket not found")

// Store keeps the database file closed between transactions so several
// processes (a running monitor or server plus one-shot commands) can share
// it. Reads take bbolt's shared lock, writes the exclusive one.
type Store struct {
	path string
	mu   sync.RWMutex
}

// DefaultPath resolves $XDG_CACHE_HOME/ClockSpeeds/clockspeeds.db.
func DefaultPath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("resolve cache dir: %w", err)
	}
	return filepath.Join(dir, "ClockSpeeds", "clockspeeds.db"), nil
}

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	s := &Store{path: path}
	if err := s.update(func(tx *bbolt.Tx) error {
		for _, name := range []string{BucketTopology, BucketApplied, BucketHistory} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) view(fn func(*bbolt.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	db, err := bbolt.Open(s.path, 0o600, &bbolt.Options{Timeout: lockTimeout, ReadOnly: true})
	if err != nil {
		return fmt.Errorf("open %s: %w", s.path, err)
	}
	defer db.Close()
	return db.View(fn)
}

func (s *Store) update(fn func(*bbolt.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, err := bbolt.Open(s.path, 0o600, &bbolt.Options{Timeout: lockTimeout})
	if err != nil {
		return fmt.Errorf("open %s: %w", s.path, err)
	}
	if err := db.Update(fn); err != nil {
		_ = db.Close()
		return err
	}
	return db.Close()
}

// GetJSON decodes bucket/key into v. It reports false when the key is absent.
func (s *Store) GetJSON(bucket, key string, v any) (bool, error) {
	var found bool
	err := s.view(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("%w: %s", ErrBucketNotFound, bucket)
		}
		data := b.Get([]byte(key))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, v)
	})
	return found, err
}

func (s *Store) PutJSON(bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("%w: %s", ErrBucketNotFound, bucket)
		}
		return b.Put([]byte(key), data)
	})
}

func (s *Store) Delete(bucket, key string) error {
	return s.update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("%w: %s", ErrBucketNotFound, bucket)
		}
		return b.Delete([]byte(key))
	})
}

func (s *Store) Applied() (domain.AppliedSettings, error) {
	var applied domain.AppliedSettings
	if _, err := s.GetJSON(BucketApplied, currentKey, &applied); err != nil {
		return domain.AppliedSettings{}, err
	}
	return applied, nil
}

// Record applies update to the stored settings and appends the result to the
// history bucket in one transaction.
func (s *Store) Record(control string, update func(*domain.AppliedSettings)) (domain.AppliedSettings, error) {
	var result domain.AppliedSettings
	err := s.update(func(tx *bbolt.Tx) error {
		applied := tx.Bucket([]byte(BucketApplied))
		history := tx.Bucket([]byte(BucketHistory))

		if data := applied.Get([]byte(currentKey)); data != nil {
			if err := json.Unmarshal(data, &result); err != nil {
				return err
			}
		}
		update(&result)
		result.UpdatedAt = time.Now().UTC()

		data, err := json.Marshal(&result)
		if err != nil {
			return err
		}
		if err := applied.Put([]byte(currentKey), data); err != nil {
			return err
		}

		record := domain.AppliedRecord{
			ID:       uuid.New().String(),
			Time:     result.UpdatedAt,
			Control:  control,
			Settings: result,
		}
		recordData, err := json.Marshal(&record)
		if err != nil {
			return err
		}
		seq, err := history.NextSequence()
		if err != nil {
			return err
		}
		if err := history.Put(sequenceKey(seq), recordData); err != nil {
			return err
		}
		return trimHistory(history, maxHistory)
	})
	return result, err
}

// ClearApplied forgets the current settings; history is kept.
func (s *Store) ClearApplied() error {
	return s.Delete(BucketApplied, currentKey)
}

// History returns up to n records, newest first.
func (s *Store) History(n int) ([]domain.AppliedRecord, error) {
	records := []domain.AppliedRecord{}
	if n <= 0 {
		return records, nil
	}
	err := s.view(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(BucketHistory)).Cursor()
		for k, v := c.Last(); k != nil && len(records) < n; k, v = c.Prev() {
			var record domain.AppliedRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			records = append(records, record)
		}
		return nil
	})
	return records, err
}

func trimHistory(b *bbolt.Bucket, keep int) error {
	var keys [][]byte
	c := b.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		keys = append(keys, append([]byte(nil), k...))
	}
	if len(keys) <= keep {
		return nil
	}
	for _, k := range keys[:len(keys)-keep] {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func sequenceKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
