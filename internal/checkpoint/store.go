package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Checkpoint records the last successfully processed position in one
// partition. Offset is the transport's opaque position string; SequenceNumber
// is the monotonically increasing per-partition counter used for ordering
// comparisons.
type Checkpoint struct {
	Offset         string `json:"offset"`
	SequenceNumber int64  `json:"sequence_number"`
}

// Identity names the stream a set of checkpoints belongs to. Checkpoints for
// different identities never collide even in a shared store file.
type Identity struct {
	Namespace     string
	Stream        string
	ConsumerGroup string
}

func (id Identity) bucketName() []byte {
	return []byte(fmt.Sprintf("%s|%s|%s", id.Namespace, id.Stream, id.ConsumerGroup))
}

// Store is a durable per-partition checkpoint store backed by a local bbolt
// file. Safe for concurrent use across partitions; a single partition is only
// ever written by its own consumer worker.
type Store struct {
	db       *bolt.DB
	identity Identity
}

// Open opens (creating if necessary) the checkpoint store at path
func Open(path string, identity Identity) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(identity.bucketName())
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize checkpoint bucket: %w", err)
	}

	return &Store{db: db, identity: identity}, nil
}

// Get returns the checkpoint for a partition. A missing checkpoint is not an
// error; ok is false and the consumer starts from its configured default.
func (s *Store) Get(partition int) (Checkpoint, bool, error) {
	var cp Checkpoint
	var found bool

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(s.identity.bucketName())
		if bucket == nil {
			return nil
		}
		raw := bucket.Get(partitionKey(partition))
		if raw == nil {
			return nil
		}
		if err := json.Unmarshal(raw, &cp); err != nil {
			return fmt.Errorf("corrupt checkpoint record: %w", err)
		}
		found = true
		return nil
	})
	if err != nil {
		return Checkpoint{}, false, err
	}
	return cp, found, nil
}

// Save persists the checkpoint for a partition. A checkpoint is only ever
// overwritten with an equal-or-later position; a save that would rewind
// committed progress is ignored.
func (s *Store) Save(partition int, cp Checkpoint) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(s.identity.bucketName())
		if err != nil {
			return err
		}

		key := partitionKey(partition)
		if raw := bucket.Get(key); raw != nil {
			var existing Checkpoint
			if err := json.Unmarshal(raw, &existing); err == nil && existing.SequenceNumber > cp.SequenceNumber {
				return nil
			}
		}

		encoded, err := json.Marshal(cp)
		if err != nil {
			return err
		}
		return bucket.Put(key, encoded)
	})
}

// Reset overwrites the checkpoint for a partition unconditionally. Operator
// use only: skipping a backlog means writing a position far ahead of (or
// behind) the committed one.
func (s *Store) Reset(partition int, cp Checkpoint) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(s.identity.bucketName())
		if err != nil {
			return err
		}
		encoded, err := json.Marshal(cp)
		if err != nil {
			return err
		}
		return bucket.Put(partitionKey(partition), encoded)
	})
}

// Delete removes the checkpoint for a partition, causing the consumer to
// start from its configured default position on next start
func (s *Store) Delete(partition int) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(s.identity.bucketName())
		if bucket == nil {
			return nil
		}
		return bucket.Delete(partitionKey(partition))
	})
}

// All returns every saved checkpoint keyed by partition
func (s *Store) All() (map[int]Checkpoint, error) {
	result := make(map[int]Checkpoint)

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(s.identity.bucketName())
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			partition, err := strconv.Atoi(string(k))
			if err != nil {
				return fmt.Errorf("corrupt checkpoint key %q: %w", k, err)
			}
			var cp Checkpoint
			if err := json.Unmarshal(v, &cp); err != nil {
				return fmt.Errorf("corrupt checkpoint record for partition %d: %w", partition, err)
			}
			result[partition] = cp
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteAll removes every checkpoint for this store's identity
func (s *Store) DeleteAll() (int, error) {
	count := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(s.identity.bucketName())
		if bucket == nil {
			return nil
		}
		keys := [][]byte{}
		if err := bucket.ForEach(func(k, _ []byte) error {
			keys = append(keys, append([]byte(nil), k...))
			return nil
		}); err != nil {
			return err
		}
		for _, k := range keys {
			if err := bucket.Delete(k); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Close closes the underlying store file
func (s *Store) Close() error {
	return s.db.Close()
}

func partitionKey(partition int) []byte {
	return []byte(strconv.Itoa(partition))
}
