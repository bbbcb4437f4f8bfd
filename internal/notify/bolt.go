// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"encoding/json"
	"path/filepath"
	"slices"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	bolt "go.etcd.io/bbolt"

	"github.com/holomush/taskcrusher/internal/xdg"
)

// DefaultBucket is the bbolt bucket used when none is given.
const DefaultBucket = "notifications"

// BoltQueue is a Queue persisted in a bbolt file, so undelivered messages
// survive restarts. Keys are message IDs, which sort by creation time.
type BoltQueue struct {
	db     *bolt.DB
	bucket []byte
}

// OpenBoltQueue opens or creates the queue file at path.
func OpenBoltQueue(path, bucket string) (*BoltQueue, error) {
	if path == "" {
		return nil, oops.Code("QUEUE_OPEN_FAILED").Errorf("queue path is required")
	}
	if bucket == "" {
		bucket = DefaultBucket
	}
	if err := xdg.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, oops.Code("QUEUE_OPEN_FAILED").With("path", path).Wrap(err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, oops.Code("QUEUE_OPEN_FAILED").With("path", path).Wrap(err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err //nolint:wrapcheck // wrapped below
	}); err != nil {
		_ = db.Close()
		return nil, oops.Code("QUEUE_OPEN_FAILED").With("path", path).With("bucket", bucket).Wrap(err)
	}
	return &BoltQueue{db: db, bucket: []byte(bucket)}, nil
}

// Enqueue stores m.
func (q *BoltQueue) Enqueue(m Message) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return oops.Code("QUEUE_WRITE_FAILED").With("message_id", m.ID.String()).Wrap(err)
	}
	err = q.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(q.bucket).Put(key(m.ID), payload)
	})
	if err != nil {
		return oops.Code("QUEUE_WRITE_FAILED").With("message_id", m.ID.String()).Wrap(err)
	}
	return nil
}

// Batch returns up to limit of the oldest messages. Entries that no longer
// decode are deleted.
func (q *BoltQueue) Batch(limit int) ([]Message, error) {
	if limit <= 0 {
		limit = DefaultBatchSize
	}
	var out []Message
	err := q.db.Update(func(tx *bolt.Tx) error {
		c := tx.Bucket(q.bucket).Cursor()
		for k, v := c.First(); k != nil && len(out) < limit; {
			var m Message
			if err := json.Unmarshal(v, &m); err != nil {
				seek := slices.Clone(k)
				if err := c.Delete(); err != nil {
					return err //nolint:wrapcheck // wrapped below
				}
				k, v = c.Seek(seek)
				continue
			}
			out = append(out, m)
			k, v = c.Next()
		}
		return nil
	})
	if err != nil {
		return nil, oops.Code("QUEUE_READ_FAILED").Wrap(err)
	}
	return out, nil
}

// Update replaces the stored message with the same ID.
func (q *BoltQueue) Update(m Message) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return oops.Code("QUEUE_WRITE_FAILED").With("message_id", m.ID.String()).Wrap(err)
	}
	err = q.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(q.bucket)
		if b.Get(key(m.ID)) == nil {
			return nil
		}
		return b.Put(key(m.ID), payload)
	})
	if err != nil {
		return oops.Code("QUEUE_WRITE_FAILED").With("message_id", m.ID.String()).Wrap(err)
	}
	return nil
}

// Remove deletes the message with id.
func (q *BoltQueue) Remove(id ulid.ULID) error {
	err := q.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(q.bucket).Delete(key(id))
	})
	if err != nil {
		return oops.Code("QUEUE_WRITE_FAILED").With("message_id", id.String()).Wrap(err)
	}
	return nil
}

// Size returns the number of stored messages.
func (q *BoltQueue) Size() (int, error) {
	var n int
	err := q.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(q.bucket).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, oops.Code("QUEUE_READ_FAILED").Wrap(err)
	}
	return n, nil
}

// Close closes the bbolt file.
func (q *BoltQueue) Close() error {
	if err := q.db.Close(); err != nil {
		return oops.Code("QUEUE_CLOSE_FAILED").Wrap(err)
	}
	return nil
}

func key(id ulid.ULID) []byte {
	return []byte(id.String())
}

var _ Queue = (*BoltQueue)(nil)
