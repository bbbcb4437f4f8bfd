// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"slices"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// DefaultBatchSize is the number of messages read per queue batch.
const DefaultBatchSize = 50

// Queue holds messages until they are delivered or dropped. Messages are
// returned oldest first.
type Queue interface {
	Enqueue(m Message) error
	// Batch returns up to limit messages without removing them.
	Batch(limit int) ([]Message, error)
	// Update replaces a queued message. It is a no-op if the message was removed.
	Update(m Message) error
	Remove(id ulid.ULID) error
	Size() (int, error)
	Close() error
}

// MemoryQueue is a Queue that lives only as long as the process.
type MemoryQueue struct {
	mu       sync.Mutex
	messages []Message
	closed   bool
}

// NewMemoryQueue creates an empty MemoryQueue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

// Enqueue inserts m in ID order.
func (q *MemoryQueue) Enqueue(m Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return errQueueClosed()
	}
	i, found := slices.BinarySearchFunc(q.messages, m.ID, func(e Message, id ulid.ULID) int {
		return e.ID.Compare(id)
	})
	if found {
		q.messages[i] = m
		return nil
	}
	q.messages = slices.Insert(q.messages, i, m)
	return nil
}

// Batch returns up to limit of the oldest messages.
func (q *MemoryQueue) Batch(limit int) ([]Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, errQueueClosed()
	}
	if limit <= 0 {
		limit = DefaultBatchSize
	}
	return slices.Clone(q.messages[:min(limit, len(q.messages))]), nil
}

// Update replaces the message with the same ID.
func (q *MemoryQueue) Update(m Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return errQueueClosed()
	}
	if i := q.index(m.ID); i >= 0 {
		q.messages[i] = m
	}
	return nil
}

// Remove deletes the message with id.
func (q *MemoryQueue) Remove(id ulid.ULID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return errQueueClosed()
	}
	if i := q.index(id); i >= 0 {
		q.messages = slices.Delete(q.messages, i, i+1)
	}
	return nil
}

// Size returns the number of queued messages.
func (q *MemoryQueue) Size() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages), nil
}

// Close discards the queue. Later calls other than Size fail.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}

func (q *MemoryQueue) index(id ulid.ULID) int {
	return slices.IndexFunc(q.messages, func(m Message) bool { return m.ID == id })
}

func errQueueClosed() error {
	return oops.Code("QUEUE_CLOSED").Errorf("notification queue is closed")
}

var _ Queue = (*MemoryQueue)(nil)
