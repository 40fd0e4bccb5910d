package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketMessages = []byte("sandbox_messages")
	bucketIndex    = []byte("sandbox_index")
)

// ErrNotFound is returned by Get when no captured message has the id
var ErrNotFound = errors.New("message not found")

// Message is a test email captured by the sandbox
type Message struct {
	ID           string    `json:"id"`
	From         string    `json:"from"`
	To           []string  `json:"to"`
	Subject      string    `json:"subject"`
	Body         string    `json:"body,omitempty"`
	Data         []byte    `json:"data,omitempty"`
	Domain       string    `json:"domain"` // recipient domain
	Mode         string    `json:"mode"`
	CapturedAt   time.Time `json:"captured_at"`
	SimulatedErr string    `json:"simulated_error,omitempty"`
}

// Storage keeps captured messages in two buckets: messages keyed by
// capture time (for newest-first listing) and an id -> key index.
type Storage struct {
	db *bolt.DB
}

// NewStorage creates the sandbox buckets if needed
func NewStorage(db *bolt.DB) (*Storage, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketMessages, bucketIndex} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sandbox buckets: %w", err)
	}

	return &Storage{db: db}, nil
}

// NewReadOnlyStorage wraps a database opened read-only. The buckets are not
// created; an empty database reads as an empty sandbox.
func NewReadOnlyStorage(db *bolt.DB) *Storage {
	return &Storage{db: db}
}

// Save stores a captured message
func (s *Storage) Save(ctx context.Context, msg *Message) error {
	if msg.ID == "" {
		return fmt.Errorf("message id is required")
	}
	if msg.CapturedAt.IsZero() {
		msg.CapturedAt = time.Now()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		messages := tx.Bucket(bucketMessages)
		index := tx.Bucket(bucketIndex)

		// Saving the same id twice replaces the earlier capture.
		if old := index.Get([]byte(msg.ID)); old != nil {
			if err := messages.Delete(old); err != nil {
				return err
			}
		}

		key := makeIndexKey(msg.CapturedAt, msg.ID)
		if err := messages.Put(key, data); err != nil {
			return err
		}
		return index.Put([]byte(msg.ID), key)
	})
}

// Get returns a captured message by id, or ErrNotFound
func (s *Storage) Get(ctx context.Context, id string) (*Message, error) {
	var msg *Message

	err := s.db.View(func(tx *bolt.Tx) error {
		index := tx.Bucket(bucketIndex)
		if index == nil {
			return nil
		}
		key := index.Get([]byte(id))
		if key == nil {
			return nil
		}
		v := tx.Bucket(bucketMessages).Get(key)
		if v == nil {
			return nil
		}
		var m Message
		if err := json.Unmarshal(v, &m); err != nil {
			return fmt.Errorf("failed to unmarshal message: %w", err)
		}
		msg = &m
		return nil
	})
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, ErrNotFound
	}
	return msg, nil
}

// ListFilter contains filters for listing messages
type ListFilter struct {
	Domain string
	Mode   string
	To     string
	Limit  int
	Offset int
}

// List returns messages matching the filter, newest first, without raw data
func (s *Storage) List(ctx context.Context, filter ListFilter) ([]*Message, error) {
	messages := []*Message{}

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketMessages)
		if bucket == nil {
			return nil
		}
		c := bucket.Cursor()

		skipped := 0
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var msg Message
			if err := json.Unmarshal(v, &msg); err != nil {
				continue
			}

			if !filter.match(&msg) {
				continue
			}

			if skipped < filter.Offset {
				skipped++
				continue
			}

			msg.Data = nil
			messages = append(messages, &msg)

			if filter.Limit > 0 && len(messages) >= filter.Limit {
				break
			}
		}
		return nil
	})

	return messages, err
}

func (f ListFilter) match(msg *Message) bool {
	if f.Domain != "" && msg.Domain != f.Domain {
		return false
	}
	if f.Mode != "" && msg.Mode != f.Mode {
		return false
	}
	if f.To != "" {
		for _, to := range msg.To {
			if to == f.To {
				return true
			}
		}
		return false
	}
	return true
}

// Delete removes a message by id. Deleting an unknown id is not an error.
func (s *Storage) Delete(ctx context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		index := tx.Bucket(bucketIndex)
		key := index.Get([]byte(id))
		if key == nil {
			return nil
		}
		if err := tx.Bucket(bucketMessages).Delete(key); err != nil {
			return err
		}
		return index.Delete([]byte(id))
	})
}

// Clear removes messages, optionally only those for a recipient domain or
// captured longer than olderThan ago. Returns the number removed.
func (s *Storage) Clear(ctx context.Context, domain string, olderThan time.Duration) (int, error) {
	var count int
	cutoff := time.Now().Add(-olderThan)

	err := s.db.Update(func(tx *bolt.Tx) error {
		messages := tx.Bucket(bucketMessages)
		index := tx.Bucket(bucketIndex)

		type entry struct{ key, id []byte }
		var toDelete []entry

		c := messages.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var msg Message
			if err := json.Unmarshal(v, &msg); err != nil {
				continue
			}
			if domain != "" && msg.Domain != domain {
				continue
			}
			if olderThan > 0 && msg.CapturedAt.After(cutoff) {
				continue
			}
			toDelete = append(toDelete, entry{key: append([]byte(nil), k...), id: []byte(msg.ID)})
		}

		for _, e := range toDelete {
			if err := messages.Delete(e.key); err != nil {
				return err
			}
			if err := index.Delete(e.id); err != nil {
				return err
			}
			count++
		}
		return nil
	})

	return count, err
}

// Stats summarizes captured messages
type Stats struct {
	Total     int64            `json:"total"`
	ByDomain  map[string]int64 `json:"by_domain"`
	ByMode    map[string]int64 `json:"by_mode"`
	Failed    int64            `json:"failed"`
	OldestAt  time.Time        `json:"oldest_at,omitempty"`
	NewestAt  time.Time        `json:"newest_at,omitempty"`
	TotalSize int64            `json:"total_size"`
}

// Stats returns sandbox statistics
func (s *Storage) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		ByDomain: make(map[string]int64),
		ByMode:   make(map[string]int64),
	}

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketMessages)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			var msg Message
			if err := json.Unmarshal(v, &msg); err != nil {
				return nil
			}

			stats.Total++
			stats.TotalSize += int64(len(v))
			stats.ByDomain[msg.Domain]++
			stats.ByMode[msg.Mode]++
			if msg.SimulatedErr != "" {
				stats.Failed++
			}

			if stats.OldestAt.IsZero() || msg.CapturedAt.Before(stats.OldestAt) {
				stats.OldestAt = msg.CapturedAt
			}
			if msg.CapturedAt.After(stats.NewestAt) {
				stats.NewestAt = msg.CapturedAt
			}
			return nil
		})
	})

	return stats, err
}

func makeIndexKey(t time.Time, id string) []byte {
	return []byte(t.UTC().Format("2006-01-02T15:04:05.000000000Z") + ":" + id)
}
