package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/indeavr/znainik/internal/model"
	"github.com/indeavr/znainik/internal/storage"
	bolt "go.etcd.io/bbolt"
)

var (
	_ storage.SubscriptionStore = (*Store)(nil)
	_ storage.DispatchLogStore  = (*Store)(nil)
)

var (
	bucketSubscriptions = []byte("subscriptions")
	bucketDispatchLog   = []byte("dispatch_logs")
)

// record wraps a subscription with the sequence number that fixes its list position.
type record struct {
	Seq          uint64                 `json:"seq"`
	Subscription model.PushSubscription `json:"subscription"`
	CreatedAt    time.Time              `json:"createdAt"`
	UpdatedAt    time.Time              `json:"updatedAt"`
}

// Store is a BoltDB-backed subscription store. Every write touches a single
// key inside its own transaction, so concurrent subscribe and prune calls
// never overwrite each other's records.
type Store struct {
	db *bolt.DB
}

// New initialises the Bolt store.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketSubscriptions); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketDispatchLog)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes underlying Bolt DB.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertSubscription stores or replaces a subscription, keeping its original position.
func (s *Store) UpsertSubscription(ctx context.Context, sub model.PushSubscription) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sub.Endpoint = strings.TrimSpace(sub.Endpoint)
	if sub.Endpoint == "" {
		return storage.ErrInvalidSubscription
	}
	now := time.Now().UTC()
	return s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketSubscriptions)
		key := []byte(sub.Endpoint)
		rec := record{Subscription: sub, CreatedAt: now, UpdatedAt: now}
		if existing := bkt.Get(key); existing != nil {
			var prev record
			if err := json.Unmarshal(existing, &prev); err == nil {
				rec.Seq = prev.Seq
				rec.CreatedAt = prev.CreatedAt
			}
		}
		if rec.Seq == 0 {
			seq, err := bkt.NextSequence()
			if err != nil {
				return err
			}
			rec.Seq = seq
		}
		payload, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return bkt.Put(key, payload)
	})
}

// RemoveSubscription deletes the subscription for endpoint if present.
func (s *Store) RemoveSubscription(ctx context.Context, endpoint string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return storage.ErrInvalidSubscription
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSubscriptions).Delete([]byte(endpoint))
	})
}

// ListSubscriptions returns all subscriptions in insertion order.
// Records that fail to decode are skipped.
func (s *Store) ListSubscriptions(ctx context.Context) ([]model.PushSubscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var records []record
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSubscriptions).ForEach(func(_, v []byte) error {
			var rec record
			if err := json.Unmarshal(v, &rec); err != nil {
				return nil
			}
			records = append(records, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Seq < records[j].Seq
	})
	subs := make([]model.PushSubscription, 0, len(records))
	for _, rec := range records {
		subs = append(subs, rec.Subscription)
	}
	return subs, nil
}

// PruneSubscriptions removes subscriptions whose stored keys still match.
func (s *Store) PruneSubscriptions(ctx context.Context, subs []model.PushSubscription) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketSubscriptions)
		for _, sub := range subs {
			key := []byte(strings.TrimSpace(sub.Endpoint))
			existing := bkt.Get(key)
			if existing == nil {
				continue
			}
			var rec record
			if err := json.Unmarshal(existing, &rec); err == nil && !rec.Subscription.SameKeys(sub) {
				continue
			}
			if err := bkt.Delete(key); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// AppendDispatchLog stores a dispatch history entry.
func (s *Store) AppendDispatchLog(ctx context.Context, log *model.DispatchLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(log)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketDispatchLog)
		id, err := bkt.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, id)
		return bkt.Put(key, payload)
	})
}

// ListDispatchLogs returns all dispatch logs, oldest first.
func (s *Store) ListDispatchLogs(ctx context.Context) ([]*model.DispatchLog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var logs []*model.DispatchLog
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDispatchLog).ForEach(func(_, v []byte) error {
			var log model.DispatchLog
			if err := json.Unmarshal(v, &log); err != nil {
				return err
			}
			logs = append(logs, &log)
			return nil
		})
	})
	return logs, err
}
