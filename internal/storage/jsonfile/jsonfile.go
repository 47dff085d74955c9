// Package jsonfile keeps subscriptions as a single JSON array on disk, the
// layout used by the original site's data/subscriptions.json.
//
// Every write rewrites the whole file. The mutex serialises writers inside
// one process only; two processes sharing the file still race with
// last-writer-wins on the whole collection. Use the bolt or sqlite driver
// when that matters.
package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/indeavr/znainik/internal/model"
	"github.com/indeavr/znainik/internal/storage"
)

var _ storage.SubscriptionStore = (*Store)(nil)

// Store is a whole-file JSON subscription store.
type Store struct {
	mu       sync.Mutex
	filePath string
}

// New returns a store backed by filePath. The file is created on first write.
func New(filePath string) *Store {
	return &Store{filePath: filePath}
}

// Close is a no-op; the file is not held open.
func (s *Store) Close() error {
	return nil
}

// UpsertSubscription replaces the record with the same endpoint or appends it.
func (s *Store) UpsertSubscription(ctx context.Context, sub model.PushSubscription) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sub.Endpoint = strings.TrimSpace(sub.Endpoint)
	if sub.Endpoint == "" {
		return storage.ErrInvalidSubscription
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	subs := s.read()
	replaced := false
	for i := range subs {
		if subs[i].Endpoint == sub.Endpoint {
			subs[i] = sub
			replaced = true
			break
		}
	}
	if !replaced {
		subs = append(subs, sub)
	}
	return s.write(subs)
}

// RemoveSubscription filters out the record for endpoint.
func (s *Store) RemoveSubscription(ctx context.Context, endpoint string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return storage.ErrInvalidSubscription
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.filePath); os.IsNotExist(err) {
		return nil
	}
	subs := s.read()
	kept := subs[:0]
	for _, sub := range subs {
		if sub.Endpoint != endpoint {
			kept = append(kept, sub)
		}
	}
	if len(kept) == len(subs) {
		return nil
	}
	return s.write(kept)
}

// ListSubscriptions returns the file contents; missing or corrupt files read as empty.
func (s *Store) ListSubscriptions(ctx context.Context) ([]model.PushSubscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(), nil
}

// PruneSubscriptions drops the given records when their keys are unchanged.
func (s *Store) PruneSubscriptions(ctx context.Context, dead []model.PushSubscription) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	drop := make(map[string]model.PushSubscription, len(dead))
	for _, sub := range dead {
		drop[sub.Endpoint] = sub
	}
	subs := s.read()
	kept := make([]model.PushSubscription, 0, len(subs))
	for _, sub := range subs {
		if d, ok := drop[sub.Endpoint]; ok && d.SameKeys(sub) {
			continue
		}
		kept = append(kept, sub)
	}
	removed := len(subs) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	if err := s.write(kept); err != nil {
		return 0, err
	}
	return removed, nil
}

func (s *Store) read() []model.PushSubscription {
	data, err := os.ReadFile(s.filePath)
	if err != nil || len(data) == 0 {
		return []model.PushSubscription{}
	}
	var subs []model.PushSubscription
	if err := json.Unmarshal(data, &subs); err != nil {
		return []model.PushSubscription{}
	}
	return subs
}

func (s *Store) write(subs []model.PushSubscription) error {
	data, err := json.MarshalIndent(subs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal subscriptions: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o755); err != nil {
		return fmt.Errorf("create storage directory: %w", err)
	}
	tmp := s.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write subscriptions: %w", err)
	}
	if err := os.Rename(tmp, s.filePath); err != nil {
		return fmt.Errorf("replace subscriptions: %w", err)
	}
	return nil
}
