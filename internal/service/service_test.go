package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/indeavr/znainik/internal/config"
	"github.com/indeavr/znainik/internal/model"
	"github.com/indeavr/znainik/internal/pushclient"
	"github.com/indeavr/znainik/internal/storage"
	"github.com/indeavr/znainik/internal/storage/bolt"
	"github.com/indeavr/znainik/internal/storage/jsonfile"
)

type fakeSender struct {
	mu       sync.Mutex
	failures map[string]error
	calls    []string
	payloads [][]byte
	hook     func(endpoint string) error
}

func newFakeSender() *fakeSender {
	return &fakeSender{failures: map[string]error{}}
}

func (f *fakeSender) Send(ctx context.Context, sub model.PushSubscription, payload []byte) (*pushclient.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, sub.Endpoint)
	f.payloads = append(f.payloads, payload)
	err := f.failures[sub.Endpoint]
	hook := f.hook
	f.mu.Unlock()

	if hook != nil {
		if herr := hook(sub.Endpoint); herr != nil {
			return nil, herr
		}
	}
	if err != nil {
		var statusErr *pushclient.StatusError
		if errors.As(err, &statusErr) {
			return &pushclient.Response{StatusCode: statusErr.StatusCode}, err
		}
		return nil, err
	}
	return &pushclient.Response{StatusCode: 201}, nil
}

func (f *fakeSender) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func sub(endpoint, key string) model.PushSubscription {
	return model.PushSubscription{
		Endpoint: endpoint,
		Keys:     model.SubscriptionKeys{P256dh: "p256dh-" + key, Auth: "auth-" + key},
	}
}

func jsonStore(t *testing.T) storage.SubscriptionStore {
	t.Helper()
	return jsonfile.New(filepath.Join(t.TempDir(), "subscriptions.json"))
}

func boltStore(t *testing.T) *bolt.Store {
	t.Helper()
	store, err := bolt.New(filepath.Join(t.TempDir(), "subscriptions.db"))
	if err != nil {
		t.Fatalf("open bolt: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seed(t *testing.T, store storage.SubscriptionStore, subs ...model.PushSubscription) {
	t.Helper()
	for _, s := range subs {
		if err := store.UpsertSubscription(context.Background(), s); err != nil {
			t.Fatalf("seed %s: %v", s.Endpoint, err)
		}
	}
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Push.PrunePolicy = config.PrunePolicyAll
	cfg.Push.Concurrency = 0
	return cfg
}
