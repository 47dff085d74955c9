package jsonfile

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/indeavr/znainik/internal/model"
	"github.com/indeavr/znainik/internal/storage"
	"github.com/indeavr/znainik/internal/storage/storagetest"
)

func TestStoreContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.SubscriptionStore {
		return New(filepath.Join(t.TempDir(), "data", "subscriptions.json"))
	})
}

func TestCorruptFileReadsAsEmptyAndIsOverwritten(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "subscriptions.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}
	store := New(path)

	subs, err := store.ListSubscriptions(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 0 {
		t.Fatalf("expected corrupt file to read as empty, got %d", len(subs))
	}

	if err := store.UpsertSubscription(ctx, storagetest.Sub("https://push.example/abc", "1")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	var onDisk []model.PushSubscription
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatalf("file not rewritten as valid json: %v", err)
	}
	if len(onDisk) != 1 || onDisk[0].Endpoint != "https://push.example/abc" {
		t.Fatalf("unexpected file contents: %s", data)
	}
}

func TestLegacyLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subscriptions.json")
	legacy := `[
  {"endpoint": "https://push.example/abc", "expirationTime": null, "keys": {"p256dh": "BNc", "auth": "tBH"}}
]`
	if err := os.WriteFile(path, []byte(legacy), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	subs, err := New(path).ListSubscriptions(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 1 || subs[0].Keys.P256dh != "BNc" || subs[0].Keys.Auth != "tBH" {
		t.Fatalf("unexpected parse of legacy layout: %+v", subs)
	}
}

func TestRemoveWithoutFileDoesNotCreateIt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subscriptions.json")
	if err := New(path).RemoveSubscription(context.Background(), "https://push.example/abc"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected no file to be created, stat err = %v", err)
	}
}
