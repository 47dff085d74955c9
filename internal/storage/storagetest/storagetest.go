// Package storagetest holds a behaviour suite shared by every SubscriptionStore backend.
package storagetest

import (
	"context"
	"errors"
	"testing"

	"github.com/indeavr/znainik/internal/model"
	"github.com/indeavr/znainik/internal/storage"
)

// Sub builds a subscription with the given endpoint and key suffix.
func Sub(endpoint, key string) model.PushSubscription {
	return model.PushSubscription{
		Endpoint: endpoint,
		Keys:     model.SubscriptionKeys{P256dh: "p256dh-" + key, Auth: "auth-" + key},
	}
}

// Run exercises the SubscriptionStore contract against stores built by open.
func Run(t *testing.T, open func(t *testing.T) storage.SubscriptionStore) {
	t.Run("EmptyList", func(t *testing.T) {
		store := open(t)
		subs, err := store.ListSubscriptions(context.Background())
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(subs) != 0 {
			t.Fatalf("expected empty store, got %d records", len(subs))
		}
	})

	t.Run("UpsertReplacesInPlace", func(t *testing.T) {
		ctx := context.Background()
		store := open(t)
		for _, sub := range []model.PushSubscription{
			Sub("https://push.example/a", "1"),
			Sub("https://push.example/b", "1"),
			Sub("https://push.example/c", "1"),
		} {
			if err := store.UpsertSubscription(ctx, sub); err != nil {
				t.Fatalf("upsert %s: %v", sub.Endpoint, err)
			}
		}
		if err := store.UpsertSubscription(ctx, Sub("https://push.example/b", "2")); err != nil {
			t.Fatalf("re-upsert: %v", err)
		}
		subs, err := store.ListSubscriptions(ctx)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(subs) != 3 {
			t.Fatalf("expected 3 records, got %d", len(subs))
		}
		want := []string{"https://push.example/a", "https://push.example/b", "https://push.example/c"}
		for i, endpoint := range want {
			if subs[i].Endpoint != endpoint {
				t.Fatalf("position %d: got %q want %q", i, subs[i].Endpoint, endpoint)
			}
		}
		if subs[1].Keys.P256dh != "p256dh-2" || subs[1].Keys.Auth != "auth-2" {
			t.Fatalf("expected latest keys, got %+v", subs[1].Keys)
		}
	})

	t.Run("UpsertRequiresEndpoint", func(t *testing.T) {
		store := open(t)
		err := store.UpsertSubscription(context.Background(), Sub("  ", "1"))
		if !errors.Is(err, storage.ErrInvalidSubscription) {
			t.Fatalf("expected ErrInvalidSubscription, got %v", err)
		}
	})

	t.Run("RemoveIsIdempotent", func(t *testing.T) {
		ctx := context.Background()
		store := open(t)
		if err := store.UpsertSubscription(ctx, Sub("https://push.example/a", "1")); err != nil {
			t.Fatalf("upsert: %v", err)
		}
		if err := store.RemoveSubscription(ctx, "https://push.example/missing"); err != nil {
			t.Fatalf("remove missing: %v", err)
		}
		subs, _ := store.ListSubscriptions(ctx)
		if len(subs) != 1 {
			t.Fatalf("expected store unchanged, got %d records", len(subs))
		}
		if err := store.RemoveSubscription(ctx, "https://push.example/a"); err != nil {
			t.Fatalf("remove: %v", err)
		}
		if err := store.RemoveSubscription(ctx, "https://push.example/a"); err != nil {
			t.Fatalf("second remove: %v", err)
		}
		subs, _ = store.ListSubscriptions(ctx)
		if len(subs) != 0 {
			t.Fatalf("expected empty store, got %d records", len(subs))
		}
	})

	t.Run("PruneSkipsResubscribed", func(t *testing.T) {
		ctx := context.Background()
		store := open(t)
		stale := Sub("https://push.example/a", "old")
		dead := Sub("https://push.example/b", "1")
		for _, sub := range []model.PushSubscription{stale, dead, Sub("https://push.example/c", "1")} {
			if err := store.UpsertSubscription(ctx, sub); err != nil {
				t.Fatalf("upsert: %v", err)
			}
		}
		// browser resubscribed with fresh keys while a dispatch was in flight
		if err := store.UpsertSubscription(ctx, Sub("https://push.example/a", "new")); err != nil {
			t.Fatalf("resubscribe: %v", err)
		}
		removed, err := store.PruneSubscriptions(ctx, []model.PushSubscription{stale, dead, Sub("https://push.example/gone", "1")})
		if err != nil {
			t.Fatalf("prune: %v", err)
		}
		if removed != 1 {
			t.Fatalf("expected 1 pruned record, got %d", removed)
		}
		subs, _ := store.ListSubscriptions(ctx)
		if len(subs) != 2 || subs[0].Endpoint != "https://push.example/a" || subs[1].Endpoint != "https://push.example/c" {
			t.Fatalf("unexpected records after prune: %+v", subs)
		}
	})

	t.Run("Import", func(t *testing.T) {
		ctx := context.Background()
		src, dst := open(t), open(t)
		for _, sub := range []model.PushSubscription{Sub("https://push.example/a", "1"), Sub("https://push.example/b", "1")} {
			if err := src.UpsertSubscription(ctx, sub); err != nil {
				t.Fatalf("upsert: %v", err)
			}
		}
		n, err := storage.Import(ctx, src, dst)
		if err != nil {
			t.Fatalf("import: %v", err)
		}
		if n != 2 {
			t.Fatalf("expected 2 imported, got %d", n)
		}
		subs, _ := dst.ListSubscriptions(ctx)
		if len(subs) != 2 {
			t.Fatalf("expected 2 records in destination, got %d", len(subs))
		}
	})
}
