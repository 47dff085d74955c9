package storage

import (
	"context"

	"github.com/indeavr/znainik/internal/model"
)

// SubscriptionStore persists push subscriptions keyed by endpoint.
type SubscriptionStore interface {
	// UpsertSubscription replaces the record with the same endpoint in place
	// or appends a new one.
	UpsertSubscription(ctx context.Context, sub model.PushSubscription) error
	// RemoveSubscription deletes the record for endpoint. Missing endpoints are a no-op.
	RemoveSubscription(ctx context.Context, endpoint string) error
	// ListSubscriptions returns every record in insertion order.
	// Missing or corrupt data reads as an empty collection.
	ListSubscriptions(ctx context.Context) ([]model.PushSubscription, error)
	// PruneSubscriptions removes the given records, skipping any whose stored
	// keys no longer match (the browser resubscribed meanwhile).
	PruneSubscriptions(ctx context.Context, subs []model.PushSubscription) (int, error)
	Close() error
}

// DispatchLogStore keeps a history of dispatch runs.
type DispatchLogStore interface {
	AppendDispatchLog(ctx context.Context, log *model.DispatchLog) error
	ListDispatchLogs(ctx context.Context) ([]*model.DispatchLog, error)
}

// Import copies every subscription from src into dst and returns how many were copied.
func Import(ctx context.Context, src, dst SubscriptionStore) (int, error) {
	subs, err := src.ListSubscriptions(ctx)
	if err != nil {
		return 0, err
	}
	copied := 0
	for _, sub := range subs {
		if !sub.Valid() {
			continue
		}
		if err := dst.UpsertSubscription(ctx, sub); err != nil {
			return copied, err
		}
		copied++
	}
	return copied, nil
}
