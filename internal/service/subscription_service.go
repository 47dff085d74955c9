package service

import (
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/indeavr/znainik/internal/logging"
	"github.com/indeavr/znainik/internal/metrics"
	"github.com/indeavr/znainik/internal/model"
	"github.com/indeavr/znainik/internal/storage"
)

// SubscriptionService manages the subscription record store.
type SubscriptionService struct {
	store  storage.SubscriptionStore
	logger *zap.Logger
}

// NewSubscriptionService constructs SubscriptionService.
func NewSubscriptionService(store storage.SubscriptionStore, logger *zap.Logger) *SubscriptionService {
	return &SubscriptionService{store: store, logger: logger}
}

// Subscribe stores sub, replacing any earlier record with the same endpoint.
func (s *SubscriptionService) Subscribe(ctx context.Context, sub model.PushSubscription) error {
	sub.Endpoint = strings.TrimSpace(sub.Endpoint)
	if sub.Endpoint == "" {
		return storage.ErrInvalidSubscription
	}
	if err := s.store.UpsertSubscription(ctx, sub); err != nil {
		s.logger.Error("save subscription failed", zap.String("endpoint", logging.MaskEndpoint(sub.Endpoint)), zap.Error(err))
		return err
	}
	metrics.SubscriptionChangesTotal.WithLabelValues("subscribe").Inc()
	s.logger.Info("subscription saved", zap.String("endpoint", logging.MaskEndpoint(sub.Endpoint)))
	return nil
}

// Unsubscribe removes the record for endpoint. Unknown endpoints succeed.
func (s *SubscriptionService) Unsubscribe(ctx context.Context, endpoint string) error {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return storage.ErrInvalidSubscription
	}
	if err := s.store.RemoveSubscription(ctx, endpoint); err != nil {
		s.logger.Error("remove subscription failed", zap.String("endpoint", logging.MaskEndpoint(endpoint)), zap.Error(err))
		return err
	}
	metrics.SubscriptionChangesTotal.WithLabelValues("unsubscribe").Inc()
	s.logger.Info("subscription removed", zap.String("endpoint", logging.MaskEndpoint(endpoint)))
	return nil
}

// List returns all stored subscriptions.
func (s *SubscriptionService) List(ctx context.Context) ([]model.PushSubscription, error) {
	return s.store.ListSubscriptions(ctx)
}

// Count returns the number of stored subscriptions.
func (s *SubscriptionService) Count(ctx context.Context) (int, error) {
	subs, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	return len(subs), nil
}

// ListViews returns masked subscription views.
func (s *SubscriptionService) ListViews(ctx context.Context) ([]*model.SubscriptionView, error) {
	subs, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]*model.SubscriptionView, 0, len(subs))
	for _, sub := range subs {
		views = append(views, toView(sub))
	}
	return views, nil
}

func toView(sub model.PushSubscription) *model.SubscriptionView {
	gateway := ""
	if u, err := url.Parse(sub.Endpoint); err == nil {
		gateway = u.Host
	}
	return &model.SubscriptionView{
		Endpoint: maskValue(sub.Endpoint),
		Gateway:  gateway,
		HasKeys:  sub.Keys.P256dh != "" && sub.Keys.Auth != "",
	}
}

func maskValue(value string) string {
	value = strings.TrimSpace(value)
	runes := []rune(value)
	if len(runes) <= 24 {
		return value
	}
	return string(runes[:24]) + strings.Repeat("*", 8)
}
