package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/indeavr/znainik/internal/config"
	"github.com/indeavr/znainik/internal/logging"
	"github.com/indeavr/znainik/internal/metrics"
	"github.com/indeavr/znainik/internal/model"
	"github.com/indeavr/znainik/internal/pushclient"
	"github.com/indeavr/znainik/internal/storage"
)

var (
	ErrTitleRequired     = errors.New("title is required")
	ErrBodyRequired      = errors.New("body is required")
	ErrPushNotConfigured = errors.New("push client not configured")
)

const noSubscribersMessage = "No subscribers yet"

// Payload used by the diagnostic single-recipient send.
const (
	directTitle = "Direct Test Notification"
	directBody  = "This is a direct test notification from Знайник"
)

// PushSender delivers one encrypted message to one subscription.
type PushSender interface {
	Send(ctx context.Context, sub model.PushSubscription, payload []byte) (*pushclient.Response, error)
}

// DispatchService fans notifications out to every stored subscription and
// prunes the ones that failed.
type DispatchService struct {
	store  storage.SubscriptionStore
	logs   storage.DispatchLogStore
	sender PushSender
	cfg    *config.Config
	logger *zap.Logger
	now    func() time.Time
}

// NewDispatchService builds DispatchService. Dispatch history is recorded
// when the store also implements storage.DispatchLogStore.
func NewDispatchService(store storage.SubscriptionStore, sender PushSender, cfg *config.Config, logger *zap.Logger) *DispatchService {
	logs, _ := store.(storage.DispatchLogStore)
	return &DispatchService{
		store:  store,
		logs:   logs,
		sender: sender,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Configured reports whether a push sender is available.
func (s *DispatchService) Configured() bool {
	return s.sender != nil
}

// PublicKey returns the VAPID public key browsers subscribe with. The key the
// sender signs with wins over the configured one.
func (s *DispatchService) PublicKey() string {
	if keyed, ok := s.sender.(interface{ PublicKey() string }); ok {
		if key := strings.TrimSpace(keyed.PublicKey()); key != "" {
			return key
		}
	}
	return strings.TrimSpace(s.cfg.Push.VAPIDPublicKey)
}

type sendOutcome struct {
	status int
	err    error
}

// Broadcast sends one notification to every subscription. Sends run
// concurrently and independently; every outcome is collected before failed
// subscriptions are pruned from the store.
func (s *DispatchService) Broadcast(ctx context.Context, req model.DispatchRequest) (model.DispatchResult, error) {
	req.Title = strings.TrimSpace(req.Title)
	req.Body = strings.TrimSpace(req.Body)
	if req.Title == "" {
		return model.DispatchResult{}, ErrTitleRequired
	}
	if req.Body == "" {
		return model.DispatchResult{}, ErrBodyRequired
	}

	started := s.now()
	subs := s.loadSubscriptions(ctx)
	if len(subs) == 0 {
		return model.DispatchResult{Success: true, Message: noSubscribersMessage}, nil
	}
	if s.sender == nil {
		return model.DispatchResult{}, ErrPushNotConfigured
	}

	payload, err := json.Marshal(s.buildPayload(req))
	if err != nil {
		return model.DispatchResult{}, fmt.Errorf("encode payload: %w", err)
	}

	outcomes := s.fanOut(ctx, subs, payload)

	var (
		succeeded int
		dead      []model.PushSubscription
	)
	for i, outcome := range outcomes {
		if outcome.err == nil {
			succeeded++
			continue
		}
		if s.shouldPrune(outcome.err) {
			dead = append(dead, subs[i])
		}
	}

	// the admin may disconnect mid-dispatch; reconciliation still has to land
	reconcileCtx := context.WithoutCancel(ctx)
	pruned := s.prune(reconcileCtx, dead)

	result := model.DispatchResult{
		Success: true,
		Count:   succeeded,
		Total:   len(subs),
		Failed:  len(subs) - succeeded,
		Pruned:  pruned,
	}
	metrics.DispatchDuration.WithLabelValues(model.DispatchKindBroadcast).Observe(s.now().Sub(started).Seconds())
	s.logger.Info("notification dispatched",
		zap.String("title", req.Title),
		zap.Int("total", result.Total),
		zap.Int("succeeded", result.Count),
		zap.Int("failed", result.Failed),
		zap.Int("pruned", result.Pruned),
	)
	s.record(reconcileCtx, &model.DispatchLog{
		Kind:      model.DispatchKindBroadcast,
		Title:     req.Title,
		Body:      req.Body,
		Total:     result.Total,
		Succeeded: result.Count,
		Failed:    result.Failed,
		Pruned:    result.Pruned,
	})
	return result, nil
}

// Direct sends a fixed test notification to the first stored subscription only.
// Nothing is pruned.
func (s *DispatchService) Direct(ctx context.Context) (model.DirectResult, error) {
	subs := s.loadSubscriptions(ctx)
	if len(subs) == 0 {
		return model.DirectResult{Success: true, Message: noSubscribersMessage}, nil
	}
	if s.sender == nil {
		return model.DirectResult{}, ErrPushNotConfigured
	}
	payload, err := json.Marshal(model.NotificationPayload{Title: directTitle, Body: directBody})
	if err != nil {
		return model.DirectResult{}, fmt.Errorf("encode payload: %w", err)
	}

	target := subs[0]
	s.logger.Info("sending direct test notification",
		zap.Int("subscribers", len(subs)),
		zap.String("endpoint", logging.MaskEndpoint(target.Endpoint)),
	)
	outcome := s.send(ctx, target, payload)

	entry := &model.DispatchLog{Kind: model.DispatchKindDirect, Title: directTitle, Body: directBody, Total: 1}
	if outcome.err != nil {
		entry.Failed = 1
		s.record(context.WithoutCancel(ctx), entry)
		return model.DirectResult{}, fmt.Errorf("push error: %w", outcome.err)
	}
	entry.Succeeded = 1
	s.record(context.WithoutCancel(ctx), entry)
	return model.DirectResult{
		Success:    true,
		Message:    fmt.Sprintf("Direct notification sent with status %d", outcome.status),
		StatusCode: outcome.status,
	}, nil
}

func (s *DispatchService) loadSubscriptions(ctx context.Context) []model.PushSubscription {
	subs, err := s.store.ListSubscriptions(ctx)
	if err != nil {
		s.logger.Warn("list subscriptions failed, treating as empty", zap.Error(err))
		return nil
	}
	return subs
}

func (s *DispatchService) buildPayload(req model.DispatchRequest) model.NotificationPayload {
	icon := firstNonEmpty(req.Icon, s.cfg.Push.Icon)
	return model.NotificationPayload{
		Title:     req.Title,
		Body:      req.Body,
		Icon:      icon,
		Badge:     s.cfg.Push.Badge,
		URL:       firstNonEmpty(req.URL, s.cfg.Push.DefaultURL),
		Tag:       s.cfg.Push.Tag,
		Timestamp: s.now().UnixMilli(),
	}
}

func (s *DispatchService) fanOut(ctx context.Context, subs []model.PushSubscription, payload []byte) []sendOutcome {
	outcomes := make([]sendOutcome, len(subs))
	p := pool.New()
	if n := s.cfg.Push.Concurrency; n > 0 {
		p = p.WithMaxGoroutines(n)
	}
	for i, sub := range subs {
		p.Go(func() {
			outcomes[i] = s.send(ctx, sub, payload)
		})
	}
	p.Wait()
	return outcomes
}

func (s *DispatchService) send(ctx context.Context, sub model.PushSubscription, payload []byte) sendOutcome {
	started := time.Now()
	resp, err := s.sender.Send(ctx, sub, payload)
	metrics.PushSendDuration.Observe(time.Since(started).Seconds())

	outcome := sendOutcome{err: err}
	if resp != nil {
		outcome.status = resp.StatusCode
	}
	if err != nil {
		label := "failed"
		if errors.Is(err, pushclient.ErrGone) {
			label = "gone"
		}
		metrics.PushSendsTotal.WithLabelValues(label).Inc()
		s.logger.Warn("push send failed",
			zap.String("endpoint", logging.MaskEndpoint(sub.Endpoint)),
			zap.Int("status", outcome.status),
			zap.Error(err),
		)
		return outcome
	}
	metrics.PushSendsTotal.WithLabelValues("success").Inc()
	s.logger.Debug("push sent",
		zap.String("endpoint", logging.MaskEndpoint(sub.Endpoint)),
		zap.Int("status", outcome.status),
	)
	return outcome
}

func (s *DispatchService) shouldPrune(err error) bool {
	if strings.EqualFold(s.cfg.Push.PrunePolicy, config.PrunePolicyGone) {
		return errors.Is(err, pushclient.ErrGone)
	}
	return true
}

func (s *DispatchService) prune(ctx context.Context, dead []model.PushSubscription) int {
	if len(dead) == 0 {
		return 0
	}
	removed, err := s.store.PruneSubscriptions(ctx, dead)
	if err != nil {
		s.logger.Error("prune subscriptions failed", zap.Int("candidates", len(dead)), zap.Error(err))
		return 0
	}
	metrics.SubscriptionsPrunedTotal.Add(float64(removed))
	return removed
}

func (s *DispatchService) record(ctx context.Context, entry *model.DispatchLog) {
	if s.logs == nil {
		return
	}
	entry.ID = uuid.NewString()
	entry.CreatedAt = s.now().UTC()
	if err := s.logs.AppendDispatchLog(ctx, entry); err != nil {
		s.logger.Warn("append dispatch log failed", zap.Error(err))
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
