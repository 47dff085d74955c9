package serviceworker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/indeavr/znainik/internal/model"
)

// Fallback notification shown when a push carries nothing usable.
const (
	FallbackTitle = "New Update"
	FallbackBody  = "You have a new notification from Знайник"
)

const (
	defaultIcon = "/favicon.ico"
	defaultTag  = "znainik-notification"
	defaultURL  = "/"
)

var defaultVibrate = []int{200, 100, 200}

// NotificationData travels with a displayed notification and comes back on click.
type NotificationData struct {
	URL       string `json:"url"`
	Timestamp int64  `json:"timestamp"`
}

// NotificationOptions mirrors the options accepted by showNotification.
type NotificationOptions struct {
	Body               string            `json:"body"`
	Icon               string            `json:"icon,omitempty"`
	Badge              string            `json:"badge,omitempty"`
	Tag                string            `json:"tag,omitempty"`
	Renotify           bool              `json:"renotify,omitempty"`
	RequireInteraction bool              `json:"requireInteraction,omitempty"`
	Vibrate            []int             `json:"vibrate,omitempty"`
	Timestamp          int64             `json:"timestamp,omitempty"`
	Data               *NotificationData `json:"data,omitempty"`
}

// Registration is the worker's own registration.
type Registration interface {
	ShowNotification(ctx context.Context, title string, opts NotificationOptions) error
	Scope() string
	SkipWaiting(ctx context.Context) error
}

// WindowClient is an open page controlled by the worker.
type WindowClient interface {
	URL() string
	Focus(ctx context.Context) error
}

// Clients gives access to the pages controlled by the worker.
type Clients interface {
	Claim(ctx context.Context) error
	MatchAll(ctx context.Context) ([]WindowClient, error)
	OpenWindow(ctx context.Context, url string) error
}

// Notification is a displayed notification handed back on click.
type Notification interface {
	Data() *NotificationData
	Close()
}

// Handler reacts to lifecycle, push and click events.
type Handler struct {
	reg     Registration
	clients Clients
	logger  *zap.Logger
	now     func() time.Time
}

// New builds a Handler. A nil logger discards output.
func New(reg Registration, clients Clients, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{reg: reg, clients: clients, logger: logger, now: time.Now}
}

// OnInstall activates the new worker without waiting for old ones.
func (h *Handler) OnInstall(ctx context.Context) error {
	return h.reg.SkipWaiting(ctx)
}

// OnActivate takes control of every open page.
func (h *Handler) OnActivate(ctx context.Context) error {
	return h.clients.Claim(ctx)
}

// OnPush always shows exactly one notification. Missing or malformed data
// and failed rich display all end in the fallback notification. An error is
// returned only when even the fallback could not be shown.
func (h *Handler) OnPush(ctx context.Context, data []byte) error {
	if len(data) == 0 {
		h.logger.Debug("push event has no data")
		return h.showFallback(ctx)
	}

	var payload model.NotificationPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		h.logger.Warn("malformed push payload", zap.Error(err))
		return h.showFallback(ctx)
	}

	title, opts := h.richNotification(payload)
	if err := h.show(ctx, title, opts); err != nil {
		h.logger.Warn("show notification failed, falling back", zap.Error(err))
		return h.showFallback(ctx)
	}
	return nil
}

// OnNotificationClick closes n and focuses a page already showing its link,
// or opens a new one.
func (h *Handler) OnNotificationClick(ctx context.Context, n Notification) error {
	n.Close()

	target := defaultURL
	if data := n.Data(); data != nil && strings.TrimSpace(data.URL) != "" {
		target = data.URL
	}

	windows, err := h.clients.MatchAll(ctx)
	if err != nil {
		h.logger.Warn("list window clients failed", zap.Error(err))
	}
	for _, w := range windows {
		if w.URL() == target {
			return w.Focus(ctx)
		}
	}
	return h.clients.OpenWindow(ctx, target)
}

func (h *Handler) richNotification(payload model.NotificationPayload) (string, NotificationOptions) {
	now := h.now().UnixMilli()
	url := payload.URL
	if strings.TrimSpace(url) == "" {
		url = h.reg.Scope()
	}
	timestamp := payload.Timestamp
	if timestamp == 0 {
		timestamp = now
	}
	return payload.Title, NotificationOptions{
		Body:               payload.Body,
		Icon:               orDefault(payload.Icon, defaultIcon),
		Badge:              orDefault(payload.Badge, defaultIcon),
		Tag:                orDefault(payload.Tag, defaultTag),
		Renotify:           true,
		RequireInteraction: true,
		Vibrate:            append([]int(nil), defaultVibrate...),
		Timestamp:          timestamp,
		Data:               &NotificationData{URL: url, Timestamp: now},
	}
}

func (h *Handler) showFallback(ctx context.Context) error {
	if err := h.show(ctx, FallbackTitle, NotificationOptions{Body: FallbackBody}); err != nil {
		h.logger.Error("fallback notification failed", zap.Error(err))
		return fmt.Errorf("show fallback notification: %w", err)
	}
	return nil
}

// show converts a panic in the platform call into an error.
func (h *Handler) show(ctx context.Context, title string, opts NotificationOptions) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("show notification panicked: %v", r)
		}
	}()
	if strings.TrimSpace(title) == "" {
		return errors.New("notification title is empty")
	}
	return h.reg.ShowNotification(ctx, title, opts)
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
