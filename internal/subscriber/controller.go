package subscriber

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/indeavr/znainik/internal/crypto"
	"github.com/indeavr/znainik/internal/model"
)

// DefaultScriptURL is where the background handler script is served.
const DefaultScriptURL = "/service-worker.js"

var (
	ErrUnsupported      = errors.New("push notifications are not supported")
	ErrBusy             = errors.New("another notification action is in progress")
	ErrPermissionDenied = errors.New("notification permission denied")
	ErrNoPublicKey      = errors.New("vapid public key is unavailable")
)

// User-facing messages stored in State.Error.
const (
	MsgInitFailed        = "Failed to initialize notifications"
	MsgSubscribeFailed   = "Failed to subscribe to notifications"
	MsgUnsubscribeFailed = "Failed to unsubscribe"
	MsgPermissionDenied  = "Notifications are blocked. Allow them in your browser settings and try again."
)

// Phase is the subscription state shown to the user.
type Phase string

const (
	PhaseUnknown      Phase = "unknown"
	PhaseUnsupported  Phase = "unsupported"
	PhaseUnsubscribed Phase = "unsubscribed"
	PhaseSubscribed   Phase = "subscribed"
)

// SubscribeOptions are passed to the platform when requesting a channel.
type SubscribeOptions struct {
	UserVisibleOnly      bool
	ApplicationServerKey []byte
}

// Platform is the browser environment the controller runs in.
type Platform interface {
	SupportsPush() bool
	UserAgent() string
	Standalone() bool
	RegisterWorker(ctx context.Context, scriptURL string) (Registration, error)
}

// Registration is a registered background worker.
type Registration interface {
	Ready(ctx context.Context) error
	// Subscription returns the current channel, or nil when there is none.
	Subscription(ctx context.Context) (Channel, error)
	Subscribe(ctx context.Context, opts SubscribeOptions) (Channel, error)
}

// Channel is a push channel held by the platform.
type Channel interface {
	Subscription() model.PushSubscription
	Unsubscribe(ctx context.Context) error
}

// API is the server side of the subscription flow.
type API interface {
	VAPIDPublicKey(ctx context.Context) (string, error)
	Subscribe(ctx context.Context, sub model.PushSubscription) error
	Unsubscribe(ctx context.Context, sub model.PushSubscription) error
}

// State is a snapshot of the controller.
type State struct {
	Phase   Phase  `json:"phase"`
	Gate    Gate   `json:"gate"`
	Notice  string `json:"notice,omitempty"`
	Loading bool   `json:"loading"`
	Error   string `json:"error,omitempty"`
}

// Supported reports whether subscribe and unsubscribe may be offered.
func (s State) Supported() bool {
	return s.Phase == PhaseSubscribed || s.Phase == PhaseUnsubscribed
}

// Options configures a Controller.
type Options struct {
	ScriptURL string
	// VAPIDPublicKey is the bundled key. When empty it is fetched from the API.
	VAPIDPublicKey string
	Logger         *zap.Logger
}

// Controller lets a user opt in and out of push notifications.
// One action runs at a time; concurrent calls get ErrBusy.
type Controller struct {
	platform Platform
	api      API
	opts     Options
	logger   *zap.Logger

	mu    sync.Mutex
	state State
	reg   Registration
}

// New builds a Controller in the unknown phase.
func New(platform Platform, api API, opts Options) *Controller {
	if opts.ScriptURL == "" {
		opts.ScriptURL = DefaultScriptURL
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		platform: platform,
		api:      api,
		opts:     opts,
		logger:   logger,
		state:    State{Phase: PhaseUnknown},
	}
}

// State returns the current snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CheckSupport gates the device, registers the background worker and reads
// the current platform subscription.
func (c *Controller) CheckSupport(ctx context.Context) (State, error) {
	if err := c.begin(false); err != nil {
		return c.State(), err
	}

	support := DetectDevice(c.platform.UserAgent(), c.platform.Standalone())
	if !support.Supported() || !c.platform.SupportsPush() {
		return c.finish(func(s *State) {
			s.Phase = PhaseUnsupported
			s.Gate = support.Gate
			s.Notice = support.Message
			if support.Gate == GateSupported {
				s.Gate = GateUnsupported
			}
		}), nil
	}

	phase, err := c.currentPhase(ctx)
	if err != nil {
		c.logger.Error("service worker registration failed", zap.Error(err))
		return c.finish(func(s *State) {
			s.Phase = PhaseUnsubscribed
			s.Gate = GateSupported
			s.Error = MsgInitFailed
		}), err
	}
	return c.finish(func(s *State) {
		s.Phase = phase
		s.Gate = GateSupported
		s.Notice = ""
	}), nil
}

// Subscribe requests a platform channel and saves it on the server. If the
// server rejects it the channel is revoked again.
func (c *Controller) Subscribe(ctx context.Context) error {
	if err := c.begin(true); err != nil {
		return err
	}
	err := c.subscribe(ctx)
	c.finish(func(s *State) {
		switch {
		case errors.Is(err, ErrPermissionDenied):
			s.Error = MsgPermissionDenied
		case err != nil:
			s.Error = MsgSubscribeFailed
		default:
			s.Phase = PhaseSubscribed
		}
	})
	if err != nil {
		c.logger.Warn("subscribe failed", zap.Error(err))
	}
	return err
}

// Unsubscribe tells the server first, then revokes the platform channel. A
// server failure is logged only; the channel is revoked either way.
func (c *Controller) Unsubscribe(ctx context.Context) error {
	if err := c.begin(true); err != nil {
		return err
	}
	err := c.unsubscribe(ctx)
	c.finish(func(s *State) {
		if err != nil {
			s.Error = MsgUnsubscribeFailed
			return
		}
		s.Phase = PhaseUnsubscribed
	})
	if err != nil {
		c.logger.Warn("unsubscribe failed", zap.Error(err))
	}
	return err
}

func (c *Controller) begin(requireSupport bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Loading {
		return ErrBusy
	}
	if requireSupport && !c.state.Supported() {
		return ErrUnsupported
	}
	c.state.Loading = true
	c.state.Error = ""
	return nil
}

func (c *Controller) finish(update func(*State)) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	update(&c.state)
	c.state.Loading = false
	return c.state
}

func (c *Controller) registration(ctx context.Context) (Registration, error) {
	c.mu.Lock()
	reg := c.reg
	c.mu.Unlock()
	if reg != nil {
		return reg, nil
	}
	reg, err := c.platform.RegisterWorker(ctx, c.opts.ScriptURL)
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", c.opts.ScriptURL, err)
	}
	c.mu.Lock()
	c.reg = reg
	c.mu.Unlock()
	return reg, nil
}

func (c *Controller) currentPhase(ctx context.Context) (Phase, error) {
	reg, err := c.registration(ctx)
	if err != nil {
		return PhaseUnknown, err
	}
	ch, err := reg.Subscription(ctx)
	if err != nil {
		return PhaseUnknown, fmt.Errorf("read subscription: %w", err)
	}
	if ch == nil {
		return PhaseUnsubscribed, nil
	}
	return PhaseSubscribed, nil
}

func (c *Controller) subscribe(ctx context.Context) error {
	reg, err := c.registration(ctx)
	if err != nil {
		return err
	}
	if err := reg.Ready(ctx); err != nil {
		return fmt.Errorf("wait for service worker: %w", err)
	}
	key, err := c.publicKey(ctx)
	if err != nil {
		return err
	}
	appKey, err := crypto.DecodeBase64URL(key)
	if err != nil {
		return fmt.Errorf("decode vapid public key: %w", err)
	}

	ch, err := reg.Subscribe(ctx, SubscribeOptions{UserVisibleOnly: true, ApplicationServerKey: appKey})
	if err != nil {
		return fmt.Errorf("request push channel: %w", err)
	}
	if err := c.api.Subscribe(ctx, ch.Subscription()); err != nil {
		if rerr := ch.Unsubscribe(ctx); rerr != nil {
			c.logger.Warn("revoke rejected channel failed", zap.Error(rerr))
		}
		return fmt.Errorf("save subscription: %w", err)
	}
	return nil
}

func (c *Controller) unsubscribe(ctx context.Context) error {
	reg, err := c.registration(ctx)
	if err != nil {
		return err
	}
	if err := reg.Ready(ctx); err != nil {
		return fmt.Errorf("wait for service worker: %w", err)
	}
	ch, err := reg.Subscription(ctx)
	if err != nil {
		return fmt.Errorf("read subscription: %w", err)
	}
	if ch == nil {
		return nil
	}
	if err := c.api.Unsubscribe(ctx, ch.Subscription()); err != nil {
		c.logger.Warn("server unsubscribe failed, revoking locally", zap.Error(err))
	}
	if err := ch.Unsubscribe(ctx); err != nil {
		return fmt.Errorf("revoke push channel: %w", err)
	}
	return nil
}

func (c *Controller) publicKey(ctx context.Context) (string, error) {
	if key := strings.TrimSpace(c.opts.VAPIDPublicKey); key != "" {
		return key, nil
	}
	key, err := c.api.VAPIDPublicKey(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch vapid public key: %w", err)
	}
	if strings.TrimSpace(key) == "" {
		return "", ErrNoPublicKey
	}
	return key, nil
}
