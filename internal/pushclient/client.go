package pushclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/indeavr/znainik/internal/crypto"
	"github.com/indeavr/znainik/internal/model"
)

// ErrGone matches gateway responses saying the channel no longer exists (404/410).
var ErrGone = errors.New("push subscription gone")

// StatusError is returned when the push gateway answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("push gateway status %d", e.StatusCode)
	}
	return fmt.Sprintf("push gateway status %d: %s", e.StatusCode, e.Body)
}

// Is lets errors.Is(err, ErrGone) match expired or unregistered endpoints.
func (e *StatusError) Is(target error) bool {
	return target == ErrGone && (e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusGone)
}

// Options configures VAPID identity and delivery hints.
type Options struct {
	Subscriber      string
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	TTL             int
	Urgency         string
	Timeout         time.Duration
}

// Response is the gateway's answer to a delivered message.
type Response struct {
	StatusCode int
}

// Client sends encrypted Web Push messages. Payload encryption and VAPID
// signing are done by webpush-go.
type Client struct {
	opts Options
	http *http.Client
}

// New creates a push client. Both VAPID keys are required.
func New(opts Options) (*Client, error) {
	opts.VAPIDPublicKey = strings.TrimSpace(opts.VAPIDPublicKey)
	opts.VAPIDPrivateKey = strings.TrimSpace(opts.VAPIDPrivateKey)
	if opts.VAPIDPublicKey == "" || opts.VAPIDPrivateKey == "" {
		return nil, fmt.Errorf("vapid public and private keys are required")
	}
	if !crypto.ValidVAPIDPublicKey(opts.VAPIDPublicKey) {
		return nil, fmt.Errorf("vapid public key is not a base64url P-256 point")
	}
	if opts.Subscriber == "" {
		return nil, fmt.Errorf("subscriber contact is required")
	}
	return &Client{
		opts: opts,
		http: &http.Client{Timeout: opts.Timeout},
	}, nil
}

// Send encrypts payload for sub and posts it to the subscription endpoint.
// A non-2xx answer returns both the Response and a *StatusError.
func (c *Client) Send(ctx context.Context, sub model.PushSubscription, payload []byte) (*Response, error) {
	target := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.Keys.P256dh,
			Auth:   sub.Keys.Auth,
		},
	}
	resp, err := webpush.SendNotificationWithContext(ctx, payload, target, &webpush.Options{
		HTTPClient:      c.http,
		Subscriber:      c.opts.Subscriber,
		VAPIDPublicKey:  c.opts.VAPIDPublicKey,
		VAPIDPrivateKey: c.opts.VAPIDPrivateKey,
		TTL:             c.opts.TTL,
		Urgency:         urgency(c.opts.Urgency),
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	out := &Response{StatusCode: resp.StatusCode}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return out, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return out, nil
}

// PublicKey returns the VAPID public key browsers subscribe with.
func (c *Client) PublicKey() string {
	return c.opts.VAPIDPublicKey
}

// GenerateVAPIDKeys returns a fresh base64url encoded VAPID key pair.
func GenerateVAPIDKeys() (publicKey, privateKey string, err error) {
	privateKey, publicKey, err = webpush.GenerateVAPIDKeys()
	return publicKey, privateKey, err
}

func urgency(value string) webpush.Urgency {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "very-low":
		return webpush.UrgencyVeryLow
	case "low":
		return webpush.UrgencyLow
	case "high":
		return webpush.UrgencyHigh
	default:
		return webpush.UrgencyNormal
	}
}
