package serviceworker

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

type shown struct {
	title string
	opts  NotificationOptions
}

type fakeRegistration struct {
	scope     string
	shown     []shown
	failRich  bool
	failAll   bool
	panicRich bool
	skipped   int
}

func (r *fakeRegistration) ShowNotification(ctx context.Context, title string, opts NotificationOptions) error {
	rich := title != FallbackTitle
	if r.failAll {
		return errors.New("permission revoked")
	}
	if rich && r.panicRich {
		panic("bad options")
	}
	if rich && r.failRich {
		return errors.New("vibrate not allowed")
	}
	r.shown = append(r.shown, shown{title: title, opts: opts})
	return nil
}

func (r *fakeRegistration) Scope() string { return r.scope }

func (r *fakeRegistration) SkipWaiting(ctx context.Context) error {
	r.skipped++
	return nil
}

type fakeWindow struct {
	url     string
	focused int
}

func (w *fakeWindow) URL() string { return w.url }

func (w *fakeWindow) Focus(ctx context.Context) error {
	w.focused++
	return nil
}

type fakeClients struct {
	windows []*fakeWindow
	opened  []string
	claimed int
}

func (c *fakeClients) Claim(ctx context.Context) error {
	c.claimed++
	return nil
}

func (c *fakeClients) MatchAll(ctx context.Context) ([]WindowClient, error) {
	out := make([]WindowClient, 0, len(c.windows))
	for _, w := range c.windows {
		out = append(out, w)
	}
	return out, nil
}

func (c *fakeClients) OpenWindow(ctx context.Context, url string) error {
	c.opened = append(c.opened, url)
	return nil
}

type fakeNotification struct {
	data   *NotificationData
	closed bool
}

func (n *fakeNotification) Data() *NotificationData { return n.data }
func (n *fakeNotification) Close() { n.closed = true }

func newHandler() (*Handler, *fakeRegistration, *fakeClients) {
	reg := &fakeRegistration{scope: "https://znainik.example/"}
	clients := &fakeClients{}
	h := New(reg, clients, nil)
	h.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return h, reg, clients
}

func TestLifecycle(t *testing.T) {
	h, reg, clients := newHandler()
	if err := h.OnInstall(context.Background()); err != nil {
		t.Fatalf("install: %v", err)
	}
	if err := h.OnActivate(context.Background()); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if reg.skipped != 1 || clients.claimed != 1 {
		t.Fatalf("expected skipWaiting and claim, got %d/%d", reg.skipped, clients.claimed)
	}
}

func TestOnPushRichNotification(t *testing.T) {
	h, reg, _ := newHandler()
	err := h.OnPush(context.Background(), []byte(`{"title":"Hi","body":"Test","url":"/oracle","timestamp":1690000000000}`))
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if len(reg.shown) != 1 {
		t.Fatalf("expected one notification, got %d", len(reg.shown))
	}
	got := reg.shown[0]
	want := NotificationOptions{
		Body:               "Test",
		Icon:               "/favicon.ico",
		Badge:              "/favicon.ico",
		Tag:                "znainik-notification",
		Renotify:           true,
		RequireInteraction: true,
		Vibrate:            []int{200, 100, 200},
		Timestamp:          1690000000000,
		Data:               &NotificationData{URL: "/oracle", Timestamp: 1700000000000},
	}
	if got.title != "Hi" || !reflect.DeepEqual(got.opts, want) {
		t.Fatalf("unexpected notification:\n got %q %+v\nwant %q %+v", got.title, got.opts, "Hi", want)
	}
}

func TestOnPushDefaultsURLToScope(t *testing.T) {
	h, reg, _ := newHandler()
	if err := h.OnPush(context.Background(), []byte(`{"title":"Hi","body":"Test"}`)); err != nil {
		t.Fatalf("push: %v", err)
	}
	if reg.shown[0].opts.Data.URL != "https://znainik.example/" {
		t.Fatalf("expected scope URL, got %q", reg.shown[0].opts.Data.URL)
	}
}

func TestOnPushFallbacks(t *testing.T) {
	cases := map[string][]byte{
		"no data":       nil,
		"invalid json":  []byte("not json {"),
		"json array":    []byte(`[1,2,3]`),
		"missing title": []byte(`{"body":"only a body"}`),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			h, reg, _ := newHandler()
			if err := h.OnPush(context.Background(), data); err != nil {
				t.Fatalf("push: %v", err)
			}
			if len(reg.shown) != 1 {
				t.Fatalf("expected exactly one notification, got %d", len(reg.shown))
			}
			if reg.shown[0].title != FallbackTitle || reg.shown[0].opts.Body != FallbackBody {
				t.Fatalf("expected fallback, got %+v", reg.shown[0])
			}
		})
	}
}

func TestOnPushRichFailureFallsBack(t *testing.T) {
	for _, mode := range []string{"error", "panic"} {
		t.Run(mode, func(t *testing.T) {
			h, reg, _ := newHandler()
			reg.failRich = mode == "error"
			reg.panicRich = mode == "panic"
			if err := h.OnPush(context.Background(), []byte(`{"title":"Hi","body":"Test"}`)); err != nil {
				t.Fatalf("push: %v", err)
			}
			if len(reg.shown) != 1 || reg.shown[0].title != FallbackTitle {
				t.Fatalf("expected fallback notification, got %+v", reg.shown)
			}
		})
	}
}

func TestOnPushReportsTotalFailure(t *testing.T) {
	h, reg, _ := newHandler()
	reg.failAll = true
	if err := h.OnPush(context.Background(), []byte(`{"title":"Hi","body":"Test"}`)); err == nil {
		t.Fatalf("expected error when nothing can be shown")
	}
}

func TestNotificationClickFocusesMatchingWindow(t *testing.T) {
	h, _, clients := newHandler()
	other := &fakeWindow{url: "https://znainik.example/about"}
	match := &fakeWindow{url: "/oracle"}
	second := &fakeWindow{url: "/oracle"}
	clients.windows = []*fakeWindow{other, match, second}
	n := &fakeNotification{data: &NotificationData{URL: "/oracle"}}

	if err := h.OnNotificationClick(context.Background(), n); err != nil {
		t.Fatalf("click: %v", err)
	}
	if !n.closed {
		t.Fatalf("notification not closed")
	}
	if match.focused != 1 || second.focused != 0 || other.focused != 0 {
		t.Fatalf("expected first match focused, got %d/%d/%d", other.focused, match.focused, second.focused)
	}
	if len(clients.opened) != 0 {
		t.Fatalf("no window should be opened")
	}
}

func TestNotificationClickOpensWindow(t *testing.T) {
	h, _, clients := newHandler()
	clients.windows = []*fakeWindow{{url: "/elsewhere"}}

	if err := h.OnNotificationClick(context.Background(), &fakeNotification{}); err != nil {
		t.Fatalf("click: %v", err)
	}
	if len(clients.opened) != 1 || clients.opened[0] != "/" {
		t.Fatalf("expected root to be opened, got %v", clients.opened)
	}
}
