package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/indeavr/znainik/internal/config"
	"github.com/indeavr/znainik/internal/model"
	"github.com/indeavr/znainik/internal/pushclient"
	"github.com/indeavr/znainik/internal/service"
	"github.com/indeavr/znainik/internal/storage"
	"github.com/indeavr/znainik/internal/storage/jsonfile"
)

const testPassword = "letmein"

type gateway struct {
	mu    sync.Mutex
	gone  map[string]bool
	sends int
	key   string
}

func (g *gateway) PublicKey() string { return g.key }

func (g *gateway) Send(ctx context.Context, sub model.PushSubscription, payload []byte) (*pushclient.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sends++
	if g.gone[sub.Endpoint] {
		return &pushclient.Response{StatusCode: http.StatusGone}, &pushclient.StatusError{StatusCode: http.StatusGone}
	}
	return &pushclient.Response{StatusCode: http.StatusCreated}, nil
}

type harness struct {
	srv   *Server
	store storage.SubscriptionStore
	gw    *gateway
}

func newHarness(t *testing.T, mutate func(*config.Config)) *harness {
	t.Helper()
	cfg := config.Default()
	cfg.Auth.Enabled = true
	cfg.Auth.Password = testPassword
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Push.VAPIDPublicKey = "BEl62iUYgUivxIkv69yViEuiBIa-Ib9-SkvMeAtA3LFgDzkrxZJjSgSnfckjBJuBkr3qBUYIHBQFLXYp5Nksh8U"
	cfg.Push.PrunePolicy = config.PrunePolicyAll
	cfg.Frontend.Dir = ""
	cfg.RateLimit.SubscribePerMinute = 0
	if mutate != nil {
		mutate(cfg)
	}

	store := jsonfile.New(filepath.Join(t.TempDir(), "subscriptions.json"))
	gw := &gateway{gone: map[string]bool{}}
	logger := zap.NewNop()
	srv := New(cfg, logger,
		service.NewSubscriptionService(store, logger),
		service.NewDispatchService(store, gw, cfg, logger),
		service.NewDispatchLogService(store),
		service.NewAuthService(cfg),
	)
	return &harness{srv: srv, store: store, gw: gw}
}

func (h *harness) do(t *testing.T, method, path, body, token string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := h.srv.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	out := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("%s %s: response is not a JSON object: %s", method, path, raw)
		}
	}
	return resp.StatusCode, out
}

func (h *harness) login(t *testing.T) string {
	t.Helper()
	status, body := h.do(t, http.MethodPost, "/admin/login", `{"password":"`+testPassword+`"}`, "")
	if status != http.StatusOK {
		t.Fatalf("login: status %d %v", status, body)
	}
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatalf("login returned no token")
	}
	return token
}

func (h *harness) count(t *testing.T) int {
	t.Helper()
	subs, err := h.store.ListSubscriptions(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	return len(subs)
}

func TestSubscribeAcceptsBothBodyShapes(t *testing.T) {
	h := newHarness(t, nil)

	status, body := h.do(t, http.MethodPost, "/subscribe", `{"endpoint":"https://push.example/abc","keys":{"p256dh":"p1","auth":"a1"}}`, "")
	if status != http.StatusOK || body["success"] != true {
		t.Fatalf("top-level body: %d %v", status, body)
	}
	status, _ = h.do(t, http.MethodPost, "/api/subscribe", `{"subscription":{"endpoint":"https://push.example/abc","keys":{"p256dh":"p2","auth":"a2"}}}`, "")
	if status != http.StatusOK {
		t.Fatalf("wrapped body: %d", status)
	}

	subs, _ := h.store.ListSubscriptions(context.Background())
	if len(subs) != 1 || subs[0].Keys.Auth != "a2" {
		t.Fatalf("expected one record with latest keys, got %+v", subs)
	}
}

func TestSubscribeValidation(t *testing.T) {
	h := newHarness(t, nil)
	for _, body := range []string{`{"keys":{"p256dh":"p","auth":"a"}}`, `{"subscription":{}}`, `not json`, ``} {
		status, resp := h.do(t, http.MethodPost, "/subscribe", body, "")
		if status != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, status)
		}
		if resp["error"] == nil {
			t.Fatalf("body %q: expected error field", body)
		}
	}
	if h.count(t) != 0 {
		t.Fatalf("nothing should have been stored")
	}
}

func TestUnsubscribeUnknownEndpoint(t *testing.T) {
	h := newHarness(t, nil)
	status, body := h.do(t, http.MethodPost, "/unsubscribe", `{"endpoint":"https://push.example/missing"}`, "")
	if status != http.StatusOK || body["success"] != true {
		t.Fatalf("expected success, got %d %v", status, body)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := newHarness(t, nil)
	status, body := h.do(t, http.MethodGet, "/subscribe", "", "")
	if status != http.StatusMethodNotAllowed || body["error"] != "Method not allowed" {
		t.Fatalf("expected 405, got %d %v", status, body)
	}
	status, _ = h.do(t, http.MethodGet, "/api/admin/send-notification", "", "")
	if status != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", status)
	}
}

func TestVAPIDPublicKey(t *testing.T) {
	h := newHarness(t, nil)
	status, body := h.do(t, http.MethodGet, "/vapid-public-key", "", "")
	if status != http.StatusOK || body["publicKey"] == "" {
		t.Fatalf("expected key, got %d %v", status, body)
	}

	h = newHarness(t, func(cfg *config.Config) { cfg.Push.VAPIDPublicKey = "" })
	status, body = h.do(t, http.MethodGet, "/vapid-public-key", "", "")
	if status != http.StatusInternalServerError || body["error"] == nil {
		t.Fatalf("expected 500 with error, got %d %v", status, body)
	}
}

func TestVAPIDPublicKeyPrefersSenderKey(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) { cfg.Push.VAPIDPublicKey = "" })
	h.gw.key = "BSENDERKEY"
	status, body := h.do(t, http.MethodGet, "/vapid-public-key", "", "")
	if status != http.StatusOK || body["publicKey"] != "BSENDERKEY" {
		t.Fatalf("expected sender key, got %d %v", status, body)
	}
}

func TestAdminAuth(t *testing.T) {
	h := newHarness(t, nil)

	status, _ := h.do(t, http.MethodPost, "/admin/login", `{"password":"wrong"}`, "")
	if status != http.StatusUnauthorized {
		t.Fatalf("wrong password: expected 401, got %d", status)
	}
	status, _ = h.do(t, http.MethodPost, "/admin/send-notification", `{"title":"Hi","body":"Test"}`, "")
	if status != http.StatusUnauthorized {
		t.Fatalf("missing token: expected 401, got %d", status)
	}
	status, _ = h.do(t, http.MethodPost, "/admin/send-notification", `{"title":"Hi","body":"Test"}`, "forged")
	if status != http.StatusUnauthorized {
		t.Fatalf("invalid token: expected 401, got %d", status)
	}

	token := h.login(t)
	status, body := h.do(t, http.MethodGet, "/api/admin/verify", "", token)
	if status != http.StatusOK || body["valid"] != true {
		t.Fatalf("verify: %d %v", status, body)
	}
	status, _ = h.do(t, http.MethodGet, "/admin/verify", "", "")
	if status != http.StatusUnauthorized {
		t.Fatalf("verify without token: expected 401, got %d", status)
	}
}

func TestSendNotificationValidation(t *testing.T) {
	h := newHarness(t, nil)
	token := h.login(t)
	for _, body := range []string{`{"body":"Test"}`, `{"title":"Hi"}`, `{"title":"","body":""}`} {
		status, resp := h.do(t, http.MethodPost, "/admin/send-notification", body, token)
		if status != http.StatusBadRequest || resp["error"] != "Title and body are required" {
			t.Fatalf("body %s: expected 400, got %d %v", body, status, resp)
		}
	}
}

func TestEndToEndDelivery(t *testing.T) {
	h := newHarness(t, nil)
	status, _ := h.do(t, http.MethodPost, "/api/subscribe", `{"endpoint":"https://push.example/abc","keys":{"p256dh":"p","auth":"a"}}`, "")
	if status != http.StatusOK {
		t.Fatalf("subscribe: %d", status)
	}
	token := h.login(t)

	status, body := h.do(t, http.MethodPost, "/api/admin/send-notification", `{"title":"Hi","body":"Test"}`, token)
	if status != http.StatusOK {
		t.Fatalf("send: %d %v", status, body)
	}
	if body["success"] != true || body["count"] != float64(1) || body["total"] != float64(1) || body["failed"] != float64(0) {
		t.Fatalf("unexpected result: %v", body)
	}
	if h.gw.sends != 1 {
		t.Fatalf("expected one send, got %d", h.gw.sends)
	}
	if h.count(t) != 1 {
		t.Fatalf("store should still hold the subscription")
	}
}

func TestEndToEndGoneEndpoint(t *testing.T) {
	h := newHarness(t, nil)
	h.gw.gone["https://push.example/abc"] = true
	h.do(t, http.MethodPost, "/subscribe", `{"endpoint":"https://push.example/abc","keys":{"p256dh":"p","auth":"a"}}`, "")
	token := h.login(t)

	status, body := h.do(t, http.MethodPost, "/admin/send-notification", `{"title":"Hi","body":"Test"}`, token)
	if status != http.StatusOK || body["count"] != float64(0) || body["failed"] != float64(1) {
		t.Fatalf("unexpected result: %d %v", status, body)
	}
	if h.count(t) != 0 {
		t.Fatalf("gone subscription should have been pruned")
	}
}

func TestDirectNotification(t *testing.T) {
	h := newHarness(t, nil)
	token := h.login(t)

	status, body := h.do(t, http.MethodPost, "/admin/direct-notification", "", token)
	if status != http.StatusOK || body["message"] != "No subscribers yet" {
		t.Fatalf("empty store: %d %v", status, body)
	}

	h.gw.gone["https://push.example/abc"] = true
	h.do(t, http.MethodPost, "/subscribe", `{"endpoint":"https://push.example/abc","keys":{"p256dh":"p","auth":"a"}}`, "")
	status, body = h.do(t, http.MethodPost, "/admin/direct-notification", "", token)
	if status != http.StatusInternalServerError || body["error"] == nil {
		t.Fatalf("send error: expected 500, got %d %v", status, body)
	}
	if h.count(t) != 1 {
		t.Fatalf("direct sends must not prune")
	}
}

func TestAdminListings(t *testing.T) {
	h := newHarness(t, nil)
	h.do(t, http.MethodPost, "/subscribe", `{"endpoint":"https://fcm.googleapis.com/fcm/send/abcdefghijklmnopqrstuvwxyz","keys":{"p256dh":"p","auth":"a"}}`, "")
	token := h.login(t)

	status, body := h.do(t, http.MethodGet, "/admin/subscriptions", "", token)
	if status != http.StatusOK || body["total"] != float64(1) {
		t.Fatalf("subscriptions: %d %v", status, body)
	}
	endpoints, _ := body["endpoints"].([]any)
	first, _ := endpoints[0].(map[string]any)
	if strings.Contains(first["endpoint"].(string), "abcdefghijklmnopqrstuvwxyz") {
		t.Fatalf("endpoint should be masked: %v", first["endpoint"])
	}

	status, body = h.do(t, http.MethodGet, "/admin/dispatches?page=1&pageSize=5", "", token)
	if status != http.StatusOK || body["page"] == nil {
		t.Fatalf("dispatches: %d %v", status, body)
	}
}

func TestSubscribeRateLimit(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.RateLimit.SubscribePerMinute = 1
		cfg.RateLimit.Burst = 1
	})
	body := `{"endpoint":"https://push.example/abc","keys":{"p256dh":"p","auth":"a"}}`
	if status, _ := h.do(t, http.MethodPost, "/subscribe", body, ""); status != http.StatusOK {
		t.Fatalf("first subscribe: %d", status)
	}
	if status, _ := h.do(t, http.MethodPost, "/subscribe", body, ""); status != http.StatusTooManyRequests {
		t.Fatalf("second subscribe: expected 429, got %d", status)
	}
}

func TestPushSupport(t *testing.T) {
	h := newHarness(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/push-support", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) CriOS/123.0.6312.52 Mobile/15E148 Safari/604.1")
	resp, err := h.srv.app.Test(req, -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["supported"] != false || body["gate"] != "unsupported" {
		t.Fatalf("unexpected gate: %v", body)
	}
}

func TestHealthAndNotFound(t *testing.T) {
	h := newHarness(t, nil)
	status, body := h.do(t, http.MethodGet, "/healthz", "", "")
	if status != http.StatusOK || body["status"] != "ok" || body["push"] != "configured" {
		t.Fatalf("health: %d %v", status, body)
	}
	status, body = h.do(t, http.MethodGet, "/nope", "", "")
	if status != http.StatusNotFound || body["error"] == nil {
		t.Fatalf("not found: %d %v", status, body)
	}
}

func TestPlaceholderSecretTokenIsRejected(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Auth.Password = ""
		cfg.Auth.JWTSecret = config.DefaultJWTSecret
	})
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"authorized": true}).
		SignedString([]byte(config.DefaultJWTSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if status, _ := h.do(t, http.MethodPost, "/admin/send-notification", `{"title":"Hi","body":"Test"}`, forged); status != http.StatusUnauthorized {
		t.Fatalf("send with forged token: expected 401, got %d", status)
	}
	if status, _ := h.do(t, http.MethodGet, "/admin/verify", "", forged); status != http.StatusUnauthorized {
		t.Fatalf("verify with forged token: expected 401, got %d", status)
	}
	if status, _ := h.do(t, http.MethodPost, "/admin/login", `{"password":""}`, ""); status != http.StatusUnauthorized {
		t.Fatalf("login without configured password: expected 401, got %d", status)
	}
	if h.gw.sends != 0 {
		t.Fatalf("expected no push sends, got %d", h.gw.sends)
	}
}

func TestPlaceholderSecretStillIssuesWorkingTokens(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Auth.JWTSecret = config.DefaultJWTSecret
	})
	token := h.login(t)
	if status, _ := h.do(t, http.MethodGet, "/admin/verify", "", token); status != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d", status)
	}
}
