package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/indeavr/znainik/internal/config"
	"github.com/indeavr/znainik/internal/metrics"
	"github.com/indeavr/znainik/internal/model"
	"github.com/indeavr/znainik/internal/service"
)

// Server wires HTTP handlers.
type Server struct {
	app      *fiber.App
	subs     *service.SubscriptionService
	dispatch *service.DispatchService
	history  *service.DispatchLogService
	authSvc  *service.AuthService
	authz    service.Authorizer
	limiter  *rateLimiter
	cfg      *config.Config
	logger   *zap.Logger
}

// New builds a server instance.
func New(cfg *config.Config, logger *zap.Logger, subs *service.SubscriptionService, dispatch *service.DispatchService, history *service.DispatchLogService, authSvc *service.AuthService) *Server {
	s := &Server{
		subs:     subs,
		dispatch: dispatch,
		history:  history,
		authSvc:  authSvc,
		authz:    authSvc,
		limiter:  newRateLimiter(cfg.RateLimit.SubscribePerMinute, cfg.RateLimit.Burst),
		cfg:      cfg,
		logger:   logger,
	}
	s.app = fiber.New(fiber.Config{
		IdleTimeout:           cfg.HTTP.ReadTimeout,
		ReadTimeout:           cfg.HTTP.ReadTimeout,
		WriteTimeout:          cfg.HTTP.WriteTimeout,
		AppName:               "znainik-push",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	metrics.Register()
	s.registerRoutes()
	return s
}

// Start listens and serves HTTP traffic.
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.cfg.HTTP.Addr))
	return s.app.Listen(s.cfg.HTTP.Addr)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) registerRoutes() {
	s.app.Use(recover.New())
	s.app.Use(s.observe)

	s.route(s.app, http.MethodGet, "/healthz", s.handleHealth)
	s.route(s.app, http.MethodGet, "/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// the browser page historically posts under /api
	s.mount(s.app)
	s.mount(s.app.Group("/api"))

	s.serveFrontend()
}

func (s *Server) mount(r fiber.Router) {
	s.route(r, http.MethodPost, "/subscribe", s.limitSubscribe, s.handleSubscribe)
	s.route(r, http.MethodPost, "/unsubscribe", s.handleUnsubscribe)
	s.route(r, http.MethodGet, "/vapid-public-key", s.handleVAPIDPublicKey)
	s.route(r, http.MethodGet, "/push-support", s.handlePushSupport)

	s.route(r, http.MethodPost, "/admin/login", s.handleLogin)
	s.route(r, http.MethodGet, "/admin/verify", s.handleVerify)
	s.route(r, http.MethodPost, "/admin/send-notification", s.requireAuth, s.handleSendNotification)
	s.route(r, http.MethodPost, "/admin/direct-notification", s.requireAuth, s.handleDirectNotification)
	s.route(r, http.MethodGet, "/admin/subscriptions", s.requireAuth, s.handleListSubscriptions)
	s.route(r, http.MethodGet, "/admin/dispatches", s.requireAuth, s.handleListDispatches)
}

// route registers handlers for one method and answers 405 for the others.
func (s *Server) route(r fiber.Router, method, path string, handlers ...fiber.Handler) {
	r.Add(method, path, handlers...)
	r.All(path, s.methodNotAllowed)
}

func (s *Server) methodNotAllowed(c *fiber.Ctx) error {
	return s.fail(c, http.StatusMethodNotAllowed, "Method not allowed")
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := http.StatusInternalServerError
	msg := "Internal server error"
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		msg = fe.Message
	}
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
	}
	return s.fail(c, code, msg)
}

// observe records request counters and latency per route.
func (s *Server) observe(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()

	status := c.Response().StatusCode()
	if err != nil {
		status = http.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}
	}
	route := c.Route().Path
	metrics.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(status), c.Method()).Inc()
	metrics.HTTPRequestDuration.WithLabelValues(route, c.Method()).Observe(time.Since(start).Seconds())
	return err
}

func (s *Server) requireAuth(c *fiber.Ctx) error {
	token := extractBearerToken(c.Get(fiber.HeaderAuthorization))
	if !s.authz.Authorize(token) {
		return s.fail(c, http.StatusUnauthorized, "Unauthorized")
	}
	return c.Next()
}

func (s *Server) fail(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(model.Error(message))
}

func (s *Server) serveFrontend() {
	dir := strings.TrimSpace(s.cfg.Frontend.Dir)
	if dir == "" {
		return
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		s.logger.Debug("frontend directory not found, static files disabled", zap.String("dir", dir))
		return
	}
	s.app.Static("/", dir, fiber.Static{
		Index:    "index.html",
		Compress: true,
	})
}

func extractBearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
