package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/indeavr/znainik/internal/model"
	"github.com/indeavr/znainik/internal/service"
	"github.com/indeavr/znainik/internal/storage"
	"github.com/indeavr/znainik/internal/subscriber"
)

// subscriptionEnvelope accepts a subscription either as the whole body or
// wrapped in a "subscription" key.
type subscriptionEnvelope struct {
	model.PushSubscription
	Subscription *model.PushSubscription `json:"subscription"`
}

func (e subscriptionEnvelope) resolve() model.PushSubscription {
	if e.Subscription != nil && e.Subscription.Valid() {
		return *e.Subscription
	}
	return e.PushSubscription
}

func (s *Server) decodeBody(c *fiber.Ctx, v any) error {
	body := c.Body()
	if len(body) == 0 {
		return errors.New("empty body")
	}
	return c.App().Config().JSONDecoder(body, v)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	resp := model.StatusRes{Status: "ok", Push: "disabled"}
	if s.dispatch.Configured() {
		resp.Push = "configured"
	}
	n, err := s.subs.Count(c.UserContext())
	if err != nil {
		s.logger.Warn("health check could not read store", zap.Error(err))
		resp.Status = "degraded"
	}
	resp.Subscribers = n
	return c.JSON(resp)
}

func (s *Server) handleSubscribe(c *fiber.Ctx) error {
	var env subscriptionEnvelope
	if err := s.decodeBody(c, &env); err != nil {
		return s.fail(c, http.StatusBadRequest, "Invalid subscription data")
	}
	sub := env.resolve()
	if !sub.Valid() {
		return s.fail(c, http.StatusBadRequest, "Invalid subscription data")
	}
	if err := s.subs.Subscribe(c.UserContext(), sub); err != nil {
		if errors.Is(err, storage.ErrInvalidSubscription) {
			return s.fail(c, http.StatusBadRequest, "Invalid subscription data")
		}
		return s.fail(c, http.StatusInternalServerError, "Failed to save subscription")
	}
	return c.JSON(model.Success(""))
}

func (s *Server) handleUnsubscribe(c *fiber.Ctx) error {
	var env subscriptionEnvelope
	if err := s.decodeBody(c, &env); err != nil {
		return s.fail(c, http.StatusBadRequest, "Invalid subscription data")
	}
	sub := env.resolve()
	if !sub.Valid() {
		return s.fail(c, http.StatusBadRequest, "Invalid subscription data")
	}
	if err := s.subs.Unsubscribe(c.UserContext(), sub.Endpoint); err != nil {
		return s.fail(c, http.StatusInternalServerError, "Failed to remove subscription")
	}
	return c.JSON(model.Success(""))
}

func (s *Server) handleVAPIDPublicKey(c *fiber.Ctx) error {
	key := s.dispatch.PublicKey()
	if key == "" {
		return s.fail(c, http.StatusInternalServerError, "VAPID public key not configured")
	}
	return c.JSON(fiber.Map{"publicKey": key})
}

func (s *Server) handlePushSupport(c *fiber.Ctx) error {
	support := subscriber.DetectDevice(c.Get(fiber.HeaderUserAgent), c.QueryBool("standalone", false))
	return c.JSON(fiber.Map{
		"supported": support.Supported(),
		"gate":      support.Gate,
		"message":   support.Message,
	})
}

func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req struct {
		Password string `json:"password"`
	}
	if err := s.decodeBody(c, &req); err != nil {
		return s.fail(c, http.StatusBadRequest, "Invalid request body")
	}
	if !s.authSvc.Enabled() {
		return c.JSON(fiber.Map{"token": "", "enabled": false})
	}
	token, err := s.authSvc.Authenticate(req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidPassword) || errors.Is(err, service.ErrAuthNotReady) {
			s.logger.Warn("admin login rejected", zap.String("ip", c.IP()), zap.Error(err))
			return s.fail(c, http.StatusUnauthorized, "Invalid password")
		}
		return s.fail(c, http.StatusInternalServerError, "Authentication failed")
	}
	return c.JSON(fiber.Map{"token": token})
}

func (s *Server) handleVerify(c *fiber.Ctx) error {
	token := extractBearerToken(c.Get(fiber.HeaderAuthorization))
	if token == "" && s.authSvc.Enabled() {
		return s.fail(c, http.StatusUnauthorized, "Unauthorized")
	}
	if !s.authz.Authorize(token) {
		return s.fail(c, http.StatusUnauthorized, "Invalid or expired token")
	}
	return c.JSON(fiber.Map{"valid": true})
}

func (s *Server) handleSendNotification(c *fiber.Ctx) error {
	var req model.DispatchRequest
	if err := s.decodeBody(c, &req); err != nil {
		return s.fail(c, http.StatusBadRequest, "Title and body are required")
	}
	result, err := s.dispatch.Broadcast(c.UserContext(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTitleRequired), errors.Is(err, service.ErrBodyRequired):
			return s.fail(c, http.StatusBadRequest, "Title and body are required")
		case errors.Is(err, service.ErrPushNotConfigured):
			return s.fail(c, http.StatusInternalServerError, "Push notifications are not configured")
		default:
			s.logger.Error("broadcast failed", zap.Error(err))
			return s.fail(c, http.StatusInternalServerError, "Failed to send notifications")
		}
	}
	return c.JSON(result)
}

func (s *Server) handleDirectNotification(c *fiber.Ctx) error {
	result, err := s.dispatch.Direct(c.UserContext())
	if err != nil {
		if errors.Is(err, service.ErrPushNotConfigured) {
			return s.fail(c, http.StatusInternalServerError, "Push notifications are not configured")
		}
		return s.fail(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(result)
}

func (s *Server) handleListSubscriptions(c *fiber.Ctx) error {
	views, err := s.subs.ListViews(c.UserContext())
	if err != nil {
		return s.fail(c, http.StatusInternalServerError, "Failed to read subscriptions")
	}
	return c.JSON(fiber.Map{"total": len(views), "endpoints": views})
}

func (s *Server) handleListDispatches(c *fiber.Ctx) error {
	filter := parseDispatchFilter(c)
	page, err := s.history.Query(c.UserContext(), filter)
	if err != nil {
		return s.fail(c, http.StatusInternalServerError, "Failed to read dispatch history")
	}
	totals, err := s.history.Totals(c.UserContext(), filter)
	if err != nil {
		return s.fail(c, http.StatusInternalServerError, "Failed to read dispatch history")
	}
	return c.JSON(fiber.Map{"page": page, "totals": totals})
}

func parseDispatchFilter(c *fiber.Ctx) model.DispatchLogFilter {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	pageSize, _ := strconv.Atoi(c.Query("pageSize", "10"))
	begin, end := parseTimeRange(c)
	return model.DispatchLogFilter{
		Kind:      c.Query("kind"),
		BeginTime: begin,
		EndTime:   end,
		Page:      page,
		PageSize:  pageSize,
	}
}

func parseTimeRange(c *fiber.Ctx) (*time.Time, *time.Time) {
	begin := parseTime(c.Query("beginTime"))
	end := parseTime(c.Query("endTime"))
	return begin, end
}

func parseTime(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	layouts := []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			utc := t.UTC()
			return &utc
		}
	}
	return nil
}
