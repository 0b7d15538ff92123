package httpapi

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"reminderd/internal/reminder"
	"reminderd/internal/scheduler"
	logx "reminderd/pkg/logx"
)

// Scheduler is the part of scheduler.Service the API exposes.
type Scheduler interface {
	Status() scheduler.Status
	Trigger(ctx context.Context) reminder.BatchResult
}

type healthResponse struct {
	Status    string           `json:"status"`
	Timestamp time.Time        `json:"timestamp"`
	Scheduler scheduler.Status `json:"scheduler"`
	Error     string           `json:"error,omitempty"`
}

type checkResponse struct {
	Message string               `json:"message"`
	Result  reminder.BatchResult `json:"result"`
}

type handlers struct {
	sched  Scheduler
	health func() error
	log    logx.Logger
}

// NewHandler builds the echo router. A non-empty token is required on every
// request as a bearer token or ?token= query parameter.
func NewHandler(sched Scheduler, token string, health func() error, log logx.Logger) *echo.Echo {
	if log.IsZero() {
		log = logx.Nop()
	}
	h := &handlers{sched: sched, health: health, log: log}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLog(log))
	if tok := strings.TrimSpace(token); tok != "" {
		e.Use(bearerAuth(tok))
	}

	e.GET("/api/health", h.getHealth)
	e.GET("/api/scheduler/status", h.getStatus)
	e.POST("/api/scheduler/check", h.postCheck)
	return e
}

func (h *handlers) getHealth(c echo.Context) error {
	resp := healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Scheduler: h.sched.Status(),
	}
	if h.health != nil {
		if err := h.health(); err != nil {
			resp.Status = "degraded"
			resp.Error = err.Error()
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *handlers) getStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, h.sched.Status())
}

// postCheck runs (or joins) a batch and reports counts only.
func (h *handlers) postCheck(c echo.Context) error {
	res := h.sched.Trigger(c.Request().Context())
	if res.Err != nil {
		h.log.Warn("manual check failed", logx.Err(res.Err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to run manual check")
	}
	return c.JSON(http.StatusOK, checkResponse{Message: "Manual check completed", Result: res})
}

func bearerAuth(token string) echo.MiddlewareFunc {
	want := []byte(token)
	match := func(got string) bool {
		return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), want) == 1
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if q := c.QueryParam("token"); q != "" {
				if match(q) {
					return next(c)
				}
			} else if ah := c.Request().Header.Get(echo.HeaderAuthorization); strings.HasPrefix(ah, "Bearer ") {
				if match(strings.TrimPrefix(ah, "Bearer ")) {
					return next(c)
				}
			}
			c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
			return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
		}
	}
}

func requestLog(log logx.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			log.Debug("http request",
				logx.String("method", c.Request().Method),
				logx.String("path", c.Path()),
				logx.Int("status", c.Response().Status),
				logx.Duration("took", time.Since(start)),
			)
			return nil
		}
	}
}
