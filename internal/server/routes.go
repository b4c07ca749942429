package server

import (
	"net/http"
	"strings"

	"github.com/berfenger/spotcharge2mqtt/internal/core/domain"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

type automaticControlBody struct {
	Enabled *bool `json:"enabled"`
}

type overrideBody struct {
	Mode string `json:"mode"`
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)

	api := e.Group("/api")
	api.GET("/telemetry", s.TelemetryHandler)
	api.GET("/plan", s.PlanHandler)
	api.POST("/optimize", s.OptimizeHandler)
	api.PUT("/automatic-control", s.AutomaticControlHandler)
	api.POST("/override", s.OverrideHandler)

	if s.hub != nil {
		e.GET("/ws", s.hub.ServeWS)
	}

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, REQUEST_TIMEOUT).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) TelemetryHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, s.telemetry.Telemetry())
}

func (s *Server) PlanHandler(c echo.Context) error {
	t := s.telemetry.Telemetry()
	if t.Plan == nil {
		return c.JSON(http.StatusNotFound, errorBody{Error: "no plan available"})
	}
	return c.JSON(http.StatusOK, t.Plan)
}

func (s *Server) OptimizeHandler(c echo.Context) error {
	s.trigger.RequestOptimization("http")
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) AutomaticControlHandler(c echo.Context) error {
	var body automaticControlBody
	if err := c.Bind(&body); err != nil || body.Enabled == nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "expected {\"enabled\": true|false}"})
	}
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.SetAutomaticControlRequest{Enabled: *body.Enabled}, REQUEST_TIMEOUT).Result()
	if err != nil {
		return s.unavailable(c, err)
	}
	resp, ok := res.(domain.SetAutomaticControlResponse)
	if !ok || resp.HasResponseError() {
		return s.failed(c, res)
	}
	return c.JSON(http.StatusOK, map[string]bool{"enabled": resp.Enabled, "changed": resp.Changed})
}

func (s *Server) OverrideHandler(c echo.Context) error {
	var body overrideBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
	}
	action, err := parseOverrideMode(body.Mode)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
	}
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ManualOverrideRequest{Action: action}, REQUEST_TIMEOUT).Result()
	if err != nil {
		return s.unavailable(c, err)
	}
	resp, ok := res.(domain.ManualOverrideResponse)
	if !ok || resp.HasResponseError() {
		return s.failed(c, res)
	}
	return c.JSON(http.StatusOK, map[string]string{"mode": resp.Action.String()})
}

// parseOverrideMode accepts charge, discharge and stop (alias idle).
func parseOverrideMode(mode string) (domain.Action, error) {
	if strings.EqualFold(mode, "stop") {
		return domain.ActionIdle, nil
	}
	var action domain.Action
	err := action.UnmarshalText([]byte(mode))
	return action, err
}

func (s *Server) unavailable(c echo.Context, err error) error {
	s.logger.Warn("http: actor request failed", zap.Error(err))
	return c.JSON(http.StatusServiceUnavailable, errorBody{Error: err.Error()})
}

func (s *Server) failed(c echo.Context, res any) error {
	if resp, ok := res.(domain.ActorResponse); ok && resp.HasResponseError() {
		return c.JSON(http.StatusBadGateway, errorBody{Error: resp.GetResponseError().Error()})
	}
	return c.JSON(http.StatusInternalServerError, errorBody{Error: "unexpected response"})
}
