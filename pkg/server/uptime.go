// Package server exposes the uptime tracker over HTTP.
package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/DefiantLabs/warden-explorer/config"
	"github.com/DefiantLabs/warden-explorer/core"
	"github.com/DefiantLabs/warden-explorer/pkg/service"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type UptimeServer struct {
	srv service.Uptime
}

func NewUptimeServer(srv service.Uptime) *UptimeServer {
	return &UptimeServer{srv: srv}
}

// NewRouter wires the uptime routes, the health check and, when gatherer is set, /metrics.
func NewRouter(srv service.Uptime, gatherer prometheus.Gatherer) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ZeroLogMiddleware())
	r.Use(CORSMiddleware())

	r.GET("/gcphealth", Healthcheck)
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	s := NewUptimeServer(srv)
	uptime := r.Group("/uptime")
	uptime.GET("", s.Snapshot)
	uptime.GET("/:operator", s.Validator)
	uptime.PUT("/window", s.SetWindowSize)
	uptime.POST("/refresh", s.Refresh)
	uptime.GET("/polling", s.Polling)
	uptime.PUT("/polling", s.SetPolling)

	return r
}

func (s *UptimeServer) Snapshot(c *gin.Context) {
	snapshot, err := s.srv.GetUptimeSnapshot(c.Request.Context())
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err) // nolint:errcheck
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (s *UptimeServer) Validator(c *gin.Context) {
	rec, err := s.srv.Validator(c.Request.Context(), c.Param("operator"))
	if errors.Is(err, service.ErrValidatorNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": "validator not found"})
		return
	}
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err) // nolint:errcheck
		return
	}
	c.JSON(http.StatusOK, rec)
}

type WindowSizeRequest struct {
	Size int `json:"size"`
}

func (s *UptimeServer) SetWindowSize(c *gin.Context) {
	var req WindowSizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}

	err := s.srv.SetWindowSize(c.Request.Context(), req.Size)
	if errors.Is(err, core.ErrInvalidWindowSize) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": err.Error()})
		return
	}
	if err != nil {
		config.Log.Error("Window resize failed", err)
		c.AbortWithError(http.StatusBadGateway, err) // nolint:errcheck
		return
	}

	snapshot, err := s.srv.GetUptimeSnapshot(c.Request.Context())
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err) // nolint:errcheck
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (s *UptimeServer) Refresh(c *gin.Context) {
	snapshot, err := s.srv.Refresh(c.Request.Context())
	if err != nil {
		var statusErr *core.StatusFetchError
		if errors.As(err, &statusErr) {
			c.JSON(http.StatusBadGateway, gin.H{"message": err.Error()})
			return
		}
		c.AbortWithError(http.StatusInternalServerError, err) // nolint:errcheck
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

type PollingRequest struct {
	Enabled  *bool   `json:"enabled"`
	Interval *string `json:"interval"` // a duration such as "6s", or "auto"
}

func (s *UptimeServer) Polling(c *gin.Context) {
	c.JSON(http.StatusOK, s.srv.Polling(c.Request.Context()))
}

func (s *UptimeServer) SetPolling(c *gin.Context) {
	var req PollingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}

	var interval *time.Duration
	if req.Interval != nil {
		d, err := config.ParsePollInterval(*req.Interval)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"message": err.Error()})
			return
		}
		interval = &d
	}

	state, err := s.srv.SetPolling(c.Request.Context(), req.Enabled, interval)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, state)
}
