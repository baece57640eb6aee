// Package health implements the relay's liveness surface (spec §6): a
// single GET /healthz reporting process uptime, room count, and open
// gateway connections.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/opensync/docrelay/internal/bus"
)

// RoomCounter reports the number of currently registered rooms.
type RoomCounter interface {
	Count() int
}

// ConnectionCounter reports the number of currently open gateway sockets.
type ConnectionCounter func() int

// Handler serves the /healthz endpoint.
type Handler struct {
	rooms     RoomCounter
	conns     ConnectionCounter
	redis     *bus.Service // nil in single-instance mode
	startedAt time.Time
}

// NewHandler builds a Handler. redis may be nil when no rate-limit backing
// store is configured; the health check then skips the Redis ping.
func NewHandler(rooms RoomCounter, conns ConnectionCounter, redis *bus.Service) *Handler {
	return &Handler{
		rooms:     rooms,
		conns:     conns,
		redis:     redis,
		startedAt: time.Now(),
	}
}

// Register wires GET /healthz onto a gin router.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/healthz", h.ServeHealth)
}

type healthResponse struct {
	OK          bool   `json:"ok"`
	UptimeSec   int64  `json:"uptimeSeconds"`
	Rooms       int    `json:"rooms"`
	Connections int    `json:"connections"`
	Redis       string `json:"redis,omitempty"`
}

// ServeHealth handles GET /healthz.
func (h *Handler) ServeHealth(c *gin.Context) {
	resp := healthResponse{
		OK:          true,
		UptimeSec:   int64(time.Since(h.startedAt).Seconds()),
		Rooms:       h.rooms.Count(),
		Connections: h.conns(),
	}

	if h.redis != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.redis.Ping(ctx); err != nil {
			resp.Redis = "unhealthy"
		} else {
			resp.Redis = "healthy"
		}
	}

	c.JSON(http.StatusOK, resp)
}
