package gateway

import (
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/opensync/docrelay/internal/auth"
	"github.com/opensync/docrelay/internal/controlroom"
	"github.com/opensync/docrelay/internal/docengine"
	"github.com/opensync/docrelay/internal/logging"
	"github.com/opensync/docrelay/internal/metrics"
	"github.com/opensync/docrelay/internal/ratelimit"
	"github.com/opensync/docrelay/internal/roomregistry"
)

// activeConnections tracks total open sockets across both WebSocket
// channels, for the health endpoint's "connections" field.
var activeConnections atomic.Int64

// ConnectionCount reports the number of currently open gateway sockets.
func ConnectionCount() int {
	return int(activeConnections.Load())
}

const (
	maxCRDTFrameSize    = 10 * 1024 * 1024
	maxControlFrameSize = 1 * 1024 * 1024
)

// Router dispatches authenticated WebSocket upgrades to the document and
// control room engines (spec §4.5).
type Router struct {
	registry    *roomregistry.Registry
	docs        *docengine.Engine
	control     *controlroom.Engine
	limiter     *ratelimit.RateLimiter
	identity    *auth.Validator // nil when identity auth is not required
	requireAuth bool

	upgrader websocket.Upgrader
}

// NewRouter builds a gateway Router. identity may be nil when requireAuth
// is false.
func NewRouter(registry *roomregistry.Registry, docs *docengine.Engine, control *controlroom.Engine, limiter *ratelimit.RateLimiter, identity *auth.Validator, requireAuth bool) *Router {
	return &Router{
		registry:    registry,
		docs:        docs,
		control:     control,
		limiter:     limiter,
		identity:    identity,
		requireAuth: requireAuth,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
			WriteBufferPool: &sync.Pool{
				New: func() any { return make([]byte, 4096) },
			},
		},
	}
}

// Register wires the gateway's routes onto a gin engine.
func (rt *Router) Register(r gin.IRouter) {
	r.GET("/ws/*docName", rt.ServeDocWS)
	r.GET("/control/*roomID", rt.ServeControlWS)
}

// ServeDocWS handles GET /ws/<docName>?token=...[&jwt=...].
func (rt *Router) ServeDocWS(c *gin.Context) {
	docName := strings.TrimPrefix(c.Param("docName"), "/")
	if docName == "" {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}
	roomID := docName
	if idx := strings.IndexByte(docName, ':'); idx >= 0 {
		roomID = docName[:idx]
	}

	room, ok := rt.authenticate(c, roomID)
	if !ok {
		return
	}
	_ = room

	conn, err := rt.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	s := newSocket(conn, websocket.BinaryMessage)

	metrics.ActiveConnections.WithLabelValues("crdt").Inc()
	activeConnections.Add(1)
	go s.writePump()

	doc := rt.docs.Connect(docName, s)
	s.readPump(maxCRDTFrameSize, func(frame []byte) {
		ft, body, err := docengine.DecodeFrame(frame)
		if err != nil {
			return
		}
		switch ft {
		case docengine.FrameSync:
			doc.HandleSync(s, body)
		case docengine.FrameAwareness:
			doc.HandleAwareness(s, body)
		case docengine.FrameFileOp:
			doc.HandleFileOp(s, body)
		}
	}, func() {
		metrics.ActiveConnections.WithLabelValues("crdt").Dec()
		activeConnections.Add(-1)
		doc.Disconnect(s)
		s.Close("")
	})
}

// ServeControlWS handles GET /control/<roomId>?token=...[&jwt=...].
func (rt *Router) ServeControlWS(c *gin.Context) {
	roomID := strings.TrimPrefix(c.Param("roomID"), "/")
	if roomID == "" {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}

	room, ok := rt.authenticate(c, roomID)
	if !ok {
		return
	}

	conn, err := rt.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	s := newSocket(conn, websocket.TextMessage)

	metrics.ActiveConnections.WithLabelValues("control").Inc()
	activeConnections.Add(1)
	go s.writePump()

	cr := rt.control.Connect(roomID, s, room.RequireApproval, room.DefaultPermission, room.HostUserID)
	s.readPump(maxControlFrameSize, func(frame []byte) {
		cr.HandleMessage(s, frame)
	}, func() {
		metrics.ActiveConnections.WithLabelValues("control").Dec()
		activeConnections.Add(-1)
		rt.control.DisconnectFrom(roomID, s)
		s.Close("")
	})
}

// authenticate performs the room-token and optional identity checks shared
// by both upgrade routes. On failure it destroys the raw connection (via a
// plain HTTP status, since the upgrade has not happened yet) and returns
// ok=false.
func (rt *Router) authenticate(c *gin.Context, roomID string) (*roomregistry.Room, bool) {
	if rt.limiter != nil && !rt.limiter.CheckWebSocket(c.Request.Context(), c.ClientIP()) {
		c.AbortWithStatus(http.StatusTooManyRequests)
		return nil, false
	}

	token := c.Query("token")
	room, err := rt.registry.Authenticate(roomID, token)
	if err != nil {
		c.AbortWithStatus(http.StatusForbidden)
		return nil, false
	}

	if rt.requireAuth {
		jwtToken := c.Query("jwt")
		if jwtToken == "" {
			c.AbortWithStatus(http.StatusUnauthorized)
			return nil, false
		}
		if _, err := rt.identity.ValidateToken(jwtToken); err != nil {
			logging.Warn(c.Request.Context(), "gateway rejected invalid identity token")
			c.AbortWithStatus(http.StatusUnauthorized)
			return nil, false
		}
	}

	return room, true
}
