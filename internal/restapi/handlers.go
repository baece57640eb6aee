// Package restapi implements the room lifecycle REST surface (spec §6).
package restapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/opensync/docrelay/internal/roomregistry"
)

// Handlers wires REST handlers to the room registry.
type Handlers struct {
	registry *roomregistry.Registry
}

// NewHandlers builds a Handlers bound to the given registry.
func NewHandlers(registry *roomregistry.Registry) *Handlers {
	return &Handlers{registry: registry}
}

// Register wires the room lifecycle routes onto r, which callers are
// expected to have already scoped to the /rooms prefix (e.g. via
// router.Group("/rooms")) so its rate-limit budget applies only here.
func (h *Handlers) Register(r gin.IRouter) {
	r.POST("", h.CreateRoom)
	r.POST("/:id/join", h.JoinRoom)
	r.GET("/:id", h.GetRoom)
	r.DELETE("/:id", h.DeleteRoom)
}

type createRoomRequest struct {
	Name       string `json:"name"`
	HostUserID string `json:"hostUserId"`
}

// CreateRoom handles POST /rooms.
func (h *Handlers) CreateRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	room, err := h.registry.Create(req.Name, req.HostUserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":    room.ID,
		"token": room.Token,
		"name":  room.Name,
	})
}

type joinRoomRequest struct {
	Token string `json:"token"`
}

// JoinRoom handles POST /rooms/:id/join.
func (h *Handlers) JoinRoom(c *gin.Context) {
	id := c.Param("id")

	var req joinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	room, err := h.registry.Authenticate(id, req.Token)
	if err != nil {
		writeRegistryError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":    room.ID,
		"name":  room.Name,
		"wsUrl": "/ws/" + room.ID,
	})
}

// GetRoom handles GET /rooms/:id.
func (h *Handlers) GetRoom(c *gin.Context) {
	id := c.Param("id")

	room, ok := h.registry.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}

	resp := gin.H{
		"name":      room.Name,
		"createdAt": room.CreatedAt.Unix(),
	}
	if len(room.Participants) > 0 {
		resp["participants"] = room.Participants
	}
	c.JSON(http.StatusOK, resp)
}

// DeleteRoom handles DELETE /rooms/:id.
func (h *Handlers) DeleteRoom(c *gin.Context) {
	id := c.Param("id")

	token, ok := bearerToken(c.GetHeader("Authorization"))
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return
	}

	if err := h.registry.Delete(id, token); err != nil {
		writeRegistryError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimPrefix(header, prefix)
	if token == "" {
		return "", false
	}
	return token, true
}

func writeRegistryError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, roomregistry.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
	case errors.Is(err, roomregistry.ErrTokenInvalid):
		c.JSON(http.StatusForbidden, gin.H{"error": "token mismatch"})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}
