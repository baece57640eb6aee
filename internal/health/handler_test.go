package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRoomCounter int

func (f fakeRoomCounter) Count() int { return int(f) }

func TestServeHealth_ReportsRoomsAndConnections(t *testing.T) {
	gin.SetMode(gin.TestMode)

	h := NewHandler(fakeRoomCounter(3), func() int { return 7 }, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/healthz", nil)

	h.ServeHealth(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	assert.Equal(t, 3, resp.Rooms)
	assert.Equal(t, 7, resp.Connections)
	assert.Empty(t, resp.Redis)
}

func TestServeHealth_OmitsRedisWhenNotConfigured(t *testing.T) {
	gin.SetMode(gin.TestMode)

	h := NewHandler(fakeRoomCounter(0), func() int { return 0 }, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/healthz", nil)

	h.ServeHealth(c)

	assert.NotContains(t, w.Body.String(), `"redis"`)
}

func TestRegister_WiresHealthzRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)

	h := NewHandler(fakeRoomCounter(1), func() int { return 1 }, nil)
	r := gin.New()
	h.Register(r)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
