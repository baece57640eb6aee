package gateway

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensync/docrelay/internal/controlroom"
	"github.com/opensync/docrelay/internal/docengine"
	"github.com/opensync/docrelay/internal/roomregistry"
	"github.com/opensync/docrelay/internal/store"
)

func newTestRouter(t *testing.T) (*Router, *roomregistry.Room) {
	t.Helper()
	st := store.NewMemStore()
	registry, err := roomregistry.NewRegistry(st)
	require.NoError(t, err)
	room, err := registry.Create("test room", "host-1")
	require.NoError(t, err)

	rt := NewRouter(registry, docengine.NewEngine(st), controlroom.NewEngine(), nil, nil, false)
	return rt, room
}

func newGinTestServer(rt *Router) *httptest.Server {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	rt.Register(r)
	return httptest.NewServer(r)
}

func TestServeDocWS_RejectsMissingDocName(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rt, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("GET", "/ws/", nil)
	c.Params = gin.Params{{Key: "docName", Value: "/"}}

	rt.ServeDocWS(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServeDocWS_RejectsWrongToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rt, room := newTestRouter(t)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("GET", "/ws/"+room.ID+":notes.md?token=wrong", nil)
	c.Params = gin.Params{{Key: "docName", Value: "/" + room.ID + ":notes.md"}}

	rt.ServeDocWS(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestServeDocWS_RejectsUnknownRoom(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rt, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("GET", "/ws/does-not-exist:notes.md?token=whatever", nil)
	c.Params = gin.Params{{Key: "docName", Value: "/does-not-exist:notes.md"}}

	rt.ServeDocWS(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGateway_CRDTUpgradeRoundTrip(t *testing.T) {
	rt, room := newTestRouter(t)
	srv := newGinTestServer(rt)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + room.ID + ":notes.md?token=" + url.QueryEscape(room.Token)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	ft, body, err := docengine.DecodeFrame(msg)
	require.NoError(t, err)
	assert.Equal(t, docengine.FrameSync, ft)

	mt, _, err := docengine.DecodeSync(body)
	require.NoError(t, err)
	assert.Equal(t, docengine.SyncStep1, mt)
}

func TestGateway_ControlUpgradeRoundTripRelaysFileOp(t *testing.T) {
	rt, room := newTestRouter(t)
	srv := newGinTestServer(rt)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/control/" + room.ID + "?token=" + url.QueryEscape(room.Token)

	a, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer a.Close()
	b, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer b.Close()

	raw := []byte(`{"type":"file-op","op":{"type":"create","path":"x.md"}}`)
	require.NoError(t, a.WriteMessage(websocket.TextMessage, raw))

	b.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := b.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(msg))
}
