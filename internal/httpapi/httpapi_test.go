package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obrien-tchaleu/ludoserver/internal/cache"
	"github.com/obrien-tchaleu/ludoserver/internal/engagement"
	"github.com/obrien-tchaleu/ludoserver/internal/httpapi"
	"github.com/obrien-tchaleu/ludoserver/internal/realtime"
	"github.com/obrien-tchaleu/ludoserver/internal/room"
	"github.com/obrien-tchaleu/ludoserver/internal/store"
	"github.com/obrien-tchaleu/ludoserver/internal/taunt"
)

func newTestServer(t *testing.T) *httpapi.Server {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	st := store.NewMemoryStore()
	shared := cache.NewMemoryCache()
	gsc := cache.NewGameStateCache(log, st, shared, time.Hour, time.Hour)
	bc := realtime.NewMemoryBroadcaster()
	eng := engagement.New(engagement.DefaultProfile())
	td := taunt.NewDirector(taunt.DefaultConfig())
	coord := room.NewCoordinator(log, gsc, st, bc, eng, td)
	hub := realtime.NewHub(log)
	return httpapi.NewServer(coord, hub, httpapi.StubAuth{}, log, "*")
}

func doJSON(t *testing.T, s *httpapi.Server, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer u1")
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return rec, out
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	data := out["data"].(map[string]any)
	assert.Equal(t, "up", data["dbState"])
	assert.Equal(t, true, data["cacheConnected"])
}

func TestCreateRoom_RequiresAuth(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/rooms", bytes.NewReader([]byte(`{"maxPlayers":2,"mode":"individual","visibility":"public"}`)))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateRoom_Success(t *testing.T) {
	s := newTestServer(t)
	rec, out := doJSON(t, s, http.MethodPost, "/rooms", map[string]any{
		"maxPlayers": 2, "mode": "individual", "visibility": "public", "tauntMode": "suggestion",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, true, out["success"])
}

func TestCreateRoom_InvalidSettingsRejected(t *testing.T) {
	s := newTestServer(t)
	rec, out := doJSON(t, s, http.MethodPost, "/rooms", map[string]any{
		"maxPlayers": 1, "mode": "individual", "visibility": "public",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, out["success"])
}

func TestGetRoom_NotFound(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/rooms/does-not-exist", nil)
	req.Header.Set("Authorization", "Bearer u1")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFullRoomLifecycle(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	_ = ctx

	rec, out := doJSON(t, s, http.MethodPost, "/rooms", map[string]any{
		"maxPlayers": 2, "mode": "individual", "visibility": "public", "tauntMode": "suggestion",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	roomData := out["data"].(map[string]any)
	roomID := roomData["id"].(string)
	hostSeatID := roomData["hostSeatId"].(string)

	req := httptest.NewRequest(http.MethodPost, "/rooms/"+roomID+"/join", nil)
	req.Header.Set("Authorization", "Bearer u2")
	rec2 := httptest.NewRecorder()
	s.ServeHTTP(rec2, req)
	require.Equal(t, http.StatusCreated, rec2.Code)
	var joinOut map[string]any
	require.NoError(t, json.Unmarshal(rec2.Body.Bytes(), &joinOut))
	seatData := joinOut["data"].(map[string]any)
	otherSeatID := seatData["id"].(string)

	rec3, _ := doJSON(t, s, http.MethodPatch, "/rooms/"+roomID+"/ready", map[string]any{"seatId": hostSeatID, "ready": true})
	assert.Equal(t, http.StatusOK, rec3.Code)
	rec4, _ := doJSON(t, s, http.MethodPatch, "/rooms/"+roomID+"/ready", map[string]any{"seatId": otherSeatID, "ready": true})
	assert.Equal(t, http.StatusOK, rec4.Code)

	rec5, out5 := doJSON(t, s, http.MethodPost, "/rooms/"+roomID+"/start", map[string]any{"seatId": hostSeatID})
	require.Equal(t, http.StatusOK, rec5.Code)
	assert.Equal(t, true, out5["success"])
}
