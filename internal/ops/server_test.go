package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rorsat-ltd/kosmos/internal/mq"
)

type fakeDB struct {
	fail bool
}

func (f *fakeDB) Ping(ctx context.Context) error {
	if f.fail {
		return errors.New("db unreachable")
	}
	return nil
}

func newTestServer(t *testing.T, db dbPinger, q mq.Queue) *Server {
	t.Helper()
	hash, err := HashSecret("operator-secret")
	require.NoError(t, err)

	return &Server{
		auth:    NewAuthenticator([]byte(hash), []byte("jwt-key"), time.Hour),
		stats:   NewStats(),
		db:      db,
		queue:   q,
		log:     zerolog.Nop(),
		clients: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func TestHealthz_ReportsHealthyWhenDependenciesOK(t *testing.T) {
	q := mq.NewMemoryQueue()
	defer q.Close()
	s := newTestServer(t, &fakeDB{}, q)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["healthy"])
}

func TestHealthz_ReportsUnhealthyWhenDatabaseDown(t *testing.T) {
	q := mq.NewMemoryQueue()
	defer q.Close()
	s := newTestServer(t, &fakeDB{fail: true}, q)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthz_IsUnauthenticated(t *testing.T) {
	q := mq.NewMemoryQueue()
	defer q.Close()
	s := newTestServer(t, &fakeDB{}, q)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.NotEqual(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminStats_RejectsMissingToken(t *testing.T) {
	q := mq.NewMemoryQueue()
	defer q.Close()
	s := newTestServer(t, &fakeDB{}, q)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/stats", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminStats_AcceptsValidTokenAndReflectsObservations(t *testing.T) {
	q := mq.NewMemoryQueue()
	defer q.Close()
	s := newTestServer(t, &fakeDB{}, q)

	token, err := s.auth.Login("operator-secret")
	require.NoError(t, err)

	s.OnJobResult(mq.KindProcessMO, "msg-1", "done")
	s.OnJobResult(mq.KindProcessMO, "msg-2", "failed")

	req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	counters := snap.Jobs[mq.KindProcessMO]
	assert.Equal(t, int64(1), counters.Done)
	assert.Equal(t, int64(1), counters.Failed)
}

func TestAdminLogin_RejectsWrongSecret(t *testing.T) {
	q := mq.NewMemoryQueue()
	defer q.Close()
	s := newTestServer(t, &fakeDB{}, q)

	req := httptest.NewRequest(http.MethodPost, "/admin/login", strings.NewReader(`{"secret":"wrong"}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminLogin_AcceptsCorrectSecret(t *testing.T) {
	q := mq.NewMemoryQueue()
	defer q.Close()
	s := newTestServer(t, &fakeDB{}, q)

	req := httptest.NewRequest(http.MethodPost, "/admin/login", strings.NewReader(`{"secret":"operator-secret"}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Token)
}

func TestAdminStream_RejectsMissingToken(t *testing.T) {
	q := mq.NewMemoryQueue()
	defer q.Close()
	s := newTestServer(t, &fakeDB{}, q)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/admin/stream"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
}

func TestAdminStream_BroadcastsJobOutcomesToConnectedClients(t *testing.T) {
	q := mq.NewMemoryQueue()
	defer q.Close()
	s := newTestServer(t, &fakeDB{}, q)

	token, err := s.auth.Login("operator-secret")
	require.NoError(t, err)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/admin/stream?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// give the server goroutine a moment to register the client
	time.Sleep(50 * time.Millisecond)
	s.OnJobResult(mq.KindDeliverMT, "msg-9", "done")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev Event
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, mq.KindDeliverMT, ev.Kind)
	assert.Equal(t, "done", ev.Outcome)
	assert.Equal(t, "msg-9", ev.MessageID)
}
