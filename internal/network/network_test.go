package network

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/MRamiBalles/coup-server/internal/domain/catalog"
	"github.com/MRamiBalles/coup-server/internal/engine"
	"github.com/MRamiBalles/coup-server/internal/events"
	"github.com/MRamiBalles/coup-server/internal/infra/storage"
	"github.com/MRamiBalles/coup-server/internal/platform/metrics"
	"github.com/MRamiBalles/coup-server/internal/session"
)

type harness struct {
	srv     *httptest.Server
	hub     *Hub
	manager *session.Manager
	metrics *metrics.Collector
	matches *storage.SQLiteMatchRepository
}

func newHarness(t *testing.T, opts GatewayOptions) *harness {
	t.Helper()
	db, err := storage.InitSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	col := metrics.NewCollector()
	hub := NewHub(nil, col, 64)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	eventsRepo := storage.NewSQLiteEventRepository(db)
	matches := storage.NewSQLiteMatchRepository(db)
	mgr := session.NewManager(session.ManagerConfig{
		Factory:   session.CoupFactory(catalog.Standard(), engine.DefaultTimeouts(), nil),
		Publisher: hub,
		Persister: storage.NewEventLedger(eventsRepo),
		Recorder:  matches,
		Metrics:   col,
	})

	mux := http.NewServeMux()
	NewLobby(mgr, matches, storage.NewReconstructor(eventsRepo), col, nil).RegisterRoutes(mux)
	mux.Handle("/ws", NewGateway(hub, mgr, opts, nil, col))
	srv := httptest.NewServer(mux)

	t.Cleanup(func() {
		srv.Close()
		mgr.CloseAll("test over")
		cancel()
	})
	return &harness{srv: srv, hub: hub, manager: mgr, metrics: col, matches: matches}
}

func (h *harness) create(t *testing.T, seats ...string) CreateTableResponse {
	t.Helper()
	body, _ := json.Marshal(CreateTableRequest{Seats: seats})
	resp, err := http.Post(h.srv.URL+"/api/tables", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var out CreateTableResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (h *harness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

type wire struct {
	Type    string          `json:"type"`
	ActorID string          `json:"actor_id"`
	Code    string          `json:"code"`
	Seat    string          `json:"seat"`
	Payload json.RawMessage `json:"payload"`
}

func read(t *testing.T, conn *websocket.Conn) wire {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var m wire
	require.NoError(t, conn.ReadJSON(&m))
	return m
}

// readUntil returns every message up to and including the first of type typ.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) []wire {
	t.Helper()
	var seen []wire
	for {
		m := read(t, conn)
		seen = append(seen, m)
		if m.Type == typ {
			return seen
		}
	}
}

func (h *harness) join(t *testing.T, table CreateTableResponse, seat string) *websocket.Conn {
	t.Helper()
	conn := h.dial(t)
	require.NoError(t, conn.WriteJSON(JoinRequest{Type: "JOIN", TableID: table.ID, Seat: seat, Token: table.Tokens[seat]}))
	require.Equal(t, "JOINED", read(t, conn).Type)
	return conn
}

func command(t *testing.T, conn *websocket.Conn, typ events.CommandType, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(events.PlayerCommand{Type: typ, Payload: raw}))
}

func TestCreateListAndViewTables(t *testing.T) {
	h := newHarness(t, GatewayOptions{})
	table := h.create(t, "ana", "bo")
	require.Len(t, table.Tokens, 2)

	resp, err := http.Get(h.srv.URL + "/api/tables")
	require.NoError(t, err)
	var list []session.Summary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	require.Len(t, list, 1)
	require.Equal(t, table.ID, list[0].ID)

	resp, err = http.Get(h.srv.URL + "/api/tables/" + table.ID)
	require.NoError(t, err)
	var view engine.View
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	resp.Body.Close()
	require.Len(t, view.Seats, 2)
	for _, s := range view.Seats {
		require.Empty(t, s.Hand, "public view hides hands")
		require.Equal(t, 2, s.Influence)
	}

	resp, err = http.Get(h.srv.URL + "/api/tables/missing")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Post(h.srv.URL+"/api/tables", "application/json", strings.NewReader(`{"seats":["solo"]}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestJoinRejectsBadToken(t *testing.T) {
	h := newHarness(t, GatewayOptions{})
	table := h.create(t, "a", "b")

	conn := h.dial(t)
	require.NoError(t, conn.WriteJSON(JoinRequest{Type: "JOIN", TableID: table.ID, Seat: "a", Token: table.Tokens["b"]}))
	m := read(t, conn)
	require.Equal(t, "ERROR", m.Type)
	require.Equal(t, "UNAUTHORIZED", m.Code)

	conn = h.dial(t)
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "HELLO"}))
	m = read(t, conn)
	require.Equal(t, "BAD_JOIN", m.Code)
}

func TestPrivateEventsReachOnlyRecipient(t *testing.T) {
	h := newHarness(t, GatewayOptions{})
	table := h.create(t, "a", "b")
	a := h.join(t, table, "a")
	b := h.join(t, table, "b")

	var snap engine.View
	m := read(t, a)
	require.Equal(t, "STATE_SNAPSHOT", m.Type)
	require.NoError(t, json.Unmarshal(m.Payload, &snap))
	require.Equal(t, "a", snap.Viewer)
	require.Len(t, snap.Seats[0].Hand, 2)
	require.Empty(t, snap.Seats[1].Hand)

	m = read(t, b)
	require.Equal(t, "STATE_SNAPSHOT", m.Type)
	require.NoError(t, json.Unmarshal(m.Payload, &snap))
	require.Equal(t, "b", snap.Viewer)

	command(t, a, events.CommandProposeAction, engine.ProposeCommand{Action: "income"})
	readUntil(t, a, "TURN_ADVANCED")
	readUntil(t, b, "TURN_ADVANCED")

	// Out of turn: only a hears about it.
	command(t, a, events.CommandProposeAction, engine.ProposeCommand{Action: "income"})
	rej := readUntil(t, a, "ACTION_REJECTED")
	require.Len(t, rej, 1)

	command(t, b, events.CommandProposeAction, engine.ProposeCommand{Action: "income"})
	seen := readUntil(t, b, "ACTION_PROPOSED")
	for _, w := range seen {
		require.NotEqual(t, "ACTION_REJECTED", w.Type)
	}
	require.Equal(t, "b", seen[len(seen)-1].ActorID)
	require.Equal(t, 2, h.hub.Connected(table.ID))
}

func TestJoinedPrecedesSnapshot(t *testing.T) {
	h := newHarness(t, GatewayOptions{})
	table := h.create(t, "a", "b")

	for i := 0; i < 20; i++ {
		conn := h.dial(t)
		require.NoError(t, conn.WriteJSON(JoinRequest{Type: "JOIN", TableID: table.ID, Seat: "a", Token: table.Tokens["a"]}))
		first := read(t, conn)
		require.Equal(t, "JOINED", first.Type, "join %d", i)
		require.Equal(t, "a", first.Seat)
		require.Equal(t, "STATE_SNAPSHOT", read(t, conn).Type, "join %d", i)
		conn.Close()
	}
}

func TestRateLimitedMessagesAreRefused(t *testing.T) {
	h := newHarness(t, GatewayOptions{MessagesPerSecond: 0.01, Burst: 1})
	table := h.create(t, "a", "b")
	a := h.join(t, table, "a")
	require.Equal(t, "STATE_SNAPSHOT", read(t, a).Type)

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.Equal(t, "BAD_MESSAGE", read(t, a).Code)
	require.Equal(t, "RATE_LIMITED", read(t, a).Code)
}

func TestFinishedMatchesAreListed(t *testing.T) {
	h := newHarness(t, GatewayOptions{})
	table := h.create(t, "a", "b")
	require.True(t, h.manager.Remove(table.ID))

	resp, err := http.Get(h.srv.URL + "/api/matches")
	require.NoError(t, err)
	var list []storage.MatchRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	require.Len(t, list, 1)
	require.True(t, list[0].Aborted)

	resp, err = http.Get(h.srv.URL + "/api/matches/" + table.ID)
	require.NoError(t, err)
	var detail MatchDetail
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&detail))
	resp.Body.Close()
	require.Equal(t, []string{"a", "b"}, detail.Match.Seats)
	require.NotNil(t, detail.Recap)
	require.Len(t, detail.Recap.Seats, 2)

	resp, err = http.Get(h.srv.URL + "/api/matches?limit=0")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t, GatewayOptions{})
	resp, err := http.Get(h.srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	h.create(t, "a", "b")
	resp, err = http.Get(h.srv.URL + "/metrics")
	require.NoError(t, err)
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	resp.Body.Close()
	require.Contains(t, buf.String(), "coup_sessions_started_total 1")
}
