package network

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/MRamiBalles/coup-server/internal/infra/storage"
	"github.com/MRamiBalles/coup-server/internal/platform/logger"
	"github.com/MRamiBalles/coup-server/internal/platform/metrics"
	"github.com/MRamiBalles/coup-server/internal/session"
)

// Lobby serves table creation, listing and finished match history.
type Lobby struct {
	manager *session.Manager
	matches storage.MatchRepository
	recaps  *storage.Reconstructor
	metrics *metrics.Collector
	logger  *logger.Logger
}

// NewLobby creates the HTTP lobby. matches and recaps may be nil when no
// ledger is configured.
func NewLobby(mgr *session.Manager, matches storage.MatchRepository, recaps *storage.Reconstructor, m *metrics.Collector, log *logger.Logger) *Lobby {
	if log == nil {
		log = logger.NewNop()
	}
	return &Lobby{manager: mgr, matches: matches, recaps: recaps, metrics: m, logger: log}
}

// CreateTableRequest is the body of POST /api/tables.
type CreateTableRequest struct {
	Seats []string `json:"seats"`
}

// CreateTableResponse hands out one join token per seat.
type CreateTableResponse struct {
	ID     string            `json:"id"`
	Seats  []string          `json:"seats"`
	Tokens map[string]string `json:"tokens"`
}

// MatchDetail is a finished match with its recap.
type MatchDetail struct {
	Match *storage.MatchRecord `json:"match"`
	Recap *storage.MatchRecap  `json:"recap,omitempty"`
}

// RegisterRoutes mounts the lobby on mux.
func (l *Lobby) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/tables", l.HandleCreate)
	mux.HandleFunc("GET /api/tables", l.HandleList)
	mux.HandleFunc("GET /api/tables/{id}", l.HandleTable)
	mux.HandleFunc("GET /api/matches", l.HandleMatches)
	mux.HandleFunc("GET /api/matches/{id}", l.HandleMatch)
	mux.HandleFunc("GET /healthz", l.HandleHealth)
	if l.metrics != nil {
		mux.Handle("GET /metrics", l.metrics.Handler())
		mux.Handle("GET /api/stats", l.metrics.JSONHandler())
	}
}

// HandleCreate deals a new table.
// POST /api/tables
func (l *Lobby) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateTableRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		l.jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	sess, tokens, err := l.manager.Create(req.Seats)
	if err != nil {
		if errors.Is(err, session.ErrTooMany) {
			l.jsonError(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		l.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	l.logger.Info("table created", zap.String("table", sess.ID()), zap.Strings("seats", sess.Seats()))
	l.jsonOK(w, http.StatusCreated, CreateTableResponse{ID: sess.ID(), Seats: sess.Seats(), Tokens: tokens})
}

// HandleList lists tables.
// GET /api/tables
func (l *Lobby) HandleList(w http.ResponseWriter, r *http.Request) {
	l.jsonOK(w, http.StatusOK, l.manager.List())
}

// HandleTable returns the public view of a table: every hand hidden.
// GET /api/tables/{id}
func (l *Lobby) HandleTable(w http.ResponseWriter, r *http.Request) {
	sess, ok := l.manager.Get(r.PathValue("id"))
	if !ok {
		l.jsonError(w, "Table not found", http.StatusNotFound)
		return
	}
	l.jsonOK(w, http.StatusOK, sess.Snapshot(""))
}

// HandleMatches lists finished matches, newest first.
// GET /api/matches?limit=N
func (l *Lobby) HandleMatches(w http.ResponseWriter, r *http.Request) {
	if l.matches == nil {
		l.jsonOK(w, http.StatusOK, []storage.MatchRecord{})
		return
	}
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > 500 {
			l.jsonError(w, "limit must be between 1 and 500", http.StatusBadRequest)
			return
		}
		limit = n
	}
	list, err := l.matches.List(r.Context(), limit)
	if err != nil {
		l.logger.Error("list matches failed", zap.Error(err))
		l.jsonError(w, "Match ledger unavailable", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []storage.MatchRecord{}
	}
	l.jsonOK(w, http.StatusOK, list)
}

// HandleMatch returns one finished match and its recap.
// GET /api/matches/{id}
func (l *Lobby) HandleMatch(w http.ResponseWriter, r *http.Request) {
	if l.matches == nil {
		l.jsonError(w, "Match not found", http.StatusNotFound)
		return
	}
	id := r.PathValue("id")
	m, err := l.matches.Get(r.Context(), id)
	if err != nil {
		l.logger.Error("get match failed", zap.String("table", id), zap.Error(err))
		l.jsonError(w, "Match ledger unavailable", http.StatusInternalServerError)
		return
	}
	if m == nil {
		l.jsonError(w, "Match not found", http.StatusNotFound)
		return
	}
	detail := MatchDetail{Match: m}
	if l.recaps != nil {
		recap, err := l.recaps.Rebuild(r.Context(), id)
		if err != nil {
			l.logger.Warn("recap failed", zap.String("table", id), zap.Error(err))
		}
		detail.Recap = recap
	}
	l.jsonOK(w, http.StatusOK, detail)
}

// HandleHealth reports liveness.
// GET /healthz
func (l *Lobby) HandleHealth(w http.ResponseWriter, r *http.Request) {
	l.jsonOK(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (l *Lobby) jsonOK(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// jsonError sends an error response.
func (l *Lobby) jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
