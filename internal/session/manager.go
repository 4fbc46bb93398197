package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MRamiBalles/coup-server/internal/domain/catalog"
	"github.com/MRamiBalles/coup-server/internal/engine"
	"github.com/MRamiBalles/coup-server/internal/events"
	"github.com/MRamiBalles/coup-server/internal/platform/logger"
	"github.com/MRamiBalles/coup-server/internal/platform/metrics"
)

// Factory builds a fresh rules engine for a seat list.
type Factory func(seats []string) (RuleEngine, error)

// CoupFactory builds Coup tables sharing one catalog.
func CoupFactory(cat *catalog.Catalog, timeouts engine.Timeouts, log *logger.Logger) Factory {
	return func(seats []string) (RuleEngine, error) {
		m, err := engine.New(cat, engine.Config{Seats: seats, Timeouts: timeouts, Logger: log})
		if err != nil {
			return nil, err
		}
		return m, nil
	}
}

// ResultRecorder stores finished match results.
type ResultRecorder interface {
	RecordResult(ctx context.Context, res Result) error
}

var (
	ErrNotFound     = errors.New("session: table not found")
	ErrUnauthorized = errors.New("session: bad seat token")
	ErrTooMany      = errors.New("session: table limit reached")
)

// Summary is the lobby view of a table.
type Summary struct {
	ID        string    `json:"id"`
	Seats     []string  `json:"seats"`
	Finished  bool      `json:"finished"`
	Winner    string    `json:"winner,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// ManagerConfig wires a Manager.
type ManagerConfig struct {
	Factory   Factory
	Publisher Publisher
	Persister events.EventPersister // optional event ledger
	Recorder  ResultRecorder        // optional match ledger
	Logger    *logger.Logger
	Metrics   *metrics.Collector
	AfterFunc AfterFunc
	MaxTables int
}

type entry struct {
	session *Session
	tokens  map[string]string // seat -> join token
}

// Manager owns every running table. Tables are independent of each other.
type Manager struct {
	cfg ManagerConfig

	mu     sync.RWMutex
	tables map[string]*entry
}

// NewManager creates an empty manager.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	return &Manager{cfg: cfg, tables: make(map[string]*entry)}
}

// Create deals a new table and returns it with one join token per seat.
func (m *Manager) Create(seats []string) (*Session, map[string]string, error) {
	m.mu.RLock()
	full := m.cfg.MaxTables > 0 && m.running() >= m.cfg.MaxTables
	m.mu.RUnlock()
	if full {
		return nil, nil, ErrTooMany
	}

	eng, err := m.cfg.Factory(seats)
	if err != nil {
		return nil, nil, fmt.Errorf("create table: %w", err)
	}
	id := uuid.NewString()
	log := events.NewEventLog(m.timed(m.cfg.Persister))
	log.OnPersistError(func(e events.GameEvent, err error) {
		m.cfg.Logger.Error("event ledger write failed", zap.String("table", e.SessionID), zap.String("event", e.ID), zap.Error(err))
	})

	s := New(Options{
		ID:        id,
		Engine:    eng,
		Publisher: m.cfg.Publisher,
		EventLog:  log,
		Logger:    m.cfg.Logger,
		Metrics:   m.cfg.Metrics,
		AfterFunc: m.cfg.AfterFunc,
		OnFinish:  m.recordResult,
	})
	tokens := make(map[string]string, len(seats))
	for _, seat := range seats {
		tokens[seat] = uuid.NewString()
	}

	// Another Create may have filled the last slot since the check above.
	m.mu.Lock()
	if m.cfg.MaxTables > 0 && m.running() >= m.cfg.MaxTables {
		m.mu.Unlock()
		return nil, nil, ErrTooMany
	}
	m.tables[id] = &entry{session: s, tokens: tokens}
	m.mu.Unlock()

	if m.cfg.Metrics != nil {
		m.cfg.Metrics.RecordSessionStarted()
	}
	s.Start()

	out := make(map[string]string, len(tokens))
	for k, v := range tokens {
		out[k] = v
	}
	return s, out, nil
}

// Get looks up a table.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.tables[id]
	if !ok {
		return nil, false
	}
	return e.session, true
}

// Authenticate checks a seat's join token.
func (m *Manager) Authenticate(id, seat, token string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.tables[id]
	if !ok {
		return nil, ErrNotFound
	}
	want, ok := e.tokens[seat]
	if !ok || subtle.ConstantTimeCompare([]byte(want), []byte(token)) != 1 {
		return nil, ErrUnauthorized
	}
	return e.session, nil
}

// List summarizes every table, newest first.
func (m *Manager) List() []Summary {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.tables))
	for _, e := range m.tables {
		sessions = append(sessions, e.session)
	}
	m.mu.RUnlock()

	out := make([]Summary, 0, len(sessions))
	for _, s := range sessions {
		sum := Summary{ID: s.ID(), Seats: s.Seats(), StartedAt: s.StartedAt()}
		if res, ok := s.Result(); ok {
			sum.Finished = true
			sum.Winner = res.Winner
		}
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

// Remove drops a table, aborting it if it is still running.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	e, ok := m.tables[id]
	delete(m.tables, id)
	m.mu.Unlock()
	if ok {
		e.session.Close("removed")
	}
	return ok
}

// PruneFinished drops finished tables and returns how many were removed.
func (m *Manager) PruneFinished() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, e := range m.tables {
		if e.session.Finished() {
			delete(m.tables, id)
			n++
		}
	}
	return n
}

// CloseAll aborts every running table.
func (m *Manager) CloseAll(reason string) {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.tables))
	for _, e := range m.tables {
		sessions = append(sessions, e.session)
	}
	m.mu.RUnlock()
	for _, s := range sessions {
		s.Close(reason)
	}
}

// running counts unfinished tables. Callers hold mu.
func (m *Manager) running() int {
	n := 0
	for _, e := range m.tables {
		if !e.session.Finished() {
			n++
		}
	}
	return n
}

func (m *Manager) recordResult(res Result) {
	if m.cfg.Recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.cfg.Recorder.RecordResult(ctx, res); err != nil {
		m.cfg.Logger.Error("record result failed", zap.String("table", res.SessionID), zap.Error(err))
	}
}

// timed wraps a persister to report write latency.
func (m *Manager) timed(p events.EventPersister) events.EventPersister {
	if p == nil {
		return nil
	}
	if m.cfg.Metrics == nil {
		return p
	}
	return timedPersister{next: p, metrics: m.cfg.Metrics}
}

type timedPersister struct {
	next    events.EventPersister
	metrics *metrics.Collector
}

func (t timedPersister) Append(e events.GameEvent) error {
	start := time.Now()
	err := t.next.Append(e)
	t.metrics.RecordEventWrite(time.Since(start), err)
	return err
}
