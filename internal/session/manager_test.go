package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MRamiBalles/coup-server/internal/domain/catalog"
	"github.com/MRamiBalles/coup-server/internal/engine"
	"github.com/MRamiBalles/coup-server/internal/events"
	"github.com/MRamiBalles/coup-server/internal/platform/metrics"
)

type memLedger struct {
	mu     sync.Mutex
	events []events.GameEvent
	fail   bool
}

func (l *memLedger) Append(e events.GameEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail {
		return errors.New("disk full")
	}
	l.events = append(l.events, e)
	return nil
}

type memResults struct {
	mu      sync.Mutex
	results []Result
}

func (r *memResults) RecordResult(_ context.Context, res Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
	return nil
}

func newManager(t *testing.T, ledger *memLedger, results *memResults, col *metrics.Collector) *Manager {
	t.Helper()
	return NewManager(ManagerConfig{
		Factory:   CoupFactory(catalog.Standard(), engine.DefaultTimeouts(), nil),
		Publisher: &recorder{},
		Persister: ledger,
		Recorder:  results,
		Metrics:   col,
		AfterFunc: (&fakeClock{}).AfterFunc,
		MaxTables: 2,
	})
}

func TestCreateIssuesTokensPerSeat(t *testing.T) {
	ledger := &memLedger{}
	m := newManager(t, ledger, &memResults{}, nil)

	s, tokens, err := m.Create([]string{"ana", "bo", "cy"})
	require.NoError(t, err)
	require.Len(t, tokens, 3)
	require.NotEqual(t, tokens["ana"], tokens["bo"])

	got, ok := m.Get(s.ID())
	require.True(t, ok)
	require.Same(t, s, got)

	// Setup events were written through to the ledger with the table id.
	require.NotEmpty(t, ledger.events)
	for _, e := range ledger.events {
		require.Equal(t, s.ID(), e.SessionID)
	}
}

func TestCreateRejectsBadSeats(t *testing.T) {
	m := newManager(t, &memLedger{}, &memResults{}, nil)
	_, _, err := m.Create([]string{"solo"})
	require.Error(t, err)
	require.Empty(t, m.List())
}

func TestAuthenticate(t *testing.T) {
	m := newManager(t, &memLedger{}, &memResults{}, nil)
	s, tokens, err := m.Create([]string{"a", "b"})
	require.NoError(t, err)

	got, err := m.Authenticate(s.ID(), "a", tokens["a"])
	require.NoError(t, err)
	require.Same(t, s, got)

	_, err = m.Authenticate(s.ID(), "a", tokens["b"])
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = m.Authenticate(s.ID(), "z", tokens["a"])
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = m.Authenticate("nope", "a", tokens["a"])
	require.ErrorIs(t, err, ErrNotFound)
}

func TestTableLimitCountsRunningTables(t *testing.T) {
	m := newManager(t, &memLedger{}, &memResults{}, nil)
	first, _, err := m.Create([]string{"a", "b"})
	require.NoError(t, err)
	_, _, err = m.Create([]string{"a", "b"})
	require.NoError(t, err)

	_, _, err = m.Create([]string{"a", "b"})
	require.ErrorIs(t, err, ErrTooMany)

	first.Close("done")
	_, _, err = m.Create([]string{"a", "b"})
	require.NoError(t, err)

	require.Equal(t, 1, m.PruneFinished())
	require.Len(t, m.List(), 2)
}

func TestRemoveAbortsAndRecordsResult(t *testing.T) {
	results := &memResults{}
	col := metrics.NewCollector()
	m := newManager(t, &memLedger{}, results, col)
	s, _, err := m.Create([]string{"a", "b"})
	require.NoError(t, err)

	require.True(t, m.Remove(s.ID()))
	require.False(t, m.Remove(s.ID()))
	_, ok := m.Get(s.ID())
	require.False(t, ok)

	require.Len(t, results.results, 1)
	require.True(t, results.results[0].Aborted)
	require.Equal(t, "removed", results.results[0].Reason)

	snap := col.Snapshot()
	require.Equal(t, 1.0, snap["coup_sessions_started_total"])
	require.Equal(t, 0.0, snap["coup_sessions_active"])
	require.Greater(t, snap["coup_event_write_seconds"], 0.0)
}

func TestLedgerFailureDoesNotStopPlay(t *testing.T) {
	ledger := &memLedger{fail: true}
	col := metrics.NewCollector()
	m := newManager(t, ledger, &memResults{}, col)

	s, _, err := m.Create([]string{"a", "b"})
	require.NoError(t, err)
	require.False(t, s.Finished())
	require.Positive(t, s.EventLog().Len())
	require.Positive(t, col.Snapshot()["coup_event_write_errors_total"])
}

func TestCloseAll(t *testing.T) {
	results := &memResults{}
	m := newManager(t, &memLedger{}, results, nil)
	_, _, err := m.Create([]string{"a", "b"})
	require.NoError(t, err)
	_, _, err = m.Create([]string{"c", "d"})
	require.NoError(t, err)

	m.CloseAll("shutdown")
	require.Len(t, results.results, 2)
	for _, sum := range m.List() {
		require.True(t, sum.Finished)
		require.Empty(t, sum.Winner)
	}
}

type lockedClock struct {
	mu    sync.Mutex
	clock fakeClock
}

func (c *lockedClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clock.AfterFunc(d, f)
}

func TestConcurrentCreateHonoursMaxTables(t *testing.T) {
	m := NewManager(ManagerConfig{
		Factory:   CoupFactory(catalog.Standard(), engine.DefaultTimeouts(), nil),
		Publisher: &recorder{},
		AfterFunc: (&lockedClock{}).AfterFunc,
		MaxTables: 2,
	})

	const callers = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		created  int
		refused  int
		failures []error
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, _, err := m.Create([]string{"a", "b"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, ErrTooMany):
				refused++
			default:
				failures = append(failures, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Empty(t, failures)
	require.Equal(t, 2, created)
	require.Equal(t, callers-2, refused)
	require.Len(t, m.List(), 2)
}
