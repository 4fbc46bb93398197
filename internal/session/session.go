// Package session runs tables. A Session owns one rules engine, serializes
// every command and timer expiry against it, and fans the resulting events
// out to the table's ledger and to the transport.
package session

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MRamiBalles/coup-server/internal/engine"
	"github.com/MRamiBalles/coup-server/internal/events"
	apperrors "github.com/MRamiBalles/coup-server/internal/platform/errors"
	"github.com/MRamiBalles/coup-server/internal/platform/logger"
	"github.com/MRamiBalles/coup-server/internal/platform/metrics"
)

// RuleEngine is the game a session drives.
type RuleEngine interface {
	Seats() []string
	Apply(cmd events.PlayerCommand) error
	Expire(seq uint64) error
	Deadline() (seq uint64, d time.Duration, ok bool)
	Drain() []events.GameEvent
	Finished() bool
	Winner() string
	Turns() int
	Snapshot(seat string) any
}

// Publisher delivers events to connected seats.
type Publisher interface {
	Publish(event events.GameEvent)
}

// Timer is a pending window expiry.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d.
type AfterFunc func(d time.Duration, f func()) Timer

// RealAfterFunc schedules on the wall clock.
func RealAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Result is the outcome of a finished table.
type Result struct {
	SessionID  string    `json:"session_id"`
	Winner     string    `json:"winner,omitempty"`
	Seats      []string  `json:"seats"`
	Turns      int       `json:"turns"`
	Aborted    bool      `json:"aborted"`
	Reason     string    `json:"reason,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// RejectionPayload is sent privately to a seat whose command was refused.
type RejectionPayload struct {
	Command events.CommandType `json:"command"`
	Code    string             `json:"code"`
	Message string             `json:"message"`
}

// Options configures a Session.
type Options struct {
	ID        string
	Engine    RuleEngine
	Publisher Publisher
	EventLog  *events.EventLog
	Logger    *logger.Logger
	Metrics   *metrics.Collector
	AfterFunc AfterFunc
	Now       func() time.Time
	OnFinish  func(Result)
}

// Session serializes play on one table.
type Session struct {
	id      string
	engine  RuleEngine
	pub     Publisher
	log     *events.EventLog
	logger  *logger.Logger
	metrics *metrics.Collector
	after   AfterFunc
	now     func() time.Time

	onFinish func(Result)

	mu       sync.Mutex
	timer    Timer
	armedSeq uint64
	started  time.Time
	result   *Result
}

// New creates a session. Call Start to publish the opening events.
func New(opts Options) *Session {
	s := &Session{
		id:       opts.ID,
		engine:   opts.Engine,
		pub:      opts.Publisher,
		log:      opts.EventLog,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		after:    opts.AfterFunc,
		now:      opts.Now,
		onFinish: opts.OnFinish,
	}
	if s.log == nil {
		s.log = events.NewEventLog(nil)
	}
	if s.logger == nil {
		s.logger = logger.NewNop()
	}
	s.logger = s.logger.With(zap.String("table", s.id))
	if s.after == nil {
		s.after = RealAfterFunc
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.started = s.now()
	return s
}

// ID returns the table id.
func (s *Session) ID() string { return s.id }

// Seats returns the seat order.
func (s *Session) Seats() []string { return s.engine.Seats() }

// StartedAt returns when the session was created.
func (s *Session) StartedAt() time.Time { return s.started }

// EventLog returns the table's ledger.
func (s *Session) EventLog() *events.EventLog { return s.log }

// Start publishes the setup events and arms the first timer.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger.Info("table started", zap.Strings("seats", s.engine.Seats()))
	s.settle("")
}

// Submit applies a command from a seat. Recoverable errors are reported back
// to the seat as ACTION_REJECTED and returned; fatal ones end the table.
func (s *Session) Submit(cmd events.PlayerCommand) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.result != nil {
		err := apperrors.New(apperrors.CodeIllegalPhaseAction, "table is finished")
		s.reject(cmd, err)
		return err
	}

	err := s.engine.Apply(cmd)
	if err != nil && !apperrors.IsFatal(err) {
		s.reject(cmd, err)
		return err
	}
	if err == nil && s.metrics != nil {
		s.metrics.RecordCommand(string(cmd.Type))
	}
	reason := ""
	if err != nil {
		reason = err.Error()
		s.logger.Error("fatal rules fault", zap.Error(err), zap.String("seat", cmd.Seat))
	}
	s.settle(reason)
	return err
}

// Snapshot returns the table as seen by seat.
func (s *Session) Snapshot(seat string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Snapshot(seat)
}

// SendSnapshot publishes a private STATE_SNAPSHOT to seat, used when a
// connection (re)joins the table.
func (s *Session) SendSnapshot(seat string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := events.New(events.EventTypeStateSnapshot, s.now(), "", "", s.engine.Snapshot(seat))
	e.SessionID = s.id
	e.Recipient = seat
	e.Turn = s.engine.Turns()
	s.publish(e)
}

// Result returns the outcome once the table is finished.
func (s *Session) Result() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return Result{}, false
	}
	return *s.result, true
}

// Finished reports whether the table is over.
func (s *Session) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result != nil
}

// Close aborts a running table, for example on shutdown.
func (s *Session) Close(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result != nil {
		return
	}
	e := events.New(events.EventTypeSessionAborted, s.now(), "", "", map[string]string{"reason": reason})
	e.SessionID = s.id
	e.Turn = s.engine.Turns()
	s.record(e)
	s.finish(true, reason)
}

func (s *Session) expire(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result != nil || seq != s.armedSeq {
		return
	}
	s.timer = nil
	reason := ""
	if err := s.engine.Expire(seq); err != nil {
		if !apperrors.IsFatal(err) {
			s.logger.Warn("expiry rejected", zap.Error(err), zap.Uint64("seq", seq))
			return
		}
		reason = err.Error()
		s.logger.Error("fatal rules fault on expiry", zap.Error(err))
	}
	s.settle(reason)
}

// settle flushes pending events, re-arms the window timer and records the
// result once the engine is finished. Callers hold mu.
func (s *Session) settle(reason string) {
	for _, e := range s.engine.Drain() {
		e.SessionID = s.id
		s.record(e)
	}
	if s.engine.Finished() {
		s.finish(s.engine.Winner() == "", reason)
		return
	}
	s.arm()
}

func (s *Session) arm() {
	seq, d, ok := s.engine.Deadline()
	if ok && s.timer != nil && seq == s.armedSeq {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if !ok {
		return
	}
	s.armedSeq = seq
	s.timer = s.after(d, func() { s.expire(seq) })
}

func (s *Session) finish(aborted bool, reason string) {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	res := Result{
		SessionID:  s.id,
		Winner:     s.engine.Winner(),
		Seats:      s.engine.Seats(),
		Turns:      s.engine.Turns(),
		Aborted:    aborted,
		Reason:     reason,
		StartedAt:  s.started,
		FinishedAt: s.now(),
	}
	s.result = &res
	s.logger.Info("table finished", zap.String("winner", res.Winner), zap.Bool("aborted", aborted), zap.Int("turns", res.Turns))
	if s.metrics != nil {
		outcome := "won"
		if aborted {
			outcome = "aborted"
		}
		s.metrics.RecordSessionFinished(outcome)
	}
	if s.onFinish != nil {
		s.onFinish(res)
	}
}

func (s *Session) reject(cmd events.PlayerCommand, err error) {
	code, _ := apperrors.CodeOf(err)
	if s.metrics != nil {
		s.metrics.RecordRejection(string(code))
	}
	e := events.New(events.EventTypeActionRejected, s.now(), cmd.Seat, "", RejectionPayload{
		Command: cmd.Type,
		Code:    string(code),
		Message: err.Error(),
	})
	e.SessionID = s.id
	e.Recipient = cmd.Seat
	e.Turn = s.engine.Turns()
	s.publish(e)
}

// record appends to the ledger and publishes.
func (s *Session) record(e events.GameEvent) {
	s.log.Append(e)
	s.logger.Event(string(e.Type), e.ActorID, e.TargetID, e.Turn)
	if s.metrics != nil {
		switch p := e.Payload.(type) {
		case engine.ChallengeResolvedPayload:
			s.metrics.RecordChallenge(p.AgainstBlock, p.ClaimantWins)
		case engine.BlockAnnouncedPayload:
			s.metrics.RecordBlock(string(p.Role))
		}
	}
	s.publish(e)
}

func (s *Session) publish(e events.GameEvent) {
	if s.metrics != nil {
		s.metrics.RecordEvent(string(e.Type))
	}
	if s.pub != nil {
		s.pub.Publish(e)
	}
}
