package events

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingPersister struct {
	got  []GameEvent
	fail bool
}

func (r *recordingPersister) Append(e GameEvent) error {
	if r.fail {
		return errors.New("disk full")
	}
	r.got = append(r.got, e)
	return nil
}

func TestAppendWritesThroughInOrder(t *testing.T) {
	p := &recordingPersister{}
	log := NewEventLog(p)
	now := time.Unix(0, 0)

	log.Append(New(EventTypeGameStarted, now, "", "", nil))
	log.Append(New(EventTypeActionProposed, now, "alice", "", nil))

	require.Len(t, p.got, 2)
	require.Equal(t, EventTypeGameStarted, p.got[0].Type)
	require.Equal(t, EventTypeActionProposed, p.got[1].Type)
	require.Equal(t, 2, log.Len())
}

func TestPersistErrorIsReported(t *testing.T) {
	log := NewEventLog(&recordingPersister{fail: true})
	var failed []EventType
	log.OnPersistError(func(e GameEvent, err error) { failed = append(failed, e.Type) })

	log.Append(New(EventTypeGameOver, time.Now(), "", "", nil))
	require.Equal(t, []EventType{EventTypeGameOver}, failed)
	require.Equal(t, 1, log.Len(), "the in-memory log keeps the event")
}

func TestPrivateEventsStayInLog(t *testing.T) {
	p := &recordingPersister{}
	log := NewEventLog(p)
	secret := New(EventTypeExchangeOffered, time.Now(), "alice", "", nil)
	secret.Recipient = "alice"
	log.Append(New(EventTypeTurnAdvanced, time.Now(), "bob", "", nil))
	log.Append(secret)

	require.Equal(t, 2, log.Len())
	require.Len(t, p.got, 2)
	require.False(t, p.got[0].Private())
	require.True(t, p.got[1].Private())
}

func TestGenerateEventIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := GenerateEventID()
		require.False(t, seen[id])
		seen[id] = true
	}
}
