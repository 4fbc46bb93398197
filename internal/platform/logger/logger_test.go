package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestEventFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	l := FromZap(zap.New(core)).With(zap.String("table", "t1"))

	l.Event("ACTION_PROPOSED", "alice", "bob", 3)
	l.Event("INCOME", "bob", "", 4)
	l.Debug("hidden")

	entries := logs.All()
	require.Len(t, entries, 2)
	fields := entries[0].ContextMap()
	require.Equal(t, "t1", fields["table"])
	require.Equal(t, "ACTION_PROPOSED", fields["event_type"])
	require.Equal(t, "alice", fields["actor"])
	require.Equal(t, "bob", fields["target"])
	require.Equal(t, int64(3), fields["turn"])
	require.NotContains(t, fields, "details")

	untargeted := entries[1].ContextMap()
	require.NotContains(t, untargeted, "target")
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New("loud")
	require.Error(t, err)

	l, err := New("debug")
	require.NoError(t, err)
	require.NotNil(t, l)
}
