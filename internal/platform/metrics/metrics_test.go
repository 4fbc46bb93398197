package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestSessionLifecycle(t *testing.T) {
	c := NewCollector()
	c.RecordSessionStarted()
	c.RecordSessionStarted()
	c.RecordSessionFinished("won")

	require.Equal(t, 2.0, testutil.ToFloat64(c.sessionsStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(c.sessionsActive))
	require.Equal(t, 1.0, testutil.ToFloat64(c.sessionsFinished.WithLabelValues("won")))
}

func TestRejectionsByCode(t *testing.T) {
	c := NewCollector()
	c.RecordRejection("MUST_COUP")
	c.RecordRejection("MUST_COUP")
	c.RecordRejection("INVALID_TARGET")
	require.Equal(t, 2.0, testutil.ToFloat64(c.rejections.WithLabelValues("MUST_COUP")))
	require.Equal(t, 3.0, c.Snapshot()["coup_rejections_total"])
}

func TestEventWriteErrors(t *testing.T) {
	c := NewCollector()
	c.RecordEventWrite(time.Millisecond, nil)
	c.RecordEventWrite(time.Millisecond, errors.New("locked"))
	require.Equal(t, 1.0, testutil.ToFloat64(c.eventWriteErrors))
	require.Equal(t, 2.0, c.Snapshot()["coup_event_write_seconds"])
}

func TestHandlerServesPrometheusText(t *testing.T) {
	c := NewCollector()
	c.RecordWSConnection(1)
	c.RecordWSMessage(true)
	c.RecordChallenge(false, true)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)
	require.True(t, strings.Contains(text, "coup_ws_connections 1"), text)
	require.Contains(t, text, `coup_challenges_total{against="action",outcome="claim_upheld"} 1`)
}

func TestGetIsShared(t *testing.T) {
	require.Same(t, Get(), Get())
}
