package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"releasegate/internal/core"
)

func TestObserverCounts(t *testing.T) {
	m := New()
	run := core.Run{ID: "r", Status: core.RunFailure, FailureKind: core.FailureBuild}

	m.StepFinished(run, core.StepResult{Phase: core.PhaseProvision, Status: core.StepSuccess, Duration: time.Second})
	m.StepFinished(run, core.StepResult{Phase: core.PhaseBuild, Status: core.StepFailure, Duration: 2 * time.Second})
	m.RunFinished(run)

	if got := testutil.ToFloat64(m.steps.WithLabelValues("provision", "success")); got != 1 {
		t.Errorf("provision successes = %v", got)
	}
	if got := testutil.ToFloat64(m.steps.WithLabelValues("build", "failure")); got != 1 {
		t.Errorf("build failures = %v", got)
	}
	if got := testutil.ToFloat64(m.runs.WithLabelValues("failure", "build")); got != 1 {
		t.Errorf("failed runs = %v", got)
	}
	if n := testutil.CollectAndCount(m.stepDuration); n != 2 {
		t.Errorf("expected 2 duration series, got %d", n)
	}
}

func TestEventsAndInFlight(t *testing.T) {
	m := New()
	m.EventReceived(EventQueued)
	m.EventReceived(EventIgnored)
	m.EventReceived(EventIgnored)
	m.RunStarted()
	m.RunStarted()
	m.RunEnded()

	if got := testutil.ToFloat64(m.events.WithLabelValues(EventIgnored)); got != 2 {
		t.Errorf("ignored = %v", got)
	}
	if got := testutil.ToFloat64(m.inFlight); got != 1 {
		t.Errorf("in flight = %v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.RunFinished(core.Run{Status: core.RunSuccess})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	if !strings.Contains(string(body), `releasegate_runs_total{failure_kind="",status="success"} 1`) {
		t.Errorf("runs_total missing from exposition:\n%s", body)
	}
}
