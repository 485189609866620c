package telemetry

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMetricsHandlerExposesCollectors(t *testing.T) {
	m := NewMetrics()
	m.PollTick("kie-veo", "pending")
	m.JobFinished("video", "completed", 90*time.Second)
	m.PollStarted()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)

	for _, want := range []string{
		`genflow_poll_ticks_total{provider="kie-veo",result="pending"} 1`,
		`genflow_jobs_finished_total{kind="video",outcome="completed"} 1`,
		`genflow_active_polls 1`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.PollTick("x", "y")
	m.PollStarted()
	m.PollStopped()
	m.JobFinished("video", "failed", time.Second)
	m.NotificationEmitted("image", "completion")
}
