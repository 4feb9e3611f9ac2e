package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSubmissionsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewSubmissions(reg)

	s.Call("transient")
	s.Call("ok")
	s.Finished("expiry", "completed", 2*time.Second)

	if got := testutil.ToFloat64(s.calls.WithLabelValues("transient")); got != 1 {
		t.Fatalf("expected 1 transient call, got %v", got)
	}
	if got := testutil.ToFloat64(s.outcomes.WithLabelValues("expiry", "completed")); got != 1 {
		t.Fatalf("expected 1 completed expiry submission, got %v", got)
	}
}

func TestNilSubmissionsIsNoop(t *testing.T) {
	var s *Submissions
	s.Call("ok")
	s.Finished("manual", "completed", time.Second)
}
