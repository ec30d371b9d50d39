// ABOUTME: Tests for the Prometheus metrics publisher
// ABOUTME: Verifies snapshot values land on the registered gauges
package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dmastream/dmastream-go/pkg/stream"
)

func TestUpdate(t *testing.T) {
	Update(stream.Stats{
		State:              stream.Running,
		PushedFrames:       682,
		PushedBytes:        4092,
		Submitted:          3,
		Completed:          2,
		UnknownCompletions: 1,
		InFlight:           1,
		PeriodsElapsed:     1,
		Stalls:             0,
	}, 682)

	// Verify values via prometheus testutil
	if v := testutil.ToFloat64(pushedFrames); v != 682 {
		t.Errorf("pushedFrames = %v, want 682", v)
	}

	if v := testutil.ToFloat64(pushedBytes); v != 4092 {
		t.Errorf("pushedBytes = %v, want 4092", v)
	}

	if v := testutil.ToFloat64(transfersSubmitted); v != 3 {
		t.Errorf("transfersSubmitted = %v, want 3", v)
	}

	if v := testutil.ToFloat64(transfersInFlight); v != 1 {
		t.Errorf("transfersInFlight = %v, want 1", v)
	}

	if v := testutil.ToFloat64(position); v != 682 {
		t.Errorf("position = %v, want 682", v)
	}

	if v := testutil.ToFloat64(state); v != float64(stream.Running) {
		t.Errorf("state = %v, want %v", v, float64(stream.Running))
	}
}

func TestHandler(t *testing.T) {
	if Handler() == nil {
		t.Fatal("expected a scrape handler")
	}
}
