package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/xdg/privd/internal/clog"
)

type fakeSlots struct{ inUse, size int }

func (f *fakeSlots) InUse() int { return f.inUse }
func (f *fakeSlots) Size() int  { return f.size }

func TestRegistry_Connection(t *testing.T) {
	r := NewRegistry()

	r.Connection(ConnAccepted)
	r.Connection(ConnAccepted)
	r.Connection(ConnBusy)

	if got := testutil.ToFloat64(r.ConnectionsTotal.WithLabelValues(ConnAccepted)); got != 2 {
		t.Errorf("accepted = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.ConnectionsTotal.WithLabelValues(ConnBusy)); got != 1 {
		t.Errorf("busy = %v, want 1", got)
	}
}

func TestRegistry_Command(t *testing.T) {
	r := NewRegistry()

	r.Command("output", 250*time.Millisecond, false)
	r.Command("timeout", 2*time.Second, true)
	r.Command("blocked", 0, false)

	if got := testutil.ToFloat64(r.CommandsTotal.WithLabelValues("output")); got != 1 {
		t.Errorf("output = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.OutputTruncated); got != 1 {
		t.Errorf("truncated = %v, want 1", got)
	}

	// Only executed commands are observed
	expected := `
# HELP privd_command_duration_seconds Wall-clock time of executed commands.
# TYPE privd_command_duration_seconds histogram
privd_command_duration_seconds_bucket{le="0.01"} 0
privd_command_duration_seconds_bucket{le="0.05"} 0
privd_command_duration_seconds_bucket{le="0.1"} 0
privd_command_duration_seconds_bucket{le="0.25"} 1
privd_command_duration_seconds_bucket{le="0.5"} 1
privd_command_duration_seconds_bucket{le="1"} 1
privd_command_duration_seconds_bucket{le="2.5"} 2
privd_command_duration_seconds_bucket{le="5"} 2
privd_command_duration_seconds_bucket{le="10"} 2
privd_command_duration_seconds_bucket{le="30"} 2
privd_command_duration_seconds_bucket{le="60"} 2
privd_command_duration_seconds_bucket{le="+Inf"} 2
privd_command_duration_seconds_sum 2.25
privd_command_duration_seconds_count 2
`
	if err := testutil.GatherAndCompare(r.Gatherer(), strings.NewReader(expected), "privd_command_duration_seconds"); err != nil {
		t.Error(err)
	}
}

func TestRegistry_WatchSlots(t *testing.T) {
	r := NewRegistry()
	src := &fakeSlots{inUse: 1, size: 4}
	r.WatchSlots(src)

	expected := `
# HELP privd_slots_in_use Execution slots currently held.
# TYPE privd_slots_in_use gauge
privd_slots_in_use 3
# HELP privd_slots_total Configured execution slots.
# TYPE privd_slots_total gauge
privd_slots_total 4
`
	src.inUse = 3
	if err := testutil.GatherAndCompare(r.Gatherer(), strings.NewReader(expected), "privd_slots_in_use", "privd_slots_total"); err != nil {
		t.Error(err)
	}
}

func TestRegistry_Handler(t *testing.T) {
	r := NewRegistry()
	r.ActiveConnections.Set(2)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"privd_active_connections 2", "go_goroutines"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
}

func TestServer_StartShutdown(t *testing.T) {
	clog.Discard()
	defer clog.Reset()

	r := NewRegistry()
	r.Connection(ConnAccepted)

	s := NewServer("127.0.0.1:0", r)
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	resp, err := http.Get("http://" + s.Addr().String() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if !strings.Contains(string(body), `privd_connections_total{result="accepted"} 1`) {
		t.Errorf("scrape missing connection counter:\n%s", body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestServer_AddrBeforeStart(t *testing.T) {
	if NewServer("127.0.0.1:0", NewRegistry()).Addr() != nil {
		t.Error("Addr() before Start should be nil")
	}
}
