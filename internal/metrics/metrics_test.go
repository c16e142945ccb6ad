package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/krabwidget/krab/internal/backend"
)

func TestResult(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{backend.ErrNotConnected, "not_connected"},
		{&backend.Error{Kind: backend.RequestFailed, Status: 500}, "request_failed"},
		{&backend.Error{Kind: backend.TransportError, Err: errors.New("dial")}, "transport_error"},
		{errors.New("other"), "error"},
	}
	for _, tt := range tests {
		if got := Result(tt.err); got != tt.want {
			t.Errorf("Result(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestRecorder_Counts(t *testing.T) {
	r := New()

	r.RecordSend(backend.KindOllama, 200*time.Millisecond, nil)
	r.RecordSend(backend.KindOllama, time.Second, &backend.Error{Kind: backend.RequestFailed})
	r.RecordHealthCheck(backend.KindOpenAI, backend.ErrInvalidCredentials)
	r.SetStatus(backend.KindOllama, backend.StatusConnected)

	if got := testutil.ToFloat64(r.Sends.WithLabelValues("ollama", "ok")); got != 1 {
		t.Errorf("sends ok = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.Sends.WithLabelValues("ollama", "request_failed")); got != 1 {
		t.Errorf("sends request_failed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.HealthChecks.WithLabelValues("openai", "invalid_credentials")); got != 1 {
		t.Errorf("health checks = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.ConnectionStatus.WithLabelValues("ollama")); got != float64(backend.StatusConnected) {
		t.Errorf("status gauge = %v, want %d", got, backend.StatusConnected)
	}
	if n := testutil.CollectAndCount(r.SendDuration); n != 1 {
		t.Errorf("duration series = %d, want 1", n)
	}
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	r.RecordSend(backend.KindOllama, time.Second, nil)
	r.RecordHealthCheck(backend.KindOllama, nil)
	r.SetStatus(backend.KindOllama, backend.StatusError)
}

func TestRecorder_Handler(t *testing.T) {
	r := New()
	r.RecordHealthCheck(backend.KindOllama, nil)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `krab_health_checks_total{backend="ollama",result="ok"} 1`) {
		t.Errorf("metrics output missing counter:\n%s", body)
	}
}
