package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/metrics/export/internaldefs"
	"github.com/MrEthical07/authcore/store"
)

type fakeSource struct {
	snapshot authcore.MetricsSnapshot
	dropped  map[authcore.AuditSeverity]uint64
}

func (f fakeSource) MetricsSnapshot() authcore.MetricsSnapshot { return f.snapshot }

func (f fakeSource) AuditDropped() map[authcore.AuditSeverity]uint64 { return f.dropped }

func sampleSource() fakeSource {
	return fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters: map[authcore.MetricID]uint64{
				authcore.MetricLoginSuccess:         7,
				authcore.MetricRefreshReuseDetected: 1,
			},
			Histograms: map[authcore.MetricID][]uint64{
				authcore.MetricRotateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: map[authcore.AuditSeverity]uint64{
			authcore.SeverityInfo:     2,
			authcore.SeverityCritical: 1,
		},
	}
}

func TestCollectorCounters(t *testing.T) {
	c := NewCollectorFromSource(sampleSource())

	want := `
# HELP authcore_login_success_total Successful logins.
# TYPE authcore_login_success_total counter
authcore_login_success_total 7
# HELP authcore_refresh_reuse_detected_total Detected refresh token reuse.
# TYPE authcore_refresh_reuse_detected_total counter
authcore_refresh_reuse_detected_total 1
# HELP authcore_audit_dropped_total Audit events lost to dispatcher backpressure or shutdown.
# TYPE authcore_audit_dropped_total counter
authcore_audit_dropped_total{severity="critical"} 1
authcore_audit_dropped_total{severity="info"} 2
authcore_audit_dropped_total{severity="warning"} 0
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(want),
		"authcore_login_success_total",
		"authcore_refresh_reuse_detected_total",
		"authcore_audit_dropped_total",
	); err != nil {
		t.Fatal(err)
	}

	total := len(internaldefs.CounterDefs) + len(internaldefs.HistogramDefs) + len(authcore.AuditSeverities)
	if n := testutil.CollectAndCount(c); n != total {
		t.Fatalf("collected %d metrics, want %d", n, total)
	}
}

func TestCollectorHistogram(t *testing.T) {
	c := NewCollectorFromSource(sampleSource())
	if err := testutil.CollectAndCompare(c, strings.NewReader(`
# HELP authcore_rotate_latency_seconds Refresh token rotation latency.
# TYPE authcore_rotate_latency_seconds histogram
authcore_rotate_latency_seconds_bucket{le="0.005"} 1
authcore_rotate_latency_seconds_bucket{le="0.01"} 3
authcore_rotate_latency_seconds_bucket{le="0.025"} 6
authcore_rotate_latency_seconds_bucket{le="0.05"} 10
authcore_rotate_latency_seconds_bucket{le="0.1"} 15
authcore_rotate_latency_seconds_bucket{le="0.25"} 21
authcore_rotate_latency_seconds_bucket{le="0.5"} 28
authcore_rotate_latency_seconds_bucket{le="+Inf"} 36
authcore_rotate_latency_seconds_sum 0
authcore_rotate_latency_seconds_count 36
`), "authcore_rotate_latency_seconds"); err != nil {
		t.Fatal(err)
	}
}

func TestHandlerServesEngineMetrics(t *testing.T) {
	cfg := authcore.DefaultConfig()
	cfg.JWT.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.JWT.Issuer = "authcore-test"
	cfg.JWT.Audience = "authcore-clients"
	engine, err := authcore.New().WithConfig(cfg).WithStore(store.NewMemoryStore()).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer engine.Close()

	engine.Rotate(t.Context(), "never-issued")

	rec := httptest.NewRecorder()
	Handler(engine).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "authcore_refresh_not_found_total 1") {
		t.Fatalf("missing not_found counter:\n%s", body)
	}
}
