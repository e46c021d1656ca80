package otel

import (
	"context"
	"maps"
	"sync"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrEthical07/authcore"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot authcore.MetricsSnapshot
	dropped  map[authcore.AuditSeverity]uint64
}

func (f *fakeSource) MetricsSnapshot() authcore.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := authcore.MetricsSnapshot{
		Counters:   maps.Clone(f.snapshot.Counters),
		Histograms: make(map[authcore.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, buckets := range f.snapshot.Histograms {
		out.Histograms[k] = append([]uint64(nil), buckets...)
	}
	return out
}

func (f *fakeSource) AuditDropped() map[authcore.AuditSeverity]uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return maps.Clone(f.dropped)
}

func newReader() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

func findInt64(rm metricdata.ResourceMetrics, name string) (int64, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				if len(data.DataPoints) > 0 {
					return data.DataPoints[0].Value, true
				}
			case metricdata.Gauge[int64]:
				if len(data.DataPoints) > 0 {
					return data.DataPoints[0].Value, true
				}
			}
		}
	}
	return 0, false
}

func droppedBySeverity(rm metricdata.ResourceMetrics) map[string]int64 {
	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "authcore_audit_dropped_total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				sev, _ := dp.Attributes.Value(attribute.Key("severity"))
				out[sev.AsString()] = dp.Value
			}
		}
	}
	return out
}

func TestExporterObservesSnapshot(t *testing.T) {
	reader, provider := newReader()

	src := &fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters: map[authcore.MetricID]uint64{
				authcore.MetricRefreshReuseDetected: 3,
			},
			Histograms: map[authcore.MetricID][]uint64{
				authcore.MetricRotateLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: map[authcore.AuditSeverity]uint64{authcore.SeverityCritical: 1},
	}

	exp, err := NewExporterFromSource(provider.Meter("authcore-test"), src)
	if err != nil {
		t.Fatalf("NewExporterFromSource: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	cases := map[string]int64{
		"authcore_refresh_reuse_detected_total":          3,
		"authcore_login_success_total":                   0,
		"authcore_rotate_latency_seconds_bucket_le_0_01": 2,
		"authcore_rotate_latency_seconds_bucket_le_inf":  8,
		"authcore_rotate_latency_seconds_count":          8,
	}
	for name, want := range cases {
		got, ok := findInt64(rm, name)
		if !ok {
			t.Fatalf("metric %s not collected", name)
		}
		if got != want {
			t.Fatalf("%s = %d, want %d", name, got, want)
		}
	}

	dropped := droppedBySeverity(rm)
	wantDropped := map[string]int64{"info": 0, "warning": 0, "critical": 1}
	if !maps.Equal(dropped, wantDropped) {
		t.Fatalf("audit dropped = %v, want %v", dropped, wantDropped)
	}
}

func TestExporterRejectsNil(t *testing.T) {
	_, provider := newReader()
	if _, err := NewExporterFromSource(provider.Meter("authcore-test"), nil); err != ErrNilSource {
		t.Fatalf("nil source: got %v", err)
	}
	if _, err := NewExporterFromSource(nil, &fakeSource{}); err != ErrNilMeter {
		t.Fatalf("nil meter: got %v", err)
	}
	if _, err := NewExporter(provider.Meter("authcore-test"), nil); err != ErrNilSource {
		t.Fatalf("nil engine: got %v", err)
	}
}

func TestExporterConcurrentCollect(t *testing.T) {
	reader, provider := newReader()

	src := &fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters:   map[authcore.MetricID]uint64{authcore.MetricLoginSuccess: 1},
			Histograms: map[authcore.MetricID][]uint64{},
		},
	}
	exp, err := NewExporterFromSource(provider.Meter("authcore-test"), src)
	if err != nil {
		t.Fatalf("NewExporterFromSource: %v", err)
	}
	defer exp.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[authcore.MetricLoginSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
