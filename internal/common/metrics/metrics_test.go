package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// === Circuit breaker metrics tests ===

func TestMediatorCircuitBreakerState_Values(t *testing.T) {
	gauge := MediatorCircuitBreakerState.WithLabelValues("http://target.local")

	gauge.Set(CircuitBreakerClosed)
	gauge.Set(CircuitBreakerOpen)
	gauge.Set(CircuitBreakerHalfOpen)

	if gauge == nil {
		t.Error("Expected gauge to be non-nil")
	}
}

func TestMediatorCircuitBreakerTrips_Counter(t *testing.T) {
	MediatorCircuitBreakerTrips.WithLabelValues("http://failing-target.local").Inc()

	counter := MediatorCircuitBreakerTrips.WithLabelValues("http://failing-target.local")
	if counter == nil {
		t.Error("Expected counter to be non-nil")
	}
}

// === Scheduler metrics tests ===

func TestSchedulerJobRuns_Labels(t *testing.T) {
	results := []string{"ok", "error", "skipped_overlap"}
	for _, result := range results {
		SchedulerJobRuns.WithLabelValues("reminder:scan", result).Inc()
	}

	counter := SchedulerJobRuns.WithLabelValues("reminder:scan", "ok")
	if counter == nil {
		t.Error("Expected counter to be non-nil")
	}
}

func TestSchedulerJobDuration_Observe(t *testing.T) {
	SchedulerJobDuration.WithLabelValues("reminder:scan").Observe(0.25)

	histogram := SchedulerJobDuration.WithLabelValues("reminder:scan")
	if histogram == nil {
		t.Error("Expected histogram to be non-nil")
	}
}

func TestSchedulerMisfiresDropped_Counter(t *testing.T) {
	SchedulerMisfiresDropped.WithLabelValues("reminder:scan").Inc()

	counter := SchedulerMisfiresDropped.WithLabelValues("reminder:scan")
	if counter == nil {
		t.Error("Expected counter to be non-nil")
	}
}

// === Batch worker metrics tests ===

func TestBatchWorkerRowsProcessed_Labels(t *testing.T) {
	BatchWorkerRowsProcessed.WithLabelValues("sent").Inc()
	BatchWorkerRowsProcessed.WithLabelValues("failed").Inc()

	counter := BatchWorkerRowsProcessed.WithLabelValues("sent")
	if counter == nil {
		t.Error("Expected counter to be non-nil")
	}
}

func TestBatchWorkerPollDuration_Observe(t *testing.T) {
	BatchWorkerPollDuration.Observe(0.02)

	if BatchWorkerPollDuration == nil {
		t.Error("Expected histogram to be non-nil")
	}
}

func TestBatchWorkerSendDuration_Observe(t *testing.T) {
	BatchWorkerSendDuration.Observe(0.5)

	if BatchWorkerSendDuration == nil {
		t.Error("Expected histogram to be non-nil")
	}
}

// === HTTP API metrics tests ===

func TestHTTPRequestsTotal_Labels(t *testing.T) {
	methods := []string{"GET", "POST"}
	paths := []string{"/license/blob", "/cloud-init/vpn-config", "/mailer/webhook"}
	statuses := []string{"200", "400", "401", "404"}

	for _, method := range methods {
		for _, path := range paths {
			for _, status := range statuses {
				HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
			}
		}
	}

	counter := HTTPRequestsTotal.WithLabelValues("GET", "/license/blob", "200")
	if counter == nil {
		t.Error("Expected counter to be non-nil")
	}
}

func TestHTTPRequestDuration_Observe(t *testing.T) {
	HTTPRequestDuration.WithLabelValues("GET", "/license/blob").Observe(0.015)
	HTTPRequestDuration.WithLabelValues("POST", "/license/queue/acquire").Observe(0.150)

	histogram := HTTPRequestDuration.WithLabelValues("GET", "/license/blob")
	if histogram == nil {
		t.Error("Expected histogram to be non-nil")
	}
}

func TestHTTPActiveConnections_Gauge(t *testing.T) {
	HTTPActiveConnections.Set(10)
	HTTPActiveConnections.Inc()
	HTTPActiveConnections.Dec()
	HTTPActiveConnections.Add(5)
	HTTPActiveConnections.Sub(3)

	desc := HTTPActiveConnections.Desc()
	if desc == nil {
		t.Error("Expected Desc to be non-nil")
	}
}

// === Circuit breaker constants tests ===

func TestCircuitBreakerConstants(t *testing.T) {
	if CircuitBreakerClosed != 0 {
		t.Errorf("Expected CircuitBreakerClosed=0, got %d", CircuitBreakerClosed)
	}
	if CircuitBreakerOpen != 1 {
		t.Errorf("Expected CircuitBreakerOpen=1, got %d", CircuitBreakerOpen)
	}
	if CircuitBreakerHalfOpen != 2 {
		t.Errorf("Expected CircuitBreakerHalfOpen=2, got %d", CircuitBreakerHalfOpen)
	}
}

// === Counter/gauge/histogram sanity tests ===

func TestCounterValue(t *testing.T) {
	reg := prometheus.NewRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter",
		Help: "Test counter",
	})

	reg.MustRegister(counter)

	counter.Add(5)

	val := testutil.ToFloat64(counter)
	if val != 5 {
		t.Errorf("Expected counter value 5, got %f", val)
	}

	counter.Inc()

	val = testutil.ToFloat64(counter)
	if val != 6 {
		t.Errorf("Expected counter value 6, got %f", val)
	}
}

func TestGaugeValue(t *testing.T) {
	reg := prometheus.NewRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "test_gauge",
		Help: "Test gauge",
	})

	reg.MustRegister(gauge)

	gauge.Set(100)
	val := testutil.ToFloat64(gauge)
	if val != 100 {
		t.Errorf("Expected gauge value 100, got %f", val)
	}

	gauge.Add(50)
	val = testutil.ToFloat64(gauge)
	if val != 150 {
		t.Errorf("Expected gauge value 150, got %f", val)
	}

	gauge.Sub(30)
	val = testutil.ToFloat64(gauge)
	if val != 120 {
		t.Errorf("Expected gauge value 120, got %f", val)
	}
}

func TestHistogramBuckets(t *testing.T) {
	reg := prometheus.NewRegistry()

	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_histogram",
		Help:    "Test histogram",
		Buckets: []float64{0.1, 0.5, 1.0, 5.0},
	})

	reg.MustRegister(histogram)

	histogram.Observe(0.05)
	histogram.Observe(0.25)
	histogram.Observe(0.75)
	histogram.Observe(2.5)
	histogram.Observe(10.0)
}

// === Integration-style tests ===

func TestSchedulerMetricsIntegration(t *testing.T) {
	jobID := "integration-test-job"

	for i := 0; i < 20; i++ {
		result := "ok"
		if i%10 == 0 {
			result = "error"
		}
		SchedulerJobRuns.WithLabelValues(jobID, result).Inc()
		SchedulerJobDuration.WithLabelValues(jobID).Observe(float64(i) * 0.01)
	}
}

func TestMediatorMetricsIntegration(t *testing.T) {
	target := "http://integration-test.local"

	MediatorCircuitBreakerState.WithLabelValues(target).Set(CircuitBreakerClosed)
	MediatorCircuitBreakerState.WithLabelValues(target).Set(CircuitBreakerOpen)
	MediatorCircuitBreakerTrips.WithLabelValues(target).Inc()
	MediatorCircuitBreakerState.WithLabelValues(target).Set(CircuitBreakerHalfOpen)
	MediatorCircuitBreakerState.WithLabelValues(target).Set(CircuitBreakerClosed)
}

func BenchmarkCounterInc(b *testing.B) {
	counter := BatchWorkerRowsProcessed.WithLabelValues("sent")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		counter.Inc()
	}
}

func BenchmarkHistogramObserve(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		BatchWorkerSendDuration.Observe(0.123)
	}
}

func BenchmarkGaugeSet(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		HTTPActiveConnections.Set(float64(i))
	}
}
