package api

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupTracing(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = provider.Shutdown(context.Background())
	})
	return exporter
}

func TestSyncRequestMetricsLog(t *testing.T) {
	exporter := setupTracing(t)
	logger, hook := test.NewNullLogger()

	metrics, spanCtx := newSyncRequestMetrics(context.Background(), logger)
	if spanCtx == nil {
		t.Fatal("expected a span context")
	}
	metrics.ObserveAuth(2 * time.Millisecond)
	metrics.ObserveLock(time.Millisecond)
	metrics.ObserveSync(5 * time.Millisecond)
	metrics.SetImported(3)
	metrics.Log(http.StatusOK, nil)

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("expected a log entry")
	}
	if entry.Level != log.InfoLevel {
		t.Fatalf("unexpected level: %v", entry.Level)
	}
	if entry.Data["event.name"] != syncEventName {
		t.Fatalf("unexpected event name: %v", entry.Data["event.name"])
	}
	if entry.Data["event.domain"] != syncEventDomain {
		t.Fatalf("unexpected event domain: %v", entry.Data["event.domain"])
	}
	if entry.Data["route"] != syncRoute {
		t.Fatalf("unexpected route: %v", entry.Data["route"])
	}
	if entry.Data["status"] != http.StatusOK {
		t.Fatalf("unexpected status: %v", entry.Data["status"])
	}
	if entry.Data["imported"] != 3 {
		t.Fatalf("unexpected imported count: %v", entry.Data["imported"])
	}
	for _, key := range []string{"auth_ms", "lock_ms", "sync_ms", "total_ms", "trace_id"} {
		if _, ok := entry.Data[key]; !ok {
			t.Fatalf("expected %s field, got %v", key, entry.Data)
		}
	}
	if _, ok := entry.Data["error_stage"]; ok {
		t.Fatal("successful pass must not carry an error stage")
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected one span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name != syncSpanName {
		t.Fatalf("unexpected span name: %q", span.Name)
	}
	var sawRoute, sawImported bool
	for _, attr := range span.Attributes {
		switch string(attr.Key) {
		case "http.route":
			sawRoute = attr.Value.AsString() == syncRoute
		case "tasksync.sync.imported":
			sawImported = attr.Value.AsInt64() == 3
		}
	}
	if !sawRoute || !sawImported {
		t.Fatalf("missing span attributes: route=%v imported=%v", sawRoute, sawImported)
	}
}

func TestSyncRequestMetricsLogError(t *testing.T) {
	exporter := setupTracing(t)
	logger, hook := test.NewNullLogger()

	metrics, _ := newSyncRequestMetrics(context.Background(), logger)
	metrics.SetErrorStage("lock_busy")
	metrics.Log(http.StatusConflict, errors.New("sync already running"))

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("expected a log entry")
	}
	if entry.Data["error_stage"] != "lock_busy" {
		t.Fatalf("unexpected error stage: %v", entry.Data["error_stage"])
	}
	if entry.Data["error"] != "sync already running" {
		t.Fatalf("unexpected error field: %v", entry.Data["error"])
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected one span, got %d", len(spans))
	}
	if code := spans[0].Status.Code; code.String() != "Error" {
		t.Fatalf("expected error span status, got %v", code)
	}
}

func TestSyncRequestMetricsSkipsZeroDurations(t *testing.T) {
	setupTracing(t)
	logger, hook := test.NewNullLogger()

	metrics, _ := newSyncRequestMetrics(context.Background(), logger)
	metrics.Log(http.StatusBadRequest, nil)

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("expected a log entry")
	}
	for _, key := range []string{"auth_ms", "lock_ms", "sync_ms"} {
		if _, ok := entry.Data[key]; ok {
			t.Fatalf("unobserved stage %s must not be logged", key)
		}
	}
}
