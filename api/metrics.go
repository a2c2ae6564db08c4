package api

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	syncSpanName    = "tasksync.sync_pass"
	syncEventName   = "sync.request.metrics"
	syncEventDomain = "tasksync"
	syncRoute       = "/api/tasks/sync"
)

// syncRequestMetrics collects stage timings and the outcome of one sync
// request, emitting them as a structured log entry tied to an otel span.
type syncRequestMetrics struct {
	logger *log.Logger
	span   trace.Span
	start  time.Time

	authDuration time.Duration
	lockDuration time.Duration
	syncDuration time.Duration
	imported     int
	errorStage   string
}

func newSyncRequestMetrics(ctx context.Context, logger *log.Logger) (*syncRequestMetrics, context.Context) {
	m := &syncRequestMetrics{logger: logger, start: time.Now()}
	spanCtx, span := otel.Tracer("tasksync-api/api").Start(ctx, syncSpanName)
	m.span = span
	return m, spanCtx
}

func (m *syncRequestMetrics) ObserveAuth(d time.Duration) {
	if d > 0 {
		m.authDuration = d
	}
}

func (m *syncRequestMetrics) ObserveLock(d time.Duration) {
	if d > 0 {
		m.lockDuration = d
	}
}

func (m *syncRequestMetrics) ObserveSync(d time.Duration) {
	if d > 0 {
		m.syncDuration = d
	}
}

func (m *syncRequestMetrics) SetImported(count int) {
	if count < 0 {
		count = 0
	}
	m.imported = count
}

func (m *syncRequestMetrics) SetErrorStage(stage string) {
	if stage != "" {
		m.errorStage = stage
	}
}

func (m *syncRequestMetrics) Log(status int, err error) {
	if m == nil || m.logger == nil {
		return
	}

	totalMs := durationToMillis(time.Since(m.start))
	fields := log.Fields{
		"event.name":   syncEventName,
		"event.domain": syncEventDomain,
		"route":        syncRoute,
		"status":       status,
		"total_ms":     totalMs,
		"imported":     m.imported,
	}
	if m.authDuration > 0 {
		fields["auth_ms"] = durationToMillis(m.authDuration)
	}
	if m.lockDuration > 0 {
		fields["lock_ms"] = durationToMillis(m.lockDuration)
	}
	if m.syncDuration > 0 {
		fields["sync_ms"] = durationToMillis(m.syncDuration)
	}
	if m.errorStage != "" {
		fields["error_stage"] = m.errorStage
	}
	if err != nil {
		fields["error"] = err.Error()
	}

	if m.span != nil {
		attrs := []attribute.KeyValue{
			attribute.String("http.route", syncRoute),
			attribute.Int("http.status_code", status),
			attribute.Float64("tasksync.sync.total_ms", totalMs),
			attribute.Int("tasksync.sync.imported", m.imported),
		}
		if m.errorStage != "" {
			attrs = append(attrs, attribute.String("tasksync.sync.error_stage", m.errorStage))
		}
		m.span.SetAttributes(attrs...)
		m.span.AddEvent("observability.event")
		if err != nil {
			m.span.SetStatus(codes.Error, err.Error())
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		if sc := m.span.SpanContext(); sc.HasTraceID() {
			fields["trace_id"] = sc.TraceID().String()
		}
		m.span.End()
	}

	m.logger.WithFields(fields).Info("observability.event")
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
