package storage

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/meitarbe/cognetivy/internal/telemetry"
)

type metrics struct {
	eventsAppended     metric.Int64Counter
	versionsWritten    metric.Int64Counter
	itemsWritten       metric.Int64Counter
	validationFailures metric.Int64Counter
}

// newMetrics registers the storage counters on the global meter. With no
// exporter configured the counters are no-ops.
func newMetrics() *metrics {
	meter := telemetry.Meter("cognetivy/storage")
	events, _ := meter.Int64Counter("cognetivy.events.appended",
		metric.WithDescription("Events appended to run event logs"),
	)
	versions, _ := meter.Int64Counter("cognetivy.versions.written",
		metric.WithDescription("Workflow versions written"),
	)
	items, _ := meter.Int64Counter("cognetivy.collection.items_written",
		metric.WithDescription("Collection items written"),
	)
	failures, _ := meter.Int64Counter("cognetivy.collection.validation_failures",
		metric.WithDescription("Collection writes rejected by schema or provenance validation"),
	)
	return &metrics{
		eventsAppended:     events,
		versionsWritten:    versions,
		itemsWritten:       items,
		validationFailures: failures,
	}
}

func (m *metrics) eventAppended(ctx context.Context, eventType string) {
	if m == nil || m.eventsAppended == nil {
		return
	}
	m.eventsAppended.Add(ctx, 1, metric.WithAttributes(attribute.String("type", eventType)))
}

func (m *metrics) versionWritten(ctx context.Context, workflowID string) {
	if m == nil || m.versionsWritten == nil {
		return
	}
	m.versionsWritten.Add(ctx, 1, metric.WithAttributes(attribute.String("workflow_id", workflowID)))
}

func (m *metrics) collectionWritten(ctx context.Context, kind string, n int) {
	if m == nil || m.itemsWritten == nil {
		return
	}
	m.itemsWritten.Add(ctx, int64(n), metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *metrics) validationFailed(ctx context.Context, kind string) {
	if m == nil || m.validationFailures == nil {
		return
	}
	m.validationFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}
