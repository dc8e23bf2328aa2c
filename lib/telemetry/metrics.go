package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var crawlMeter = otel.Meter("kadai.crawl")
var itemsEmitted, _ = crawlMeter.Int64Counter("crawl.items_emitted")
var itemsSkipped, _ = crawlMeter.Int64Counter("crawl.items_skipped")
var crawlOutcomes, _ = crawlMeter.Int64Counter("crawl.outcomes")

func RecordItemEmitted(ctx context.Context, platform string) {
	itemsEmitted.Add(ctx, 1, metric.WithAttributes(attribute.String("platform", platform)))
}

func RecordItemSkipped(ctx context.Context, platform, reason string) {
	itemsSkipped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("platform", platform),
		attribute.String("reason", reason),
	))
}

func RecordOutcome(ctx context.Context, platform, status, reason string) {
	crawlOutcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("platform", platform),
		attribute.String("status", status),
		attribute.String("reason", reason),
	))
}
