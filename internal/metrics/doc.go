// Package metrics folds the RESULTS payloads of one benchmark run into a
// single [Report].
//
// # Aggregation
//
// An [Aggregator] accepts one payload per endpoint:
//
//	agg := metrics.NewAggregator()
//	if err := agg.Ingest(url, payload); err != nil {
//		return err
//	}
//	report := agg.Report(len(endpoints))
//
// Channel, subscriber and message counters are summed. Run times and message
// lengths are kept per contributor in arrival order. Latency histograms are
// merged, and the merged copies stay reachable through
// [Report.PublishHistogram] and [Report.DeliveryHistogram] for charting.
//
// # Rates
//
// Rates divide by the longest contributor run time. A [Rate] with a zero
// denominator is undefined and renders as "undefined" in text and null in
// JSON and YAML.
//
// # Thread Safety
//
// Aggregator is safe for concurrent use. Ingest rejects a second payload
// from the same endpoint.
package metrics
