// Package metrics contains all application-logic metrics
package metrics

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"
)

var (
	iterations          = metrics.NewCounter("roundtrip_iterations_total")
	bundlesSubmitted    = metrics.NewCounter("roundtrip_bundles_submitted_total")
	bundlesSkipped      = metrics.NewCounter("roundtrip_bundles_skipped_total")
	relayFailures       = metrics.NewCounter("roundtrip_relay_failures_total")
	anchorRefreshes     = metrics.NewCounter("roundtrip_anchor_refresh_total")
	iterationDurationMs = metrics.NewHistogram("roundtrip_iteration_duration_milliseconds")
)

const abortedIterationsLabel = `roundtrip_iterations_aborted_total{stage="%s"}`

func IncIterations() {
	iterations.Inc()
}

func IncBundlesSubmitted() {
	bundlesSubmitted.Inc()
}

func IncBundlesSkipped() {
	bundlesSkipped.Inc()
}

func IncRelayFailures() {
	relayFailures.Inc()
}

func IncAnchorRefresh() {
	anchorRefreshes.Inc()
}

func IncIterationsAborted(stage string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(abortedIterationsLabel, stage)).Inc()
}

func RecordIterationDuration(duration int64) {
	iterationDurationMs.Update(float64(duration))
}
