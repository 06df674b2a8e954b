package statsdb

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"
)

var (
	mergeFailures = metrics.GetOrCreateCounter("dstats_merge_failures_total")
	syncDuration  = metrics.GetOrCreateHistogram("dstats_sync_duration_seconds")
)

func updatesCounter(role string) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`dstats_updates_total{role=%q}`, role))
}

func syncCounter(status SyncStatus) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`dstats_sync_total{status=%q}`, status))
}

func absorbCounter(ack Ack) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`dstats_absorb_total{ack=%q}`, ack))
}
