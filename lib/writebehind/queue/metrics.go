package queue

import (
	"fmt"
	"io"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

// queueMetrics holds the metrics of one queue stripe. Every stripe owns a
// separate set, so queues with the same name can coexist (e.g. in tests).
type queueMetrics struct {
	set *metrics.Set

	enqueued      *metrics.Counter
	rejected      *metrics.Counter
	applied       *metrics.Counter
	failed        *metrics.Counter
	retried       *metrics.Counter
	coalesced     *metrics.Counter
	batchSize     *metrics.Histogram
	flushDuration *metrics.Histogram
}

func newQueueMetrics(name string, stripe int, pending func() float64) *queueMetrics {
	set := metrics.NewSet()
	label := fmt.Sprintf(`{queue=%q,stripe="%d"}`, name, stripe)

	m := &queueMetrics{
		set:           set,
		enqueued:      set.NewCounter("wbkv_queue_enqueued_total" + label),
		rejected:      set.NewCounter("wbkv_queue_rejected_total" + label),
		applied:       set.NewCounter("wbkv_queue_applied_total" + label),
		failed:        set.NewCounter("wbkv_queue_failed_total" + label),
		retried:       set.NewCounter("wbkv_queue_retried_total" + label),
		coalesced:     set.NewCounter("wbkv_queue_coalesced_total" + label),
		batchSize:     set.NewHistogram("wbkv_queue_batch_size" + label),
		flushDuration: set.NewHistogram("wbkv_queue_flush_duration_seconds" + label),
	}
	set.NewGauge("wbkv_queue_pending"+label, pending)

	return m
}

func (m *queueMetrics) observeFlush(ops int, start time.Time) {
	m.batchSize.Update(float64(ops))
	m.flushDuration.Update(time.Since(start).Seconds())
}

func (m *queueMetrics) writePrometheus(w io.Writer) {
	m.set.WritePrometheus(w)
}
