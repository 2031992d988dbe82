// Package metrics exposes retag run statistics in Prometheus format.
//
// mailtagger runs from cron or a mail hook and exits, so metrics are written
// to a node_exporter textfile instead of being served.
package metrics

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/joshsymonds/mailtagger/internal/tagger"
)

// Run collects the metrics of one retag run on a private registry.
type Run struct {
	registry *prometheus.Registry

	MessagesProcessed prometheus.Counter
	InboxMessages     prometheus.Gauge
	TagOperations     *prometheus.CounterVec
	LastRun           prometheus.Gauge
}

// NewRun registers the run metrics on a fresh registry.
func NewRun() *Run {
	r := &Run{
		registry: prometheus.NewRegistry(),
		MessagesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailtagger_messages_processed_total",
			Help: "Messages retagged by the last run.",
		}),
		InboxMessages: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mailtagger_inbox_messages",
			Help: "Messages left in the inbox by the last run.",
		}),
		TagOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailtagger_tag_operations_total",
			Help: "Tag operations applied, by operation and dry-run mode.",
		}, []string{"op", "dry_run"}),
		LastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mailtagger_last_run_timestamp_seconds",
			Help: "Unix time of the last completed run.",
		}),
	}
	r.registry.MustRegister(r.MessagesProcessed, r.InboxMessages, r.TagOperations, r.LastRun)
	return r
}

// MessageProcessed implements tagger.Recorder.
func (r *Run) MessageProcessed(inbox bool) {
	r.MessagesProcessed.Inc()
	if inbox {
		r.InboxMessages.Inc()
	}
}

// TagApplied implements tagger.Recorder.
func (r *Run) TagApplied(kind tagger.OpKind, dryRun bool) {
	r.TagOperations.WithLabelValues(kind.String(), strconv.FormatBool(dryRun)).Inc()
}

// RunFinished implements tagger.Recorder. InboxMessages is already counted
// per message, so a run that fails midway still reports its partial count.
func (r *Run) RunFinished(tagger.Summary) {
	r.LastRun.SetToCurrentTime()
}

// Gatherer exposes the registry, mainly for tests.
func (r *Run) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteTextfile atomically writes the metrics in text exposition format.
func (r *Run) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}

var _ tagger.Recorder = (*Run)(nil)
