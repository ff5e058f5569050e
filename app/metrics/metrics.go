// Package metrics defines prometheus metrics of the bot, registered in the default registry
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Messages counts moderated messages by result: clean, spam, skipped, error
	Messages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tg_rspamd_messages_total",
		Help: "The total number of messages processed by the moderator",
	}, []string{"result"})

	// Actions counts moderation actions: ban, delete, warn
	Actions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tg_rspamd_actions_total",
		Help: "The total number of moderation actions",
	}, []string{"action"})

	ScanErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tg_rspamd_scan_errors_total",
		Help: "The total number of failed rspamd scans",
	})

	ScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tg_rspamd_scan_duration_seconds",
		Help:    "Duration of rspamd scan requests",
		Buckets: prometheus.DefBuckets,
	})
)
