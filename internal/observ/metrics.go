package observ

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookEventsTotal counts processed webhook entries by kind and
	// outcome (ok, duplicate, skipped, error).
	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wainbox_webhook_events_total",
			Help: "Webhook entries processed, by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// OutboundSendsTotal counts outbound provider calls by type and
	// result (sent, failed).
	OutboundSendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wainbox_outbound_sends_total",
			Help: "Outbound sends, by message type and result",
		},
		[]string{"type", "result"},
	)

	// QueuedSweptTotal counts messages the sweeper moved queued→failed.
	// A non-zero rate means sends are crashing between the insert and
	// the provider call patch.
	QueuedSweptTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wainbox_queued_swept_total",
			Help: "Outbound messages swept from queued to failed",
		},
	)

	// StreamClientsActive tracks connected inbox websocket clients.
	StreamClientsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wainbox_stream_clients_active",
			Help: "Active inbox event stream connections",
		},
	)
)
