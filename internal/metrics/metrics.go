package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MessagesSynced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_messages_synced_total",
		Help: "Messages merged into the open conversation store, any channel.",
	})
	Sends = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsync_sends_total",
		Help: "Outgoing sends by result.",
	}, []string{"result"})
	Events = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsync_push_events_total",
		Help: "Inbound push events by type.",
	}, []string{"type"})
	LoadOlderPages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_load_older_pages_total",
		Help: "Older history pages fetched.",
	})
	Reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_reconnects_total",
		Help: "Push connections re-established after a drop.",
	})
)

// Handler returns an http.Handler for Prometheus scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
