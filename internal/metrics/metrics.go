package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ChannelReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eventsync_channel_reconnects_total",
		Help: "Successful realtime channel reconnects.",
	})

	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eventsync_cache_hits_total",
		Help: "Resource cache reads served without a fetch.",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eventsync_cache_misses_total",
		Help: "Resource cache reads that triggered a fetch.",
	})

	NoteSaves = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventsync_note_saves_total",
		Help: "Note save attempts by result.",
	}, []string{"result"})
)
