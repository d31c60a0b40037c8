package api

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/AaronLay10/SentientTimeline/internal/events"
	"github.com/AaronLay10/SentientTimeline/internal/orchestrator"
	"github.com/AaronLay10/SentientTimeline/internal/version"
)

// MetricsSource supplies runtime counters for /metrics. Any func may be
// nil.
type MetricsSource struct {
	Stats         func() orchestrator.StatsSnapshot
	Ticks         func() uint64
	Live          func() int
	MQTTConnected func() bool
}

// metricsHandler returns Prometheus-compatible metrics in text format.
func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	src := s.opts.Metrics
	var stats orchestrator.StatsSnapshot
	if src.Stats != nil {
		stats = src.Stats()
	}
	var ticks uint64
	if src.Ticks != nil {
		ticks = src.Ticks()
	}
	live := 0
	if src.Live != nil {
		live = src.Live()
	}
	mqttConnected := 0
	if src.MQTTConnected != nil && src.MQTTConnected() {
		mqttConnected = 1
	}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	writeMetric := func(name, mtype, help string, value interface{}, labels string) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		fmt.Fprintf(w, "%s{%s} %v\n", name, labels, value)
	}

	labels := fmt.Sprintf(`room="%s",instance="%s",version="%s"`, s.opts.RoomName, hostname, version.Version)

	writeMetric("sentient_uptime_seconds", "gauge",
		"Number of seconds since the sequencer started", time.Since(s.started).Seconds(), labels)
	writeMetric("sentient_timeline_instances_live", "gauge",
		"Number of live timeline instances", live, labels)
	writeMetric("sentient_timeline_ticks_total", "counter",
		"Total number of scheduler ticks", ticks, labels)
	writeMetric("sentient_timeline_instances_started_total", "counter",
		"Total number of timeline instances started", stats.Started, labels)
	writeMetric("sentient_timeline_instances_completed_total", "counter",
		"Total number of timeline instances that ran to completion", stats.Completed, labels)
	writeMetric("sentient_timeline_instances_stopped_total", "counter",
		"Total number of timeline instances stopped early", stats.Stopped, labels)
	writeMetric("sentient_timeline_nodes_fired_total", "counter",
		"Total number of nodes fired", stats.NodesFired, labels)
	writeMetric("sentient_timeline_clip_ticks_total", "counter",
		"Total number of clip ticks delivered", stats.ClipTicks, labels)
	writeMetric("sentient_events_total", "counter",
		"Total number of events emitted since startup", events.TotalCount(), labels)
	writeMetric("sentient_ws_dropped_events_total", "counter",
		"Total number of live events skipped for slow websocket clients", events.DroppedCount(), labels)
	writeMetric("sentient_mqtt_connected", "gauge",
		"Whether MQTT broker is connected (1) or not (0)", mqttConnected, labels)
	writeMetric("sentient_ws_clients", "gauge",
		"Number of active WebSocket client connections", events.SubscriberCount(), labels)
}
