package taonet

import (
	"fmt"
	"io"
	"net/http"

	"github.com/VictoriaMetrics/metrics"
	"go.uber.org/atomic"
)

var (
	connectionsTotal = metrics.NewCounter("taonet_connections_total")
	bytesRead        = metrics.NewCounter("taonet_bytes_read_total")
	bytesWritten     = metrics.NewCounter("taonet_bytes_written_total")
	tasksQueued      = metrics.NewCounter("taonet_tasks_queued_total")
	wakeups          = metrics.NewCounter("taonet_wakeups_total")
	reconnects       = metrics.NewCounter("taonet_reconnects_total")
	heartBeats       = metrics.NewCounter("taonet_heartbeats_total")

	liveConns = atomic.NewInt64(0)
	_         = metrics.NewGauge("taonet_connections_active", func() float64 {
		return float64(liveConns.Load())
	})
)

// MonitorOn serves the metrics in Prometheus text format on
// http://:port/metrics in the background.
func MonitorOn(port int) {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w, true)
	})
	go func() {
		if err := http.ListenAndServe(fmt.Sprintf(":%d", port), mux); err != nil {
			logErrorf("monitor on port %d: %v", port, err)
			return
		}
	}()
}

// WriteMetrics writes the runtime metrics to w in Prometheus text format.
func WriteMetrics(w io.Writer) {
	metrics.WritePrometheus(w, false)
}
