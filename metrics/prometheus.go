package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/justapithecus/leprechaun/types"
)

const namespace = "leprechaun"

// StatusFunc returns the latest supervisor snapshot, or nil before the first tick.
type StatusFunc func() *types.Snapshot

// Exporter exposes a Collector and live miner state as Prometheus metrics.
// Values are read at scrape time.
type Exporter struct {
	collector *Collector
	status    StatusFunc

	switches      *prometheus.Desc
	crashes       *prometheus.Desc
	launches      *prometheus.Desc
	stops         *prometheus.Desc
	logLines      *prometheus.Desc
	crashWriteErr *prometheus.Desc
	ticks         *prometheus.Desc
	reloads       *prometheus.Desc
	dropped       *prometheus.Desc
	running       *prometheus.Desc
	broken        *prometheus.Desc
	active        *prometheus.Desc
	hashrate      *prometheus.Desc
	paused        *prometheus.Desc
}

// NewExporter creates an exporter. status may be nil.
func NewExporter(c *Collector, status StatusFunc) *Exporter {
	stack := []string{"stack"}
	miner := []string{"stack", "miner"}
	return &Exporter{
		collector:     c,
		status:        status,
		switches:      prometheus.NewDesc(namespace+"_switches_total", "Active miner changes.", stack, nil),
		crashes:       prometheus.NewDesc(namespace+"_crashes_total", "Miners quarantined after an unexpected exit or launch failure.", stack, nil),
		launches:      prometheus.NewDesc(namespace+"_launches_total", "Backend launch attempts by result.", []string{"stack", "result"}, nil),
		stops:         prometheus.NewDesc(namespace+"_graceful_stops_total", "Backends stopped by the supervisor.", stack, nil),
		logLines:      prometheus.NewDesc(namespace+"_log_lines_total", "Captured backend output lines.", stack, nil),
		crashWriteErr: prometheus.NewDesc(namespace+"_crash_record_failures_total", "Crash records that could not be written.", stack, nil),
		ticks:         prometheus.NewDesc(namespace+"_ticks_total", "Supervisor ticks.", nil, nil),
		reloads:       prometheus.NewDesc(namespace+"_reloads_total", "Configuration reloads by result.", []string{"result"}, nil),
		dropped:       prometheus.NewDesc(namespace+"_events_dropped_total", "Events dropped by slow subscribers.", nil, nil),
		running:       prometheus.NewDesc(namespace+"_miner_running", "1 if the miner's backend process is alive.", miner, nil),
		broken:        prometheus.NewDesc(namespace+"_miner_broken", "1 if the miner is quarantined.", miner, nil),
		active:        prometheus.NewDesc(namespace+"_miner_active", "1 if the miner is its stack's active miner.", miner, nil),
		hashrate:      prometheus.NewDesc(namespace+"_miner_hashrate", "Last parsed hashrate in H/s, net of fees.", miner, nil),
		paused:        prometheus.NewDesc(namespace+"_paused", "1 while mining is paused.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		e.switches, e.crashes, e.launches, e.stops, e.logLines, e.crashWriteErr,
		e.ticks, e.reloads, e.dropped, e.running, e.broken, e.active, e.hashrate, e.paused,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	snap := e.collector.Snapshot()
	for name, sc := range snap.Stacks {
		ch <- prometheus.MustNewConstMetric(e.switches, prometheus.CounterValue, float64(sc.Switches), name)
		ch <- prometheus.MustNewConstMetric(e.crashes, prometheus.CounterValue, float64(sc.Crashes), name)
		ch <- prometheus.MustNewConstMetric(e.launches, prometheus.CounterValue, float64(sc.LaunchSuccess), name, "success")
		ch <- prometheus.MustNewConstMetric(e.launches, prometheus.CounterValue, float64(sc.LaunchFailure), name, "failure")
		ch <- prometheus.MustNewConstMetric(e.stops, prometheus.CounterValue, float64(sc.GracefulStops), name)
		ch <- prometheus.MustNewConstMetric(e.logLines, prometheus.CounterValue, float64(sc.LogLines), name)
		ch <- prometheus.MustNewConstMetric(e.crashWriteErr, prometheus.CounterValue, float64(sc.CrashWriteFail), name)
	}
	ch <- prometheus.MustNewConstMetric(e.ticks, prometheus.CounterValue, float64(snap.Ticks))
	ch <- prometheus.MustNewConstMetric(e.reloads, prometheus.CounterValue, float64(snap.Reloads), "success")
	ch <- prometheus.MustNewConstMetric(e.reloads, prometheus.CounterValue, float64(snap.ReloadFailures), "failure")
	ch <- prometheus.MustNewConstMetric(e.dropped, prometheus.CounterValue, float64(snap.EventsDropped))

	if e.status == nil {
		return
	}
	status := e.status()
	if status == nil {
		return
	}
	ch <- prometheus.MustNewConstMetric(e.paused, prometheus.GaugeValue, boolValue(status.PausedUntil != nil))
	for _, st := range status.Stacks {
		for _, m := range st.Miners {
			ch <- prometheus.MustNewConstMetric(e.running, prometheus.GaugeValue, boolValue(m.Running), st.Name, m.Name)
			ch <- prometheus.MustNewConstMetric(e.broken, prometheus.GaugeValue, boolValue(m.Broken), st.Name, m.Name)
			ch <- prometheus.MustNewConstMetric(e.active, prometheus.GaugeValue, boolValue(m.Active), st.Name, m.Name)
			if m.Hashrate != nil {
				ch <- prometheus.MustNewConstMetric(e.hashrate, prometheus.GaugeValue, *m.Hashrate, st.Name, m.Name)
			}
		}
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// NewRegistry returns a registry holding the exporter plus the Go and
// process collectors.
func NewRegistry(e *Exporter) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(e)
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler serves the registry in the Prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
