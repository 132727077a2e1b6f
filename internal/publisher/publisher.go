// Package publisher owns the exported gauge instruments and keeps their
// label tuples in lockstep with the live worker-process set: every
// collection cycle clears all previously published series before
// repopulating, so gauges for exited workers disappear instead of going
// stale.
package publisher

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/airmon/airflow-process-exporter/internal/scanner"
)

// baseLabels are the label keys derived per record. Static labels from the
// configuration are appended to these on every gauge.
var baseLabels = []string{"name", "dag", "operator", "exec_date"}

// ProcessScanner yields one metrics record per live matched worker.
type ProcessScanner interface {
	Scan(ctx context.Context) ([]scanner.ProcessMetrics, error)
}

// Options hold construction-time publisher configuration.
type Options struct {
	// Prefix, when non-empty, is prepended to every instrument name.
	Prefix string

	// StaticLabels are applied identically to every series on every write,
	// e.g. a deployment or host identifier.
	StaticLabels map[string]string
}

// Publisher republishes scanned process counters as labeled gauges.
type Publisher struct {
	scanner ProcessScanner
	logger  *zap.Logger
	static  map[string]string

	// mu makes the clear-then-repopulate sequence a single critical
	// section, so concurrent cycles cannot expose a half-built gauge set.
	mu sync.Mutex

	memRSS    *prometheus.GaugeVec
	memVMS    *prometheus.GaugeVec
	memShared *prometheus.GaugeVec
	memText   *prometheus.GaugeVec
	memData   *prometheus.GaugeVec
	memLib    *prometheus.GaugeVec
	memUSS    *prometheus.GaugeVec
	memPSS    *prometheus.GaugeVec
	memSwap   *prometheus.GaugeVec

	cpuPercent     *prometheus.GaugeVec
	cpuTimesUser   *prometheus.GaugeVec
	cpuTimesSystem *prometheus.GaugeVec

	collectDuration prometheus.Summary
}

// New creates a Publisher and registers all of its instruments with reg.
// Registration failures (duplicate names, invalid label keys) are
// configuration errors and are surfaced here, once, rather than per cycle.
func New(reg prometheus.Registerer, scan ProcessScanner, logger *zap.Logger, opts Options) (*Publisher, error) {
	labelNames := make([]string, 0, len(baseLabels)+len(opts.StaticLabels))
	labelNames = append(labelNames, baseLabels...)
	extraKeys := make([]string, 0, len(opts.StaticLabels))
	for k := range opts.StaticLabels {
		extraKeys = append(extraKeys, k)
	}
	sort.Strings(extraKeys)
	labelNames = append(labelNames, extraKeys...)

	p := &Publisher{
		scanner: scan,
		logger:  logger,
		static:  opts.StaticLabels,
	}

	var regErr error
	gauge := func(name, help string) *prometheus.GaugeVec {
		if opts.Prefix != "" {
			name = opts.Prefix + "_" + name
		}
		vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: name,
			Help: help,
		}, labelNames)
		if err := reg.Register(vec); err != nil && regErr == nil {
			regErr = fmt.Errorf("registering %s: %w", name, err)
		}
		return vec
	}

	p.memRSS = gauge("airflow_process_mem_rss", "Non-swapped physical memory")
	p.memVMS = gauge("airflow_process_mem_vms", "Amount of virtual memory")
	p.memShared = gauge("airflow_process_mem_shared", "Amount of shared memory")
	p.memText = gauge("airflow_process_mem_text", "Devoted to executable code")
	p.memData = gauge("airflow_process_mem_data", "Devoted to data and stack")
	p.memLib = gauge("airflow_process_mem_lib", "Used by shared libraries")
	p.memUSS = gauge("airflow_process_mem_uss",
		"Mem unique to a process and which would be freed if the process was terminated right now")
	p.memPSS = gauge("airflow_process_mem_pss",
		"Shared with other processes, accounted in a way that the amount is divided evenly between processes that share it")
	p.memSwap = gauge("airflow_process_mem_swap", "Amount of swapped memory")

	p.cpuPercent = gauge("airflow_process_cpu_percent",
		"System-wide CPU utilization as a percentage of the process")
	p.cpuTimesUser = gauge("airflow_process_cpu_times_user", "CPU times user")
	p.cpuTimesSystem = gauge("airflow_process_cpu_times_system", "CPU times system")

	summaryName := "airflow_collecting_stats_seconds"
	if opts.Prefix != "" {
		summaryName = opts.Prefix + "_" + summaryName
	}
	p.collectDuration = prometheus.NewSummary(prometheus.SummaryOpts{
		Name: summaryName,
		Help: "Time spent processing collecting stats",
	})
	if err := reg.Register(p.collectDuration); err != nil && regErr == nil {
		regErr = fmt.Errorf("registering %s: %w", summaryName, err)
	}

	if regErr != nil {
		return nil, regErr
	}
	return p, nil
}

// Collect runs one full collection cycle: clear every published series,
// scan the process table, and write one value set per live worker. The
// cycle's wall-clock duration is recorded in the timing summary even when
// zero workers are found.
func (p *Publisher) Collect(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	p.reset()

	records, err := p.scanner.Scan(ctx)
	if err != nil {
		p.logger.Error("Process scan failed", zap.Error(err))
	}
	for _, rec := range records {
		p.publish(rec)
	}

	p.collectDuration.Observe(time.Since(start).Seconds())
	p.logger.Info("Gathered metrics", zap.Int("processes", len(records)))
}

// reset removes every previously exported series so that a scrape reflects
// only currently-live workers.
func (p *Publisher) reset() {
	for _, vec := range p.gauges() {
		vec.Reset()
	}
}

// publish writes one record's counters under its derived label tuple.
func (p *Publisher) publish(rec scanner.ProcessMetrics) {
	labels := prometheus.Labels{
		"name":      processName(rec),
		"dag":       rec.Dag,
		"operator":  rec.Operator,
		"exec_date": rec.ExecDate,
	}
	for k, v := range p.static {
		labels[k] = v
	}

	p.memRSS.With(labels).Set(float64(rec.MemRSS))
	p.memVMS.With(labels).Set(float64(rec.MemVMS))
	p.memShared.With(labels).Set(float64(rec.MemShared))
	p.memText.With(labels).Set(float64(rec.MemText))
	p.memData.With(labels).Set(float64(rec.MemData))
	p.memLib.With(labels).Set(float64(rec.MemLib))
	p.memUSS.With(labels).Set(float64(rec.MemUSS))
	p.memPSS.With(labels).Set(float64(rec.MemPSS))
	p.memSwap.With(labels).Set(float64(rec.MemSwap))

	p.cpuPercent.With(labels).Set(rec.CPUPercent)
	p.cpuTimesUser.With(labels).Set(rec.CPUTimesUser)
	p.cpuTimesSystem.With(labels).Set(rec.CPUTimesSystem)
}

func (p *Publisher) gauges() []*prometheus.GaugeVec {
	return []*prometheus.GaugeVec{
		p.memRSS, p.memVMS, p.memShared, p.memText, p.memData, p.memLib,
		p.memUSS, p.memPSS, p.memSwap,
		p.cpuPercent, p.cpuTimesUser, p.cpuTimesSystem,
	}
}

// processName builds the human-scannable display handle for one worker:
// "<dag>.<operator>" unless the dag name already appears inside the
// operator name, then the execution date, then markers for local and raw
// runs, all joined with underscores.
func processName(rec scanner.ProcessMetrics) string {
	parts := make([]string, 0, 3)
	if !strings.Contains(rec.Operator, rec.Dag) {
		parts = append(parts, rec.Dag+"."+rec.Operator)
	} else {
		parts = append(parts, rec.Operator)
	}
	parts = append(parts, rec.ExecDate)
	if rec.IsLocal {
		parts = append(parts, "local")
	}
	if rec.IsRaw {
		parts = append(parts, "is_raw")
	}
	return strings.Join(parts, "_")
}
