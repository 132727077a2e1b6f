// Package scanner walks the host process table and produces one immutable
// metrics record per live Airflow worker process. Uses gopsutil for
// cross-platform process listing.
package scanner

import (
	"context"

	"go.uber.org/zap"
)

// ProcessMetrics is the snapshot taken from one matched worker process.
// Records are built fresh on every scan and never mutated afterwards.
type ProcessMetrics struct {
	Dag      string
	Operator string
	ExecDate string
	IsLocal  bool
	IsRaw    bool

	MemRSS    uint64
	MemVMS    uint64
	MemShared uint64
	MemText   uint64
	MemData   uint64
	MemLib    uint64
	MemUSS    uint64
	MemPSS    uint64
	MemSwap   uint64

	CPUPercent     float64
	CPUTimesUser   float64
	CPUTimesSystem float64
}

// Options tune the worker-recognition heuristic. Zero values fall back to
// the stock Airflow invocation shape.
type Options struct {
	InterpreterPrefix string
	RunMarker         string
}

// Scanner produces ProcessMetrics records from a process Source.
type Scanner struct {
	src               Source
	logger            *zap.Logger
	interpreterPrefix string
	runMarker         string
}

// New creates a Scanner reading from the given Source.
func New(src Source, logger *zap.Logger, opts Options) *Scanner {
	if opts.InterpreterPrefix == "" {
		opts.InterpreterPrefix = DefaultInterpreterPrefix
	}
	if opts.RunMarker == "" {
		opts.RunMarker = DefaultRunMarker
	}
	return &Scanner{
		src:               src,
		logger:            logger,
		interpreterPrefix: opts.InterpreterPrefix,
		runMarker:         opts.RunMarker,
	}
}

// Scan enumerates live processes and returns one record per matched worker,
// in enumeration order. Individual process errors are silently skipped: a
// process routinely exits between enumeration and attribute fetch, and that
// must not fail the remaining scan. Only enumeration itself can return an
// error.
func (s *Scanner) Scan(ctx context.Context) ([]ProcessMetrics, error) {
	procs, err := s.src.Processes(ctx)
	if err != nil {
		return nil, err
	}

	var records []ProcessMetrics
	for _, p := range procs {
		cmdline, err := p.CmdlineSlice(ctx)
		if err != nil {
			continue
		}

		id, err := parseWorkerInvocation(cmdline, s.interpreterPrefix, s.runMarker)
		if err != nil {
			s.logger.Warn("Skipping malformed worker invocation", zap.Error(err))
			continue
		}
		if id == nil {
			continue
		}

		mem, err := p.MemoryStats(ctx)
		if err != nil {
			continue
		}
		cpu, err := p.CPUStats(ctx)
		if err != nil {
			continue
		}

		records = append(records, ProcessMetrics{
			Dag:      id.Dag,
			Operator: id.Operator,
			ExecDate: id.ExecDate,
			IsLocal:  id.IsLocal,
			IsRaw:    id.IsRaw,

			MemRSS:    mem.RSS,
			MemVMS:    mem.VMS,
			MemShared: mem.Shared,
			MemText:   mem.Text,
			MemData:   mem.Data,
			MemLib:    mem.Lib,
			MemUSS:    mem.USS,
			MemPSS:    mem.PSS,
			MemSwap:   mem.Swap,

			CPUPercent:     cpu.Percent,
			CPUTimesUser:   cpu.UserTime,
			CPUTimesSystem: cpu.SystemTime,
		})
	}

	return records, nil
}
