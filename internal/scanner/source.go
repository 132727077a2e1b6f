// Host process enumeration backed by gopsutil. The Source/Process interfaces
// keep the scanner testable without a live process table.
package scanner

import (
	"context"

	"github.com/shirou/gopsutil/v3/process"
)

// MemoryStats is the full memory breakdown for one process, in bytes.
type MemoryStats struct {
	RSS    uint64
	VMS    uint64
	Shared uint64
	Text   uint64
	Data   uint64
	Lib    uint64
	USS    uint64
	PSS    uint64
	Swap   uint64
}

// CPUStats holds CPU usage for one process. Times are cumulative seconds.
type CPUStats struct {
	Percent    float64
	UserTime   float64
	SystemTime float64
}

// Process is one live process as seen by the enumeration facility. Every
// method may fail after the process exits; callers treat any error as
// "process not present".
type Process interface {
	// CmdlineSlice returns the process's argument vector.
	CmdlineSlice(ctx context.Context) ([]string, error)

	// MemoryStats returns the full memory breakdown.
	MemoryStats(ctx context.Context) (*MemoryStats, error)

	// CPUStats returns CPU times and utilization percent.
	CPUStats(ctx context.Context) (*CPUStats, error)
}

// Source enumerates the live processes of the host.
type Source interface {
	Processes(ctx context.Context) ([]Process, error)
}

// hostSource reads the real process table via gopsutil.
type hostSource struct{}

// NewHostSource returns a Source backed by the host's process table.
func NewHostSource() Source {
	return hostSource{}
}

func (hostSource) Processes(ctx context.Context) ([]Process, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Process, 0, len(procs))
	for _, p := range procs {
		out = append(out, hostProcess{p})
	}
	return out, nil
}

type hostProcess struct {
	p *process.Process
}

func (h hostProcess) CmdlineSlice(ctx context.Context) ([]string, error) {
	return h.p.CmdlineSliceWithContext(ctx)
}

func (h hostProcess) MemoryStats(ctx context.Context) (*MemoryStats, error) {
	ex, err := h.p.MemoryInfoExWithContext(ctx)
	if err != nil {
		return nil, err
	}

	stats := &MemoryStats{
		RSS:    ex.RSS,
		VMS:    ex.VMS,
		Shared: ex.Shared,
		Text:   ex.Text,
		Data:   ex.Data,
		Lib:    ex.Lib,
	}

	// USS/PSS/swap come from the grouped smaps rollup. gopsutil reports
	// smaps values in kB.
	maps, err := h.p.MemoryMapsWithContext(ctx, true)
	if err != nil {
		return nil, err
	}
	if maps != nil && len(*maps) > 0 {
		m := (*maps)[0]
		stats.USS = (m.PrivateClean + m.PrivateDirty) * 1024
		stats.PSS = m.Pss * 1024
		stats.Swap = m.Swap * 1024
	}

	return stats, nil
}

func (h hostProcess) CPUStats(ctx context.Context) (*CPUStats, error) {
	times, err := h.p.TimesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	percent, err := h.p.CPUPercentWithContext(ctx)
	if err != nil {
		return nil, err
	}
	return &CPUStats{
		Percent:    percent,
		UserTime:   times.User,
		SystemTime: times.System,
	}, nil
}
