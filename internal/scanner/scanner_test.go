package scanner

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

var errGone = errors.New("process no longer exists")

// fakeProcess is a canned Process. A true vanished* field makes the
// corresponding fetch fail, simulating a process exiting mid-scan.
type fakeProcess struct {
	cmdline []string
	mem     MemoryStats
	cpu     CPUStats

	vanishedCmdline bool
	vanishedMem     bool
	vanishedCPU     bool
}

func (f *fakeProcess) CmdlineSlice(context.Context) ([]string, error) {
	if f.vanishedCmdline {
		return nil, errGone
	}
	return f.cmdline, nil
}

func (f *fakeProcess) MemoryStats(context.Context) (*MemoryStats, error) {
	if f.vanishedMem {
		return nil, errGone
	}
	m := f.mem
	return &m, nil
}

func (f *fakeProcess) CPUStats(context.Context) (*CPUStats, error) {
	if f.vanishedCPU {
		return nil, errGone
	}
	c := f.cpu
	return &c, nil
}

type fakeSource struct {
	procs []Process
	err   error
}

func (f *fakeSource) Processes(context.Context) ([]Process, error) {
	return f.procs, f.err
}

func workerProcess(dag, task, date string) *fakeProcess {
	return &fakeProcess{
		cmdline: []string{
			"/usr/bin/python",
			"airflow run " + dag + " " + task + " " + date + " --local",
		},
		mem: MemoryStats{RSS: 1024, VMS: 4096, USS: 512},
		cpu: CPUStats{Percent: 1.5, UserTime: 2.0, SystemTime: 0.5},
	}
}

func TestScan_MatchesOnlyWorkers(t *testing.T) {
	src := &fakeSource{procs: []Process{
		&fakeProcess{cmdline: []string{"/usr/sbin/sshd", "-D"}},
		workerProcess("my_dag", "my_task", "2023-03-03T00:00:00+00:00"),
		&fakeProcess{cmdline: []string{"/usr/bin/python", "manage.py", "runserver"}},
	}}

	s := New(src, zap.NewNop(), Options{})
	records, err := s.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}

	rec := records[0]
	if rec.Dag != "my_dag" || rec.Operator != "my_task" {
		t.Errorf("identity = %q/%q, want my_dag/my_task", rec.Dag, rec.Operator)
	}
	if rec.ExecDate != "03-03T00:00:00+00:00" {
		t.Errorf("ExecDate = %q", rec.ExecDate)
	}
	if !rec.IsLocal || rec.IsRaw {
		t.Errorf("flags = local:%v raw:%v, want local only", rec.IsLocal, rec.IsRaw)
	}
	if rec.MemRSS != 1024 || rec.CPUPercent != 1.5 {
		t.Errorf("counters not carried over: %+v", rec)
	}
}

func TestScan_SkipsVanishedProcesses(t *testing.T) {
	gone := workerProcess("gone_dag", "gone_task", "2023-01-01T00:00:00+00:00")
	gone.vanishedMem = true
	goneLate := workerProcess("late_dag", "late_task", "2023-01-01T00:00:00+00:00")
	goneLate.vanishedCPU = true
	unreadable := &fakeProcess{vanishedCmdline: true}

	src := &fakeSource{procs: []Process{
		gone,
		unreadable,
		workerProcess("live_dag", "live_task", "2023-02-02T00:00:00+00:00"),
		goneLate,
	}}

	s := New(src, zap.NewNop(), Options{})
	records, err := s.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].Dag != "live_dag" {
		t.Errorf("Dag = %q, want live_dag", records[0].Dag)
	}
}

func TestScan_SkipsMalformedInvocation(t *testing.T) {
	src := &fakeSource{procs: []Process{
		&fakeProcess{cmdline: []string{"/usr/bin/python", "airflow run my_dag"}},
		workerProcess("ok_dag", "ok_task", "2023-04-04T00:00:00+00:00"),
	}}

	s := New(src, zap.NewNop(), Options{})
	records, err := s.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].Dag != "ok_dag" {
		t.Fatalf("records = %+v, want only ok_dag", records)
	}
}

func TestScan_EnumerationError(t *testing.T) {
	src := &fakeSource{err: errors.New("proc unavailable")}
	s := New(src, zap.NewNop(), Options{})
	if _, err := s.Scan(context.Background()); err == nil {
		t.Fatal("want enumeration error")
	}
}

func TestScan_CustomHeuristic(t *testing.T) {
	src := &fakeSource{procs: []Process{
		&fakeProcess{
			cmdline: []string{
				"/opt/python/bin/python3",
				"airflow run my_dag my_task 2023-03-03T00:00:00+00:00",
			},
			mem: MemoryStats{RSS: 1},
		},
	}}

	// Stock prefix rejects the interpreter path.
	s := New(src, zap.NewNop(), Options{})
	records, err := s.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Fatalf("got %d records, want 0 with default prefix", len(records))
	}

	s = New(src, zap.NewNop(), Options{InterpreterPrefix: "/opt/python"})
	records, err = s.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1 with custom prefix", len(records))
	}
}
