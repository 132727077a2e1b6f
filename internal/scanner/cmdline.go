// Command-line heuristic for recognizing Airflow worker processes.
// A worker is identified by its interpreter path and an argument carrying
// the "airflow run" invocation; identity fields are recovered from fixed
// positions inside that argument.
package scanner

import (
	"fmt"
	"strings"
)

const (
	// DefaultInterpreterPrefix is the expected start of a worker's first
	// command-line token.
	DefaultInterpreterPrefix = "/usr/bin/python"

	// DefaultRunMarker identifies the argument carrying the task invocation.
	DefaultRunMarker = "airflow run"
)

// Positions inside the whitespace-split run argument:
//
//	airflow run <dag> <task> <execution_date> [--local] [--raw] ...
//	   0     1    2      3          4
//
// The execution date keeps a fixed 20-character slice of the date token,
// dropping its first five characters.
const (
	dagField      = 2
	operatorField = 3
	execDateField = 4

	execDateStart = 5
	execDateEnd   = 25
)

// Identity holds the fields extracted from a worker invocation.
type Identity struct {
	Dag      string
	Operator string
	ExecDate string
	IsLocal  bool
	IsRaw    bool
}

// parseWorkerInvocation recovers a worker Identity from a command-line
// argument vector. It returns (nil, nil) when the command line does not look
// like a worker invocation at all, and a non-nil error when the run marker is
// present but the argument is too short to carry all identity fields.
//
// The first argument containing the run marker wins; later occurrences are
// never inspected.
func parseWorkerInvocation(cmdline []string, interpreterPrefix, runMarker string) (*Identity, error) {
	if len(cmdline) == 0 || !strings.HasPrefix(cmdline[0], interpreterPrefix) {
		return nil, nil
	}

	for _, arg := range cmdline {
		if !strings.Contains(arg, runMarker) {
			continue
		}

		fields := strings.Fields(arg)
		if len(fields) <= execDateField {
			return nil, fmt.Errorf("run argument has %d fields, need at least %d: %q",
				len(fields), execDateField+1, arg)
		}
		if len(fields[execDateField]) < execDateEnd {
			return nil, fmt.Errorf("execution date token %q shorter than %d characters",
				fields[execDateField], execDateEnd)
		}

		id := &Identity{
			Dag:      fields[dagField],
			Operator: fields[operatorField],
			ExecDate: fields[execDateField][execDateStart:execDateEnd],
		}
		for _, f := range fields {
			switch f {
			case "--local":
				id.IsLocal = true
			case "--raw":
				id.IsRaw = true
			}
		}
		return id, nil
	}

	return nil, nil
}
