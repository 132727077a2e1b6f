package scanner

import (
	"testing"
)

func TestParseWorkerInvocation(t *testing.T) {
	tests := []struct {
		name    string
		cmdline []string
		want    *Identity
	}{
		{
			name: "local worker",
			cmdline: []string{
				"/usr/bin/python3",
				"airflow run my_dag my_task 2023-03-03T00:00:00+00:00 --local",
			},
			want: &Identity{
				Dag:      "my_dag",
				Operator: "my_task",
				ExecDate: "03-03T00:00:00+00:00",
				IsLocal:  true,
			},
		},
		{
			name: "raw worker",
			cmdline: []string{
				"/usr/bin/python",
				"airflow run etl_pipeline etl_pipeline_extract 2023-01-01T00:00:00+00:00 --raw",
			},
			want: &Identity{
				Dag:      "etl_pipeline",
				Operator: "etl_pipeline_extract",
				ExecDate: "01-01T00:00:00+00:00",
				IsRaw:    true,
			},
		},
		{
			name: "no flags",
			cmdline: []string{
				"/usr/bin/python",
				"airflow run reporting send_email 2023-02-02T00:00:00+00:00 -sd /dags/reporting.py",
			},
			want: &Identity{
				Dag:      "reporting",
				Operator: "send_email",
				ExecDate: "02-02T00:00:00+00:00",
			},
		},
		{
			name: "first run argument wins",
			cmdline: []string{
				"/usr/bin/python",
				"airflow run dag_a task_a 2023-05-05T00:00:00+00:00 --local",
				"airflow run dag_b task_b 2023-06-06T00:00:00+00:00",
			},
			want: &Identity{
				Dag:      "dag_a",
				Operator: "task_a",
				ExecDate: "05-05T00:00:00+00:00",
				IsLocal:  true,
			},
		},
		{
			name:    "empty cmdline",
			cmdline: nil,
			want:    nil,
		},
		{
			name: "wrong interpreter",
			cmdline: []string{
				"/usr/bin/ruby",
				"airflow run my_dag my_task 2023-03-03T00:00:00+00:00 --local",
			},
			want: nil,
		},
		{
			name: "no run marker",
			cmdline: []string{
				"/usr/bin/python",
				"airflow scheduler",
			},
			want: nil,
		},
		{
			name:    "ordinary process",
			cmdline: []string{"/usr/sbin/sshd", "-D"},
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseWorkerInvocation(tt.cmdline, DefaultInterpreterPrefix, DefaultRunMarker)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.want == nil {
				if got != nil {
					t.Fatalf("got %+v, want no match", got)
				}
				return
			}
			if got == nil {
				t.Fatal("got no match, want identity")
			}
			if *got != *tt.want {
				t.Errorf("got %+v, want %+v", *got, *tt.want)
			}
		})
	}
}

func TestParseWorkerInvocation_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		cmdline []string
	}{
		{
			name:    "too few fields",
			cmdline: []string{"/usr/bin/python", "airflow run my_dag"},
		},
		{
			name:    "short date token",
			cmdline: []string{"/usr/bin/python", "airflow run my_dag my_task 2023"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := parseWorkerInvocation(tt.cmdline, DefaultInterpreterPrefix, DefaultRunMarker)
			if err == nil {
				t.Fatalf("got %+v, want malformed-invocation error", id)
			}
			if id != nil {
				t.Errorf("identity should be nil on error, got %+v", id)
			}
		})
	}
}

func TestParseWorkerInvocation_ExecDateSlice(t *testing.T) {
	cmdline := []string{
		"/usr/bin/python",
		"airflow run d t 2023-03-03T00:00:00+00:00",
	}
	id, err := parseWorkerInvocation(cmdline, DefaultInterpreterPrefix, DefaultRunMarker)
	if err != nil {
		t.Fatal(err)
	}
	if id == nil {
		t.Fatal("want match")
	}
	if len(id.ExecDate) != execDateEnd-execDateStart {
		t.Errorf("ExecDate %q has length %d, want %d", id.ExecDate, len(id.ExecDate), execDateEnd-execDateStart)
	}
}
