package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewRegistry(t *testing.T) {
	reg, m := NewRegistry()
	if reg == nil || m == nil {
		t.Fatal("expected registry and metrics")
	}

	m.ObservePlan("max", true, time.Second)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "pessimist_plan_executions_total" {
			found = true
		}
	}
	if !found {
		t.Error("expected pessimist_plan_executions_total to be gathered")
	}
}

func TestWriteTextfile(t *testing.T) {
	reg, m := NewRegistry()
	m.ObserveSolve("thorough", 0, 90*time.Second, 2)

	path := filepath.Join(t.TempDir(), "nested", "pessimist.prom")
	if err := WriteTextfile(reg, path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	body := string(data)
	for _, want := range []string{
		`pessimist_solve_runs_total{mode="thorough",status="0"} 1`,
		"pessimist_narrowing_suggestions_total 2",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("textfile missing %q\n%s", want, body)
		}
	}
}
