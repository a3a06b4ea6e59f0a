package commands

import (
	"strings"
	"testing"

	"github.com/fleetform/fleetform/pkg/connectors"
)

func TestFormatResult(t *testing.T) {
	tests := []struct {
		name   string
		result connectors.Result
		want   string
	}{
		{
			name:   "stdout lines",
			result: connectors.Result{Stdout: "one\ntwo\n"},
			want:   "web1[ ] one\nweb1[ ] two\n",
		},
		{
			name:   "stderr prefixed",
			result: connectors.Result{Stderr: "oops\n"},
			want:   "web1[ ] stderr: oops\n",
		},
		{
			name:   "failure appends exit status",
			result: connectors.Result{Stdout: "partial\n", ExitCode: 3},
			want:   "web1[ ] partial\nweb1[ ] exited 3\n",
		},
		{
			name:   "empty success",
			result: connectors.Result{},
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatResult("web1[ ] ", &tt.result)
			if got != tt.want {
				t.Errorf("formatResult() = %q, want %q", got, tt.want)
			}
		})
	}
}

// Each host's block is one string, so concurrent printers can emit whole
// blocks under a mutex without lines from two hosts interleaving.
func TestFormatResultIsOneBlock(t *testing.T) {
	result := &connectors.Result{Stdout: "a\nb\nc\n", Stderr: "x\n", ExitCode: 1}
	block := formatResult("db1[ ] ", result)

	for i, line := range splitOutput(block) {
		if !strings.HasPrefix(line, "db1[ ] ") {
			t.Errorf("line %d lacks the host prefix: %q", i, line)
		}
	}
	if got := strings.Count(block, "\n"); got != 5 {
		t.Errorf("expected 5 lines, got %d in %q", got, block)
	}
}

func TestSplitOutput(t *testing.T) {
	if got := splitOutput(""); got != nil {
		t.Errorf("empty output should yield no lines, got %v", got)
	}
	if got := splitOutput("single\n"); len(got) != 1 || got[0] != "single" {
		t.Errorf("unexpected lines %v", got)
	}
	if got := splitOutput("a\nb"); len(got) != 2 {
		t.Errorf("unexpected lines %v", got)
	}
}
