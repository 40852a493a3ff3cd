package executor

import (
	"context"
	"strings"
)

// Recorder is an Executor that records every command instead of executing.
// Probe and Output answers are scripted per command line. It backs unit tests
// and is exported because several packages build their tests on it.
type Recorder struct {
	// Ran collects every mutating command passed to Run, in order.
	Ran [][]string
	// Probes collects every probe command line.
	Probes []string
	// ProbeResults maps a joined command line to its probe answer.
	// Missing entries answer DefaultProbe.
	ProbeResults map[string]bool
	// DefaultProbe is the answer for probes not scripted in ProbeResults.
	DefaultProbe bool
	// Outputs maps a joined command line to canned stdout.
	Outputs map[string]string
	// RunErr, when set, is returned by every Run call.
	RunErr error
}

// Run implements Executor.
func (r *Recorder) Run(_ context.Context, tokens []string) error {
	r.Ran = append(r.Ran, append([]string(nil), tokens...))
	return r.RunErr
}

// Probe implements Executor.
func (r *Recorder) Probe(_ context.Context, tokens []string) bool {
	line := strings.Join(tokens, " ")
	r.Probes = append(r.Probes, line)
	if answer, ok := r.ProbeResults[line]; ok {
		return answer
	}
	return r.DefaultProbe
}

// Output implements Executor.
func (r *Recorder) Output(_ context.Context, tokens []string) (string, error) {
	return r.Outputs[strings.Join(tokens, " ")], nil
}

// RanLines returns the recorded mutating commands as joined lines.
func (r *Recorder) RanLines() []string {
	lines := make([]string, 0, len(r.Ran))
	for _, cmd := range r.Ran {
		lines = append(lines, strings.Join(cmd, " "))
	}
	return lines
}
