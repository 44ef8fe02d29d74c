package reconcile

import (
	"fmt"
	"io"
	"time"
)

// Status of one resource after a reconciliation or teardown pass.
type Status string

const (
	StatusCreated   Status = "created"
	StatusUnchanged Status = "unchanged"
	StatusRecreated Status = "recreated"
	StatusRemoved   Status = "removed"
	StatusFailed    Status = "failed"
)

// Result is the outcome for a single resource. Err is set only for
// StatusFailed.
type Result struct {
	Kind   string // "service", "network", "volume"
	Name   string
	Status Status
	Err    error
}

func (r Result) String() string {
	if r.Status == StatusFailed {
		return fmt.Sprintf("%s %s: failed: %v", r.Kind, r.Name, r.Err)
	}
	return fmt.Sprintf("%s %s: %s", r.Kind, r.Name, r.Status)
}

// Report covers every resource attempted in one pass, successes and
// failures alike, so the caller sees the full picture of a partially
// converged stack.
type Report struct {
	Project    string
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []Result
}

// Failed returns the results that did not converge.
func (r *Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			out = append(out, res)
		}
	}
	return out
}

// Converged reports whether every attempted resource succeeded.
func (r *Report) Converged() bool { return len(r.Failed()) == 0 }

// Print writes one line per resource plus a summary.
func (r *Report) Print(w io.Writer) {
	for _, res := range r.Results {
		_, _ = fmt.Fprintf(w, "  %s\n", res)
	}
	failed := len(r.Failed())
	_, _ = fmt.Fprintf(w, "%d resources, %d failed (%s)\n",
		len(r.Results), failed, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
}
