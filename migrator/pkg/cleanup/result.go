package cleanup

import (
	"fmt"
	"strings"

	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/common"
)

const (
	KindLifecycle = "lifecycle"
	KindStack     = "stack"
	KindFunction  = "function"
	KindRole      = "role"

	OutcomePlanned = "planned"
	OutcomeDone    = "done"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Action is one cleanup operation and what became of it.
type Action struct {
	Account common.Account
	Kind    string
	Name    string
	Outcome string
	Err     error
}

func (a Action) String() string {
	s := fmt.Sprintf("[%v] %v %v: %v", a.Account, a.Kind, a.Name, a.Outcome)
	if a.Err != nil {
		s += fmt.Sprintf(" (%v)", a.Err)
	}
	return s
}

// Result is the combined outcome of both cleanup phases.
type Result struct {
	DryRun       bool
	MigrationOK  bool
	ValidationOK bool
	Actions      []Action
}

func (r *Result) add(a Action) {
	r.Actions = append(r.Actions, a)
}

// Failures returns the actions that failed.
func (r *Result) Failures() []Action {
	var failed []Action
	for _, a := range r.Actions {
		if a.Outcome == OutcomeFailed {
			failed = append(failed, a)
		}
	}
	return failed
}

func (r *Result) Succeeded() bool {
	return r.MigrationOK && r.ValidationOK
}

func (r *Result) Summary() string {
	counts := map[string]int{}
	for _, a := range r.Actions {
		counts[a.Outcome]++
	}
	b := &strings.Builder{}
	if r.DryRun {
		b.WriteString("Dry run: ")
	}
	fmt.Fprintf(b, "migration resources %v, validation resources %v; ", phaseResult(r.MigrationOK), phaseResult(r.ValidationOK))
	fmt.Fprintf(b, "%v planned, %v done, %v skipped, %v failed",
		counts[OutcomePlanned], counts[OutcomeDone], counts[OutcomeSkipped], counts[OutcomeFailed])
	return b.String()
}

func phaseResult(ok bool) string {
	if ok {
		return "cleaned"
	}
	return "incomplete"
}
