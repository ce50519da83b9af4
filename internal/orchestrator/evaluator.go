package orchestrator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/overseer-dev/overseer/internal/scheduler"
)

// Verdict is the supervisor's judgment of one iteration.
type Verdict int

const (
	VerdictSuccess Verdict = iota
	VerdictNeedsCorrection
	VerdictStuck
)

func (v Verdict) String() string {
	switch v {
	case VerdictSuccess:
		return "success"
	case VerdictNeedsCorrection:
		return "needs_correction"
	case VerdictStuck:
		return "stuck"
	default:
		return "unknown"
	}
}

// ValidatorGate decides whether a validator's report is a falsification.
// A negative validator report always forces at least NeedsCorrection, even
// when every task in the batch reported success.
type ValidatorGate func(output string) bool

// negativeMarkers are the phrases the default gate treats as falsification.
var negativeMarkers = []string{
	"fail",
	"reject",
	"falsif",
	"incorrect",
	"does not satisfy",
}

func defaultValidatorGate(output string) bool {
	lower := strings.ToLower(output)
	for _, marker := range negativeMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// IterationRecord summarizes one iteration for the stuck policy.
type IterationRecord struct {
	Iteration          int
	Succeeded          int      // tasks newly succeeded this iteration
	FailedDescriptions []string // descriptions of non-succeeded tasks, sorted
}

// StuckPolicy inspects the iteration history (oldest first, current last)
// and reports whether the run has stopped making progress. The distinction
// between "needs another pass" and "truly stuck" is policy, not mechanism;
// swap this function to change it.
type StuckPolicy func(history []IterationRecord) bool

// defaultStuckPolicy: stuck when the current iteration completed nothing
// new, or when the same set of task descriptions failed twice in a row.
func defaultStuckPolicy(history []IterationRecord) bool {
	if len(history) == 0 {
		return false
	}
	cur := history[len(history)-1]
	if cur.Succeeded == 0 {
		return true
	}
	if len(history) >= 2 {
		prev := history[len(history)-2]
		if len(cur.FailedDescriptions) > 0 && equalStrings(cur.FailedDescriptions, prev.FailedDescriptions) {
			return true
		}
	}
	return false
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// EvaluatorConfig configures an Evaluator. Nil fields select defaults.
type EvaluatorConfig struct {
	Gate  ValidatorGate
	Stuck StuckPolicy
}

// Evaluator classifies an iteration's aggregate results into a verdict and
// builds the corrective context for the next planning pass.
type Evaluator struct {
	gate  ValidatorGate
	stuck StuckPolicy
}

// NewEvaluator creates an Evaluator, filling in the default gate and policy.
func NewEvaluator(cfg EvaluatorConfig) *Evaluator {
	if cfg.Gate == nil {
		cfg.Gate = defaultValidatorGate
	}
	if cfg.Stuck == nil {
		cfg.Stuck = defaultStuckPolicy
	}
	return &Evaluator{gate: cfg.Gate, stuck: cfg.Stuck}
}

// Evaluate returns the verdict for the current iteration plus corrective
// context for the planner. history must already include the current
// iteration's record as its last element.
func (e *Evaluator) Evaluate(tasks []*scheduler.Task, results []TaskResult, history []IterationRecord) (Verdict, string) {
	byID := make(map[string]TaskResult, len(results))
	for _, res := range results {
		byID[res.TaskID] = res
	}

	var problems []string
	validatorNegative := false
	allSucceeded := true

	for _, task := range tasks {
		res, ok := byID[task.ID]
		if !ok || res.Status != scheduler.TaskSucceeded {
			allSucceeded = false
			if ok && res.Err != nil {
				problems = append(problems, fmt.Sprintf("task %s (%s) %s: %v", task.ID, task.Role, res.Status, res.Err))
			} else {
				problems = append(problems, fmt.Sprintf("task %s (%s) did not complete", task.ID, task.Role))
			}
			if task.Role == scheduler.RoleValidator {
				validatorNegative = true
			}
			continue
		}

		// Validation results take precedence over raw completion counts.
		if task.Role == scheduler.RoleValidator && e.gate(res.Output) {
			validatorNegative = true
			problems = append(problems, fmt.Sprintf("validator %s rejected the result: %s", task.ID, firstLine(res.Output)))
		}
	}

	if allSucceeded && !validatorNegative {
		return VerdictSuccess, ""
	}

	if e.stuck(history) {
		return VerdictStuck, strings.Join(problems, "; ")
	}

	sort.Strings(problems)
	return VerdictNeedsCorrection, strings.Join(problems, "; ")
}

// Record builds the current iteration's history record from its results.
func Record(iteration int, results []TaskResult) IterationRecord {
	rec := IterationRecord{Iteration: iteration}
	for _, res := range results {
		if res.Status == scheduler.TaskSucceeded {
			rec.Succeeded++
		}
	}
	return rec
}

// RecordWithTasks is like Record but also captures the descriptions of
// tasks that did not succeed, so the stuck policy can detect repeats.
func RecordWithTasks(iteration int, tasks []*scheduler.Task, results []TaskResult) IterationRecord {
	rec := Record(iteration, results)

	byID := make(map[string]*scheduler.Task, len(tasks))
	for _, task := range tasks {
		byID[task.ID] = task
	}
	for _, res := range results {
		if res.Status == scheduler.TaskSucceeded {
			continue
		}
		if task, ok := byID[res.TaskID]; ok {
			rec.FailedDescriptions = append(rec.FailedDescriptions, task.Description)
		}
	}
	sort.Strings(rec.FailedDescriptions)
	return rec
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
