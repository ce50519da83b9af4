package routing

import "github.com/overseer-dev/overseer/internal/budget"

// ModelClass is the class of backing model the agent service should use.
type ModelClass int

const (
	ModelLight    ModelClass = iota // cheapest class
	ModelStandard                   // mid-tier class
	ModelPremium                    // top-tier class
)

func (m ModelClass) String() string {
	switch m {
	case ModelLight:
		return "light"
	case ModelStandard:
		return "standard"
	case ModelPremium:
		return "premium"
	default:
		return "unknown"
	}
}

// Thinking is the extra-reasoning intensity hint passed to the agent
// execution service.
type Thinking int

const (
	ThinkingNone Thinking = iota
	ThinkingStandard
	ThinkingExtended
	ThinkingMax
)

func (t Thinking) String() string {
	switch t {
	case ThinkingNone:
		return "none"
	case ThinkingStandard:
		return "standard"
	case ThinkingExtended:
		return "extended"
	case ThinkingMax:
		return "max"
	default:
		return "unknown"
	}
}

// ExecConfig is the execution configuration the selector picks for a task.
type ExecConfig struct {
	Model         ModelClass
	Thinking      Thinking
	ThinkingShare float64 // fraction of the session budget reserved for extended thinking
}

const (
	// governorThreshold is the session-usage fraction above which the
	// selector forces the cheapest configuration, even for Critical tasks.
	governorThreshold = 0.8

	// defaultExtendedShare bounds extended thinking for Complex tasks.
	defaultExtendedShare = 0.03
)

// Selector maps a complexity tier and the current budget state to an
// execution configuration. It never fails; it degrades to cheaper
// configurations instead.
type Selector struct {
	extendedShare float64
}

// NewSelector creates a Selector with the default extended-thinking share.
func NewSelector() *Selector {
	return &Selector{extendedShare: defaultExtendedShare}
}

// Select returns the execution configuration for a tier.
// When more than 80% of the session budget is spent, the cheapest
// configuration is returned regardless of tier. This is a hard governor,
// not a suggestion.
func (s *Selector) Select(tier Complexity, snap budget.Snapshot) ExecConfig {
	if snap.SessionFraction() > governorThreshold {
		return ExecConfig{Model: ModelLight, Thinking: ThinkingNone}
	}

	switch tier {
	case Simple:
		return ExecConfig{Model: ModelLight, Thinking: ThinkingNone}
	case Complex:
		return ExecConfig{Model: ModelPremium, Thinking: ThinkingExtended, ThinkingShare: s.extendedShare}
	case Critical:
		return ExecConfig{Model: ModelPremium, Thinking: ThinkingMax}
	default:
		return ExecConfig{Model: ModelStandard, Thinking: ThinkingStandard}
	}
}
