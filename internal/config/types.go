package config

// ProviderConfig defines how to invoke one agent CLI tool.
// Providers are separate from roles -- multiple roles can share one provider.
type ProviderConfig struct {
	Command string   `json:"command"`        // CLI binary name (e.g., "claude")
	Args    []string `json:"args,omitempty"` // Default args prepended to every invocation
}

// RoleConfig binds an agent role to a provider and optional model pin.
type RoleConfig struct {
	Provider     string `json:"provider"`                // Key into Providers map
	Model        string `json:"model,omitempty"`         // Concrete model override
	SystemPrompt string `json:"system_prompt,omitempty"` // Role-specific system prompt
}

// BudgetConfig holds the token-equivalent ceilings and role shares.
type BudgetConfig struct {
	SessionLimit float64            `json:"session_limit"`    // 0 = unlimited
	DailyLimit   float64            `json:"daily_limit"`      // 0 = unlimited
	Shares       map[string]float64 `json:"shares,omitempty"` // role -> percentage
}

// ExecutorConfig bounds concurrent execution.
type ExecutorConfig struct {
	MaxWorkers         int `json:"max_workers"`
	TaskTimeoutSeconds int `json:"task_timeout_seconds"`
}

// SupervisorConfig bounds the plan/execute/evaluate loop.
type SupervisorConfig struct {
	MaxIterations int      `json:"max_iterations"`
	Pipeline      []string `json:"pipeline,omitempty"` // role pipeline for the local planner
	AgentPlanner  bool     `json:"agent_planner"`      // use the agent-backed planner with local fallback
}

// Config is the top-level configuration.
type Config struct {
	Providers  map[string]ProviderConfig `json:"providers"`
	Roles      map[string]RoleConfig     `json:"roles"`
	Budget     BudgetConfig              `json:"budget"`
	Executor   ExecutorConfig            `json:"executor"`
	Supervisor SupervisorConfig          `json:"supervisor"`
	StatePath  string                    `json:"state_path,omitempty"` // SQLite database location
}
