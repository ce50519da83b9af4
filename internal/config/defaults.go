package config

// DefaultConfig returns the built-in configuration: one claude provider,
// every executing role bound to it, and conservative budget and loop bounds.
func DefaultConfig() *Config {
	return &Config{
		Providers: map[string]ProviderConfig{
			"claude": {
				Command: "claude",
			},
		},
		Roles: map[string]RoleConfig{
			"orchestrator": {
				Provider:     "claude",
				SystemPrompt: "You decompose goals into task batches and coordinate agent roles.",
			},
			"researcher": {
				Provider:     "claude",
				SystemPrompt: "You research prior art, constraints, and context.",
			},
			"implementer": {
				Provider:     "claude",
				SystemPrompt: "You implement features and produce working results.",
			},
			"reviewer": {
				Provider:     "claude",
				SystemPrompt: "You review work for correctness and quality.",
			},
			"validator": {
				Provider:     "claude",
				SystemPrompt: "You try to falsify results. Report failures explicitly.",
			},
			"writer": {
				Provider:     "claude",
				SystemPrompt: "You write clear summaries and documentation of outcomes.",
			},
			"refactorer": {
				Provider:     "claude",
				SystemPrompt: "You simplify and clean up existing work without changing behavior.",
			},
		},
		Budget: BudgetConfig{
			SessionLimit: 500000,
			DailyLimit:   2000000,
			Shares: map[string]float64{
				"implementer": 35,
				"validator":   20,
				"researcher":  15,
				"writer":      15,
				"reviewer":    10,
				"refactorer":  5,
			},
		},
		Executor: ExecutorConfig{
			MaxWorkers:         4,
			TaskTimeoutSeconds: 600,
		},
		Supervisor: SupervisorConfig{
			MaxIterations: 5,
			Pipeline:      []string{"researcher", "implementer", "reviewer", "validator"},
		},
		StatePath: ".overseer/state.db",
	}
}
