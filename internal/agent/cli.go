package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
)

// CLIConfig configures a CLI-backed agent service.
type CLIConfig struct {
	Command      string   // Binary to invoke (e.g., "claude")
	Args         []string // Base args prepended to every invocation
	Model        string   // Concrete model name for ModelPremium; class flags are derived
	WorkDir      string   // Working directory for the subprocess
	SystemPrompt string   // Role-agnostic system prompt, optional
	SessionID    string   // Generated when empty
}

// CLIService implements Service by shelling out to a command-line agent
// tool. One invocation per request; the session ID threads continuity.
type CLIService struct {
	cfg       CLIConfig
	sessionID string
	procMgr   *ProcessManager
}

// cliResponse is the JSON document the agent CLI prints on stdout.
type cliResponse struct {
	Success bool   `json:"success"`
	Output  string `json:"output"`
	Error   string `json:"error"`
}

// NewCLIService creates a CLI-backed service. The ProcessManager is
// optional; without it subprocesses are not tracked for shutdown.
func NewCLIService(cfg CLIConfig, pm *ProcessManager) (*CLIService, error) {
	if cfg.Command == "" {
		return nil, errors.New("agent command is required")
	}

	sessionID := cfg.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	workDir := cfg.WorkDir
	if workDir == "" {
		var err error
		workDir, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
	}
	cfg.WorkDir = workDir

	return &CLIService{
		cfg:       cfg,
		sessionID: sessionID,
		procMgr:   pm,
	}, nil
}

// Execute invokes the CLI once for the request. The subprocess runs in its
// own process group and is killed when ctx is cancelled or times out.
func (s *CLIService) Execute(ctx context.Context, req Request) (Result, error) {
	args := s.buildArgs(req)

	cmd := newCommand(ctx, s.cfg.Command, args...)
	cmd.Dir = s.cfg.WorkDir

	stdout, stderr, err := runCommand(cmd, s.procMgr)
	if err != nil {
		// Surface context errors as-is so callers can tell a timeout
		// from a tool failure.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		return Result{}, fmt.Errorf("agent command failed: %w", err)
	}

	var resp cliResponse
	if err := json.Unmarshal(stdout, &resp); err != nil {
		return Result{}, fmt.Errorf("failed to parse agent response: %w (stderr: %s)", err, string(stderr))
	}

	return Result{
		Success:   resp.Success,
		Output:    resp.Output,
		ErrorInfo: resp.Error,
	}, nil
}

// Close is a no-op for the subprocess-per-invocation model.
func (s *CLIService) Close() error {
	return nil
}

// SessionID returns the session identifier threaded through invocations.
func (s *CLIService) SessionID() string {
	return s.sessionID
}

// buildArgs constructs the argv for one invocation.
func (s *CLIService) buildArgs(req Request) []string {
	args := append([]string{}, s.cfg.Args...)
	args = append(args,
		"-p", req.Description,
		"--output-format", "json",
		"--session-id", s.sessionID,
		"--agent", string(req.Role),
		"--thinking", req.Thinking.String(),
		"--model-class", req.Model.String(),
	)

	// Pinning a concrete model is optional; the tool resolves the class to
	// its own default otherwise.
	if s.cfg.Model != "" {
		args = append(args, "--model", s.cfg.Model)
	}

	if s.cfg.SystemPrompt != "" {
		args = append(args, "--system-prompt", s.cfg.SystemPrompt)
	}

	return args
}
