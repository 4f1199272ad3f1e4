// Package execagent runs coding-agent CLIs (codex, claude, gemini, opencode) as task providers.
package execagent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/metalagman/ainvoke"
	"github.com/rs/zerolog/log"
)

type agentSpec struct {
	defaultSubcommand string
	extraFlags        []string
}

var agentSpecs = map[string]agentSpec{
	"codex": {
		defaultSubcommand: "exec",
		extraFlags:        []string{"--full-auto", "--skip-git-repo-check"},
	},
	"opencode": {
		defaultSubcommand: "run",
	},
	"gemini": {
		extraFlags: []string{"--output-format", "text", "--approval-mode", "yolo"},
	},
	"claude": {
		extraFlags: []string{"--output-format", "text", "--print", "--dangerously-skip-permissions"},
	},
}

// Config selects the CLI.
type Config struct {
	// Spec is "<agent>" or "<agent>:<model>", e.g. "claude" or "codex:o3".
	Spec string
	// Cmd runs an arbitrary command instead of a known agent.
	Cmd []string
	// WorkDir holds per-call run directories. Empty means the system temp dir.
	WorkDir string
}

// Request is the input document handed to the agent as input.json.
type Request struct {
	TaskKey      string   `json:"task"`
	Instructions string   `json:"instructions"`
	Prompt       string   `json:"prompt"`
	Context      string   `json:"context,omitempty"`
	Tools        []string `json:"tools,omitempty"`
}

type response struct {
	Output string `json:"output"`
}

// Agent invokes one CLI per call.
type Agent struct {
	cmd     []string
	model   string
	workDir string
	runner  ainvoke.Runner
}

// New builds the command line and the ainvoke runner.
func New(cfg Config) (*Agent, error) {
	cmd := cfg.Cmd
	var model string
	if len(cmd) == 0 {
		name, m, _ := strings.Cut(strings.TrimSpace(cfg.Spec), ":")
		spec, ok := agentSpecs[name]
		if !ok {
			return nil, fmt.Errorf("unknown cli agent %q", name)
		}
		model = m
		cmd = prepareCmd(name, spec, model)
	}

	runner, err := ainvoke.NewRunner(ainvoke.AgentConfig{Cmd: cmd})
	if err != nil {
		return nil, fmt.Errorf("create ainvoke runner: %w", err)
	}
	return &Agent{cmd: cmd, model: model, workDir: cfg.WorkDir, runner: runner}, nil
}

func prepareCmd(name string, spec agentSpec, model string) []string {
	out := []string{name}
	if spec.defaultSubcommand != "" {
		out = append(out, spec.defaultSubcommand)
	}
	if model != "" {
		out = append(out, "--model", model)
	}
	return append(out, spec.extraFlags...)
}

// Command returns the resolved command line.
func (a *Agent) Command() []string {
	return a.cmd
}

// Complete runs the CLI in a fresh directory and returns its output.
func (a *Agent) Complete(ctx context.Context, req Request) (string, error) {
	runDir, err := os.MkdirTemp(a.workDir, "rolecall-task-*")
	if err != nil {
		return "", fmt.Errorf("create run dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(runDir); err != nil {
			log.Warn().Err(err).Str("dir", runDir).Msg("execagent: remove run dir")
		}
	}()

	var stderr strings.Builder
	outBytes, _, exitCode, err := a.runner.Run(ctx, ainvoke.Invocation{
		RunDir:       runDir,
		SystemPrompt: systemPrompt(req, a.model),
		Input:        req,
		InputSchema:  inputSchema,
		OutputSchema: outputSchema,
	}, ainvoke.WithStderr(&stderr))
	if err != nil {
		return "", fmt.Errorf("run %s (exit %d): %w: %s", a.cmd[0], exitCode, err, strings.TrimSpace(stderr.String()))
	}

	var resp response
	if err := json.Unmarshal(outBytes, &resp); err != nil {
		return "", fmt.Errorf("decode agent output: %w", err)
	}
	out := strings.TrimSpace(resp.Output)
	if out == "" {
		return "", fmt.Errorf("agent output is empty")
	}
	return out, nil
}

func systemPrompt(req Request, model string) string {
	var b strings.Builder
	b.WriteString(req.Instructions)
	b.WriteString("\nYou are one member of a crew of agents working on a shared topic.\n")
	b.WriteString("- Read the task from input.json: 'prompt' is your assignment, 'context' holds results of earlier tasks.\n")
	b.WriteString("- Write output.json with a single string field 'output' containing your final answer.\n")
	if len(req.Tools) > 0 {
		b.WriteString("- You may use these tools: ")
		b.WriteString(strings.Join(req.Tools, ", "))
		b.WriteString(".\n")
	}
	if model != "" {
		b.WriteString("- Use model hint: ")
		b.WriteString(model)
		b.WriteString(".\n")
	}
	return b.String()
}

const inputSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "task": {"type": "string"},
    "instructions": {"type": "string"},
    "prompt": {"type": "string"},
    "context": {"type": "string"},
    "tools": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["task", "prompt"]
}`

const outputSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "output": {"type": "string"}
  },
  "required": ["output"]
}`
