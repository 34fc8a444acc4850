// Package hooks runs user commands after an update has been applied.
package hooks

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/charmbracelet/log"
)

// Environment variables set for every hook.
const (
	EnvVersion         = "OTAUP_VERSION"
	EnvPreviousVersion = "OTAUP_PREVIOUS_VERSION"
	EnvLivePath        = "OTAUP_LIVE_PATH"
)

// CommandRunner is an interface for running external commands.
// This allows for mocking in tests.
type CommandRunner interface {
	Run(dir string, env []string, name string, args ...string) ([]byte, error)
}

// DefaultCommandRunner uses os/exec to run commands.
type DefaultCommandRunner struct{}

func (r *DefaultCommandRunner) Run(dir string, env []string, name string, args ...string) ([]byte, error) {
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), env...)
	return cmd.CombinedOutput()
}

// Event describes the update a hook runs for.
type Event struct {
	Version         string
	PreviousVersion string
	LivePath        string
}

// Env returns the event as environment assignments.
func (e Event) Env() []string {
	return []string{
		EnvVersion + "=" + e.Version,
		EnvPreviousVersion + "=" + e.PreviousVersion,
		EnvLivePath + "=" + e.LivePath,
	}
}

// Operation records a single hook command.
type Operation struct {
	Command string `json:"command" yaml:"command"`
	Success bool   `json:"success" yaml:"success"`
	Output  string `json:"output,omitempty" yaml:"output,omitempty"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Result is the outcome of one hook run.
type Result struct {
	Operations []Operation `json:"operations" yaml:"operations"`
	Failed     int         `json:"failed" yaml:"failed"`
	Errors     []error     `json:"-" yaml:"-"`
}

// Err joins the errors of every failed command, nil when all succeeded.
func (r *Result) Err() error {
	return errors.Join(r.Errors...)
}

// Executor runs hook commands through a shell.
type Executor struct {
	runner CommandRunner
	shell  string
	logger *log.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithRunner replaces the command runner.
func WithRunner(r CommandRunner) Option {
	return func(e *Executor) {
		e.runner = r
	}
}

// WithShell sets the shell used as "<shell> -c <command>". Default: /bin/sh.
func WithShell(shell string) Option {
	return func(e *Executor) {
		if shell != "" {
			e.shell = shell
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(e *Executor) {
		e.logger = l
	}
}

// NewExecutor creates an executor running commands with /bin/sh.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		runner: &DefaultCommandRunner{},
		shell:  "/bin/sh",
		logger: log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes commands in order inside the live tree. A failing command
// does not stop the ones after it; failures are collected in the result.
func (e *Executor) Run(commands []string, ev Event) *Result {
	result := &Result{Operations: []Operation{}}

	for _, command := range commands {
		op := Operation{Command: command}

		e.logger.Info("Running hook", "command", command)
		output, err := e.runner.Run(ev.LivePath, ev.Env(), e.shell, "-c", command)
		op.Output = strings.TrimSpace(string(output))
		if err != nil {
			op.Error = fmt.Sprintf("%v", err)
			result.Failed++
			result.Errors = append(result.Errors, fmt.Errorf("hook %q failed: %w\nOutput: %s", command, err, op.Output))
			e.logger.Error("Hook failed", "command", command, "err", err)
		} else {
			op.Success = true
			e.logger.Debug("Hook finished", "command", command, "output", op.Output)
		}

		result.Operations = append(result.Operations, op)
	}

	return result
}
