// Package actions connects ijsync to the GitHub Actions runner: inputs,
// outputs, secret masking and log groups.
package actions

import (
	"io"
	"os"
	"strings"

	"github.com/sethvargo/go-githubactions"

	"github.com/schaermu/ijsync/internal/config"
)

// Input and output names of the verify action.
const (
	InputVerifierVersion = "verifier-version"
	InputPluginLocation  = "plugin-location"
	InputIDEVersions     = "ide-versions"
	OutputLogFilename    = "verification-output-log-filename"

	OutputUpgradeState   = "upgrade-state"
	OutputPlatformVer    = "platform-version"
	OutputBranch         = "branch"
	OutputPullRequestURL = "pull-request-url"
)

// Runtime wraps the workflow command interface of the Actions runner
type Runtime struct {
	action *githubactions.Action
	getenv func(string) string
}

// New creates a runtime writing workflow commands to w
func New(w io.Writer, getenv func(string) string) *Runtime {
	if getenv == nil {
		getenv = os.Getenv
	}
	return &Runtime{
		action: githubactions.New(githubactions.WithWriter(w), githubactions.WithGetenv(getenv)),
		getenv: getenv,
	}
}

// FromEnv creates a runtime for the current process
func FromEnv() *Runtime {
	return New(os.Stdout, os.Getenv)
}

// Enabled reports whether the process runs inside GitHub Actions
func (r *Runtime) Enabled() bool {
	return r.getenv("GITHUB_ACTIONS") == "true"
}

// Workspace returns the checkout directory of the workflow, if any
func (r *Runtime) Workspace() string {
	return r.getenv("GITHUB_WORKSPACE")
}

// Input returns the named action input or fallback when unset
func (r *Runtime) Input(name, fallback string) string {
	if v := r.action.GetInput(name); v != "" {
		return v
	}
	return fallback
}

// ApplyVerifyInputs overrides the verify configuration with action inputs
func (r *Runtime) ApplyVerifyInputs(cfg *config.VerifyConfig) {
	cfg.VerifierVersion = r.Input(InputVerifierVersion, cfg.VerifierVersion)
	cfg.PluginLocation = r.Input(InputPluginLocation, cfg.PluginLocation)
	if raw := r.Input(InputIDEVersions, ""); raw != "" {
		var tokens []string
		for _, line := range strings.Split(raw, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				tokens = append(tokens, line)
			}
		}
		cfg.IDEVersions = tokens
	}
}

// SetOutput publishes a step output
func (r *Runtime) SetOutput(name, value string) {
	if !r.Enabled() {
		return
	}
	r.action.SetOutput(name, value)
}

// Mask hides value in all subsequent runner log output
func (r *Runtime) Mask(value string) {
	if !r.Enabled() || value == "" {
		return
	}
	r.action.AddMask(value)
}

// Group starts a collapsible log group
func (r *Runtime) Group(title string) {
	if r.Enabled() {
		r.action.Group(title)
	}
}

// EndGroup closes the current log group
func (r *Runtime) EndGroup() {
	if r.Enabled() {
		r.action.EndGroup()
	}
}

// Fail annotates the run with an error
func (r *Runtime) Fail(err error) {
	if !r.Enabled() || err == nil {
		return
	}
	r.action.Errorf("%s", err.Error())
}
