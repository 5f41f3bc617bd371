// Package report invokes the external report publisher after a run.
// The publisher itself (bundling, redaction, pull-request creation) is
// a separate tool; this package decides whether to call it, builds its
// argument list, and retries transient failures. Publish problems are
// reported back to the caller as a string for the event log and never
// fail the run.
package report

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/stagehand-dev/stagehand/internal/config"
)

// Environment overrides, checked before the configuration file values.
const (
	EnvEnabled          = "STAGEHAND_REPORTING_ENABLED"
	EnvPhases           = "STAGEHAND_REPORTING_PHASES"
	EnvRepo             = "STAGEHAND_REPORTING_REPO"
	EnvMode             = "STAGEHAND_REPORTING_MODE"
	EnvHostID           = "STAGEHAND_REPORTING_HOST_ID"
	EnvIncludeMigration = "STAGEHAND_REPORTING_INCLUDE_MIGRATION"
	EnvIncludeReview    = "STAGEHAND_REPORTING_INCLUDE_REVIEW"
	EnvIncludeTaskLogs  = "STAGEHAND_REPORTING_INCLUDE_TASK_LOGS"
)

// DefaultPublisher is the external command that bundles and publishes
// the report.
const DefaultPublisher = "stagehand-publish-report"

var defaultPhases = []string{"legacy", "post", "main"}

// Options tunes Publish, mainly for tests.
type Options struct {
	Publisher  string
	MaxElapsed time.Duration
	Getenv     func(string) string
	RunCommand func(argv []string) (string, error)
}

// Publish runs the publisher for this run if reporting is enabled for
// the phase. The returned string is empty on success or skip, otherwise
// it describes the failure for the report_publish_error event.
func Publish(reporting *config.ReportingConfig, phase, runID string, opts Options) string {
	if opts.Publisher == "" {
		opts.Publisher = DefaultPublisher
	}
	if opts.MaxElapsed <= 0 {
		opts.MaxElapsed = 30 * time.Second
	}
	if opts.Getenv == nil {
		opts.Getenv = os.Getenv
	}
	if opts.RunCommand == nil {
		opts.RunCommand = runCommand
	}

	cfg := config.ReportingConfig{}
	if reporting != nil {
		cfg = *reporting
	}

	if !envBool(opts.Getenv(EnvEnabled), cfg.Enabled) {
		return ""
	}

	phases := parsePhases(opts.Getenv(EnvPhases), cfg.Phases)
	if !contains(phases, phase) {
		return ""
	}

	repo := envString(opts.Getenv(EnvRepo), cfg.Repo)
	if repo == "" {
		return EnvRepo + " is required"
	}
	mode := envString(opts.Getenv(EnvMode), cfg.Mode)
	if mode == "" {
		mode = "pr"
	}
	hostID := envString(opts.Getenv(EnvHostID), cfg.HostID)
	if hostID == "" {
		hostID = "unknown-host"
	}

	includeMigration := phase == "legacy"
	if cfg.IncludeMigration != nil {
		includeMigration = *cfg.IncludeMigration
	}
	includeMigration = envBool(opts.Getenv(EnvIncludeMigration), includeMigration)
	includeReview := envBool(opts.Getenv(EnvIncludeReview), cfg.IncludeReview)
	includeTaskLogs := envBool(opts.Getenv(EnvIncludeTaskLogs), cfg.IncludeTaskLogs)

	argv := []string{
		opts.Publisher,
		"--repo", repo,
		"--run-id", runID,
		"--host-id", hostID,
		"--mode", mode,
	}
	if includeMigration {
		argv = append(argv, "--include-migration")
	}
	if includeReview {
		argv = append(argv, "--include-review")
	}
	if includeTaskLogs {
		argv = append(argv, "--include-task-logs")
	}

	// Publication talks to a remote host; transient failures get a few
	// retries before the error is surfaced on the event log.
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = opts.MaxElapsed

	var output string
	run := func() error {
		out, err := opts.RunCommand(argv)
		output = out
		return err
	}
	if err := backoff.Retry(run, policy); err != nil {
		msg := strings.TrimSpace(output)
		if msg == "" {
			msg = err.Error()
		}
		return fmt.Sprintf("report publish failed: %s", msg)
	}
	if out := strings.TrimSpace(output); out != "" {
		fmt.Println(out)
	}
	return ""
}

func runCommand(argv []string) (string, error) {
	cmd := exec.Command(argv[0], argv[1:]...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	return buf.String(), err
}

func envBool(value string, fallback bool) bool {
	if value == "" {
		return fallback
	}
	return config.EnvTruthy(value)
}

func envString(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func parsePhases(value string, fallback []string) []string {
	if value == "" {
		if len(fallback) > 0 {
			return fallback
		}
		return defaultPhases
	}
	var phases []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			phases = append(phases, item)
		}
	}
	return phases
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
