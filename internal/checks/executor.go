// Package checks implements the check execution engine. Given one check
// definition it produces one outcome; it knows nothing about scheduling,
// transport, or persistence.
package checks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/daveram1/EndpointAssessment/internal/models"
	"github.com/daveram1/EndpointAssessment/internal/platform"
	"github.com/daveram1/EndpointAssessment/internal/protocol"
)

const (
	// maxFileContentBytes caps how much of a file a file_content check reads.
	maxFileContentBytes = 10 << 20
	// maxCommandOutputBytes caps captured stdout of a command_output check.
	maxCommandOutputBytes = 64 << 10
	// portProbeTimeout bounds the local connect probe of a port_open check.
	portProbeTimeout = 500 * time.Millisecond
)

// Outcome is the result of executing a single check.
type Outcome struct {
	Status  models.CheckStatus
	Message string
}

func pass(format string, args ...any) Outcome {
	return Outcome{Status: models.CheckPass, Message: fmt.Sprintf(format, args...)}
}

func fail(format string, args ...any) Outcome {
	return Outcome{Status: models.CheckFail, Message: fmt.Sprintf(format, args...)}
}

func errored(format string, args ...any) Outcome {
	return Outcome{Status: models.CheckError, Message: fmt.Sprintf(format, args...)}
}

func skipped(message string) Outcome {
	return Outcome{Status: models.CheckSkipped, Message: message}
}

// Executor evaluates check definitions against the local system.
type Executor struct {
	capabilities platform.Capabilities
	logger       zerolog.Logger
}

// NewExecutor creates an Executor backed by the given capability layer.
func NewExecutor(capabilities platform.Capabilities, logger zerolog.Logger) *Executor {
	return &Executor{
		capabilities: capabilities,
		logger:       logger,
	}
}

// Execute runs one check definition and returns its outcome. Failures are
// reported in the outcome, never as a Go error; a check that cannot be
// evaluated yields CheckError and one whose type is inapplicable on this
// platform yields CheckSkipped.
func (e *Executor) Execute(ctx context.Context, def protocol.AgentCheckDefinition) Outcome {
	outcome := e.dispatch(ctx, def)

	e.logger.Debug().
		Str("check", def.Name).
		Str("type", string(def.CheckType)).
		Str("status", string(outcome.Status)).
		Msg("Check executed")

	return outcome
}

func (e *Executor) dispatch(ctx context.Context, def protocol.AgentCheckDefinition) Outcome {
	switch def.CheckType {
	case models.CheckFileExists:
		return e.fileExists(def.Parameters)
	case models.CheckFileContent:
		return e.fileContent(def.Parameters)
	case models.CheckRegistryKey:
		return e.registryKey(def.Parameters)
	case models.CheckConfigSetting:
		return e.configSetting(def.Parameters)
	case models.CheckProcessRunning:
		return e.processRunning(ctx, def.Parameters)
	case models.CheckPortOpen:
		return e.portOpen(ctx, def.Parameters)
	case models.CheckCommandOutput:
		return e.commandOutput(ctx, def.Parameters)
	default:
		return errored("unknown check type: %s", def.CheckType)
	}
}

func decodeParams[T any](raw json.RawMessage) (T, error) {
	var params T
	if len(raw) == 0 {
		return params, errors.New("missing parameters")
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return params, err
	}
	return params, nil
}

func (e *Executor) fileExists(raw json.RawMessage) Outcome {
	params, err := decodeParams[FileExistsParams](raw)
	if err != nil {
		return errored("invalid parameters: %v", err)
	}
	if params.Path == "" {
		return errored("invalid parameters: path is required")
	}

	_, err = os.Stat(params.Path)
	switch {
	case err == nil:
		return pass("file exists: %s", params.Path)
	case os.IsNotExist(err):
		return fail("file not found: %s", params.Path)
	default:
		return errored("cannot stat %s: %v", params.Path, err)
	}
}

func (e *Executor) fileContent(raw json.RawMessage) Outcome {
	params, err := decodeParams[FileContentParams](raw)
	if err != nil {
		return errored("invalid parameters: %v", err)
	}
	if params.Path == "" || params.Pattern == "" {
		return errored("invalid parameters: path and pattern are required")
	}

	shouldMatch := true
	if params.ShouldMatch != nil {
		shouldMatch = *params.ShouldMatch
	}

	re, err := regexp.Compile(params.Pattern)
	if err != nil {
		return errored("invalid regex pattern: %v", err)
	}

	info, err := os.Stat(params.Path)
	if err != nil {
		return errored("cannot read %s: %v", params.Path, err)
	}
	if info.Size() > maxFileContentBytes {
		return errored("file %s exceeds %d byte read cap", params.Path, maxFileContentBytes)
	}

	content, err := os.ReadFile(params.Path)
	if err != nil {
		return errored("cannot read %s: %v", params.Path, err)
	}

	matched := re.Match(content)
	if matched == shouldMatch {
		if matched {
			return pass("pattern found in %s", params.Path)
		}
		return pass("pattern not found in %s", params.Path)
	}
	if matched {
		return fail("pattern found in %s (expected no match)", params.Path)
	}
	return fail("pattern not found in %s (expected match)", params.Path)
}

func (e *Executor) registryKey(raw json.RawMessage) Outcome {
	params, err := decodeParams[RegistryKeyParams](raw)
	if err != nil {
		return errored("invalid parameters: %v", err)
	}
	if params.Path == "" {
		return errored("invalid parameters: path is required")
	}

	value, err := e.capabilities.ReadRegistryValue(params.Path, params.ValueName)
	switch {
	case errors.Is(err, platform.ErrUnsupported):
		return skipped("registry checks are only available on Windows")
	case errors.Is(err, platform.ErrNotFound):
		return fail("%v", err)
	case err != nil:
		return errored("registry read failed: %v", err)
	}

	if params.ValueName == "" {
		return pass("registry key exists: %s", params.Path)
	}
	if params.Expected == "" {
		return pass("registry value exists: %s = %s", params.ValueName, value)
	}
	if value == params.Expected {
		return pass("registry value matches: %s = %s", params.ValueName, value)
	}
	return fail("registry value mismatch: %s = %s (expected %s)", params.ValueName, value, params.Expected)
}

// configLine matches "key = value" and "key: value" lines, tolerating
// surrounding whitespace.
func configLinePattern(key string) string {
	return `(?m)^\s*` + regexp.QuoteMeta(key) + `\s*[=:]\s*(.*)$`
}

func (e *Executor) configSetting(raw json.RawMessage) Outcome {
	params, err := decodeParams[ConfigSettingParams](raw)
	if err != nil {
		return errored("invalid parameters: %v", err)
	}
	if params.File == "" || params.Key == "" {
		return errored("invalid parameters: file and key are required")
	}

	content, err := os.ReadFile(params.File)
	if err != nil {
		return errored("cannot read config file %s: %v", params.File, err)
	}

	re := regexp.MustCompile(configLinePattern(params.Key))
	match := re.FindSubmatch(content)
	if match == nil {
		return fail("config setting not found: %s in %s", params.Key, params.File)
	}

	value := strings.TrimSpace(string(match[1]))
	value = strings.Trim(value, `"'`)

	if value == params.Expected {
		return pass("config setting matches: %s = %s", params.Key, value)
	}
	return fail("config setting mismatch: %s = %s (expected %s)", params.Key, value, params.Expected)
}

func (e *Executor) processRunning(ctx context.Context, raw json.RawMessage) Outcome {
	params, err := decodeParams[ProcessRunningParams](raw)
	if err != nil {
		return errored("invalid parameters: %v", err)
	}
	if params.Name == "" {
		return errored("invalid parameters: name is required")
	}

	procs, err := e.capabilities.ListProcesses(ctx)
	if err != nil {
		return errored("cannot list processes: %v", err)
	}

	want := strings.ToLower(params.Name)
	for _, proc := range procs {
		if strings.Contains(strings.ToLower(proc.Name), want) {
			return pass("process is running: %s (pid %d)", proc.Name, proc.PID)
		}
	}
	return fail("process not running: %s", params.Name)
}

func (e *Executor) portOpen(ctx context.Context, raw json.RawMessage) Outcome {
	params, err := decodeParams[PortOpenParams](raw)
	if err != nil {
		return errored("invalid parameters: %v", err)
	}
	if params.Port == 0 {
		return errored("invalid parameters: port is required")
	}

	dialer := net.Dialer{Timeout: portProbeTimeout}
	address := fmt.Sprintf("127.0.0.1:%d", params.Port)

	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		if ctx.Err() != nil {
			return errored("port probe interrupted: %v", ctx.Err())
		}
		return fail("port %d is not listening", params.Port)
	}
	conn.Close()
	return pass("port %d is listening", params.Port)
}

func (e *Executor) commandOutput(ctx context.Context, raw json.RawMessage) Outcome {
	params, err := decodeParams[CommandOutputParams](raw)
	if err != nil {
		return errored("invalid parameters: %v", err)
	}
	if params.Command == "" || params.ExpectedPattern == "" {
		return errored("invalid parameters: command and expected_pattern are required")
	}

	re, err := regexp.Compile(params.ExpectedPattern)
	if err != nil {
		return errored("invalid regex pattern: %v", err)
	}

	cmd := shellCommand(ctx, params.Command)

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	runErr := cmd.Run()

	if ctx.Err() != nil {
		return errored("command timed out: %s", params.Command)
	}

	var exitErr *exec.ExitError
	if runErr != nil && !errors.As(runErr, &exitErr) {
		return errored("failed to execute command: %v", runErr)
	}

	output := stdout.Bytes()
	if len(output) > maxCommandOutputBytes {
		output = output[:maxCommandOutputBytes]
	}

	// Pattern match is authoritative: a non-zero exit still passes when the
	// output matches.
	if re.Match(output) {
		return pass("command output matches expected pattern")
	}
	return fail("command output does not match pattern: %s", truncate(string(output), 200))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
