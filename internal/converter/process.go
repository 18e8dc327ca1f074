// Package converter runs the external corpus converter that turns an
// uploaded file into a stored treebank.
package converter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"annotatrix/internal/annotatrix"
	"annotatrix/internal/config"
)

// DefaultTimeout bounds a converter run when none is configured.
const DefaultTimeout = 60 * time.Second

// Process implements annotatrix.Converter by running a command once per
// upload. The upload is written to the command's stdin; on success its
// stdout names the new treebank.
type Process struct {
	command string
	args    []string
	timeout time.Duration
	logger  annotatrix.Logger
}

var _ annotatrix.Converter = (*Process)(nil)

// New creates a Process running command with args.
func New(command string, args []string, timeout time.Duration, logger annotatrix.Logger) *Process {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = annotatrix.NewNopLogger()
	}
	return &Process{
		command: command,
		args:    args,
		timeout: timeout,
		logger:  logger,
	}
}

// NewFromConfig creates the converter the server runs on upload. The
// converter saves through the server's own API, so it is told where that
// API listens.
func NewFromConfig(cfg config.ConverterConfig, server config.ServerConfig, logger annotatrix.Logger) (*Process, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("converter command required")
	}
	timeout, err := cfg.TimeoutDuration()
	if err != nil {
		return nil, err
	}
	return New(cfg.Command, SaveArgs(server), timeout, logger), nil
}

// SaveArgs are the converter flags pointing it at the running server.
func SaveArgs(server config.ServerConfig) []string {
	return []string{
		"--save",
		"--host", server.Host,
		"--port", strconv.Itoa(server.Port),
		"--protocol", server.Protocol,
	}
}

// Convert runs the command with input on stdin and returns its stdout.
// A non-zero exit or a run longer than the timeout returns an
// *annotatrix.ExternalToolError.
func (p *Process) Convert(ctx context.Context, input []byte) ([]byte, error) {
	runCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.Command(p.command, p.args...)
	cmd.Env = os.Environ()
	cmd.Stdin = bytes.NewReader(input)

	// Own process group so a timeout also kills anything the tool spawned.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start converter: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var err error
	select {
	case <-runCtx.Done():
		syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		<-done
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			p.logger.Error("converter timed out", "command", p.command, "timeout", p.timeout)
			return nil, &annotatrix.ExternalToolError{
				ExitCode: -1,
				TimedOut: true,
				Output:   diagnostic(stdout.Bytes(), stderr.Bytes()),
			}
		}
		return nil, fmt.Errorf("converter cancelled: %w", ctx.Err())
	case err = <-done:
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("failed to run converter: %w", err)
		}
		output := diagnostic(stdout.Bytes(), stderr.Bytes())
		p.logger.Error("converter failed", "command", p.command, "exit_code", exitErr.ExitCode(), "output", output)
		return nil, &annotatrix.ExternalToolError{
			ExitCode: exitErr.ExitCode(),
			Output:   output,
		}
	}

	p.logger.Debug("converter finished", "command", p.command, "bytes_in", len(input), "duration", time.Since(start))
	return stdout.Bytes(), nil
}

// diagnostic picks the text shown to the uploader: what the tool printed on
// stdout, or its stderr when stdout is empty.
func diagnostic(stdout, stderr []byte) string {
	if out := strings.TrimSpace(string(stdout)); out != "" {
		return out
	}
	return strings.TrimSpace(string(stderr))
}
