package runtime

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"time"

	"github.com/zulandar/roundhouse/internal/agent"
)

const (
	// maxScanTokenSize caps one stream-json line. Tool-use events with
	// large inputs need headroom.
	maxScanTokenSize = 1024 * 1024
	// scanBufferSize is the scanner's initial buffer.
	scanBufferSize = 64 * 1024
)

// SpawnOpts holds parameters for spawning the model CLI subprocess.
type SpawnOpts struct {
	Binary       string // path to the claude binary, default "claude"
	SystemPrompt string
	Prompt       string
	Model        string // optional model override
	MaxTurns     int    // 0 means no turn budget flag
	WorkDir      string
	Credential   string // API key, set in the child environment only
	BaseURL      string // optional API endpoint override
}

// Process is one running model subprocess exposed as a MessageStream.
type Process struct {
	PID int

	cmd     *exec.Cmd
	cancel  context.CancelFunc
	stdout  io.ReadCloser
	scanner *bufio.Scanner
	waitCh  chan error
	waited  bool
	waitErr error
}

// GenerateSessionID creates a sess-xxxxxxxx identifier (8-char hex).
func GenerateSessionID() (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("runtime: generate session ID: %w", err)
	}
	return "sess-" + hex.EncodeToString(b), nil
}

// Spawn starts the model CLI in stream-json mode. The returned Process is
// the execution's MessageStream; the caller must drain it and then Close.
func Spawn(ctx context.Context, opts SpawnOpts) (*Process, error) {
	if opts.Prompt == "" {
		return nil, fmt.Errorf("runtime: prompt is required")
	}

	ctx, cancel := context.WithCancel(ctx)

	binary := opts.Binary
	if binary == "" {
		binary = "claude"
	}

	args := []string{
		"--dangerously-skip-permissions",
		"--verbose",
		"--output-format", "stream-json",
	}
	if opts.SystemPrompt != "" {
		args = append(args, "--system-prompt", opts.SystemPrompt)
	}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	if opts.MaxTurns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(opts.MaxTurns))
	}
	args = append(args, "-p", opts.Prompt)

	cmd := exec.CommandContext(ctx, binary, args...)
	if opts.WorkDir != "" {
		cmd.Dir = opts.WorkDir
	}
	cmd.Env = os.Environ()
	if opts.Credential != "" {
		cmd.Env = append(cmd.Env, "ANTHROPIC_API_KEY="+opts.Credential)
	}
	if opts.BaseURL != "" {
		cmd.Env = append(cmd.Env, "ANTHROPIC_BASE_URL="+opts.BaseURL)
	}
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = 10 * time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("runtime: stdout pipe: %w", err)
	}
	cmd.Stderr = io.Discard

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("runtime: start %s: %w", binary, err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, scanBufferSize), maxScanTokenSize)

	waitCh := make(chan error, 1)
	go func() {
		waitCh <- cmd.Wait()
	}()

	return &Process{
		PID:     cmd.Process.Pid,
		cmd:     cmd,
		cancel:  cancel,
		stdout:  stdout,
		scanner: scanner,
		waitCh:  waitCh,
	}, nil
}

// Next implements agent.MessageStream. It scans stdout lines until one
// decodes, returns io.EOF on clean subprocess exit, and surfaces a non-zero
// exit as the stream error.
func (p *Process) Next(ctx context.Context) (agent.StreamMessage, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !p.scanner.Scan() {
			if err := p.scanner.Err(); err != nil {
				return nil, fmt.Errorf("runtime: read stream: %w", err)
			}
			if err := p.wait(); err != nil {
				return nil, fmt.Errorf("runtime: subprocess: %w", err)
			}
			return nil, io.EOF
		}
		if msg, ok := DecodeLine(p.scanner.Bytes()); ok {
			return msg, nil
		}
	}
}

// wait collects the subprocess exit status exactly once.
func (p *Process) wait() error {
	if !p.waited {
		p.waitErr = <-p.waitCh
		p.waited = true
	}
	return p.waitErr
}

// Close terminates the subprocess if still running and releases resources.
func (p *Process) Close() error {
	p.cancel()
	err := p.wait()
	if err != nil && err.Error() == "signal: terminated" {
		return nil
	}
	return err
}
