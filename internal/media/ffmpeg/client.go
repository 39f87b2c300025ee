package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) error
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// Client runs ffmpeg.
type Client struct {
	binary string
	exec   Executor
}

// New constructs a Client for binary.
func New(binary string, opts ...Option) *Client {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	client := &Client{binary: binary, exec: commandExecutor{}}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Concat re-encodes spec.Inputs into spec.Output through one filter graph.
func (c *Client) Concat(ctx context.Context, spec ConcatSpec) error {
	if len(spec.Inputs) == 0 {
		return errors.New("concat: no inputs")
	}
	return c.exec.Run(ctx, c.binary, BuildConcat(spec))
}

// ConcatCopy stream-copies inputs into output via the concat demuxer. The
// list file is written next to output and removed afterwards.
func (c *Client) ConcatCopy(ctx context.Context, inputs []string, output string) error {
	if len(inputs) == 0 {
		return errors.New("concat copy: no inputs")
	}
	list, err := os.CreateTemp(filepath.Dir(output), ".concat.partial-*.txt")
	if err != nil {
		return fmt.Errorf("create concat list: %w", err)
	}
	listPath := list.Name()
	defer os.Remove(listPath)

	abs := make([]string, 0, len(inputs))
	for _, in := range inputs {
		path, err := filepath.Abs(in)
		if err != nil {
			_ = list.Close()
			return fmt.Errorf("resolve %q: %w", in, err)
		}
		abs = append(abs, path)
	}
	if err := WriteConcatList(list, abs); err != nil {
		_ = list.Close()
		return err
	}
	if err := list.Close(); err != nil {
		return fmt.Errorf("close concat list: %w", err)
	}
	return c.exec.Run(ctx, c.binary, BuildDemuxerConcat(listPath, output))
}

// Compress re-encodes input into output.
func (c *Client) Compress(ctx context.Context, input, output string, enc Encode) error {
	return c.exec.Run(ctx, c.binary, BuildCompress(input, output, enc))
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("ffmpeg interrupted: %w", ctx.Err())
	}
	exitCode := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	}
	captured := tail(stderr.String())
	return &EngineError{
		ExitCode: exitCode,
		Stderr:   captured,
		Reason:   Classify(captured),
		Err:      err,
	}
}
