package oracle

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CommandBackend runs a local program per call. The system instructions and
// the prompt are written to its stdin separated by a blank line; stdout is
// the answer. A non-zero exit status is a failure.
type CommandBackend struct {
	argv []string
	dir  string
}

// NewCommandBackend parses command into fields. An empty command yields
// ErrNoCredentials since there is nothing to call.
func NewCommandBackend(command string) (*CommandBackend, error) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w (empty oracle command)", ErrNoCredentials)
	}
	return &CommandBackend{argv: parts}, nil
}

// WithDir sets the working directory of the subprocess.
func (b *CommandBackend) WithDir(dir string) *CommandBackend {
	b.dir = dir
	return b
}

// Name implements Backend.
func (b *CommandBackend) Name() string { return "command" }

// Complete implements Backend.
func (b *CommandBackend) Complete(ctx context.Context, system, prompt string) (string, error) {
	cmd := exec.CommandContext(ctx, b.argv[0], b.argv[1:]...)
	cmd.Dir = b.dir

	var stdin bytes.Buffer
	if system != "" {
		stdin.WriteString(system)
		stdin.WriteString("\n\n")
	}
	stdin.WriteString(prompt)
	cmd.Stdin = &stdin

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%s: %w: %s", b.argv[0], err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
