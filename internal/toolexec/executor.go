package toolexec

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Command is one external tool invocation.
type Command struct {
	Name string
	Args []string
}

// String renders the command line for logs.
func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// ExecResult holds the outcome of a single tool invocation.
type ExecResult struct {
	Stderr string
	Err    error
}

// Runner executes commands. Implementations must be safe for concurrent use.
type Runner interface {
	Run(ctx context.Context, cmd Command) ExecResult
}

// Exec runs commands with os/exec.
type Exec struct {
	Verbose bool // Tee stderr to os.Stderr while capturing it.
}

// Run starts cmd and waits for it. The process is killed when ctx is done.
func (e Exec) Run(ctx context.Context, c Command) ExecResult {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)

	var stderrBuf bytes.Buffer
	if e.Verbose {
		cmd.Stderr = io.MultiWriter(&stderrBuf, os.Stderr)
	} else {
		cmd.Stderr = &stderrBuf
	}

	err := cmd.Run()
	if err != nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return ExecResult{
		Stderr: stderrBuf.String(),
		Err:    err,
	}
}

// Available reports whether name resolves on PATH.
func Available(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// Version runs "<name> <flag>" and returns the first non-empty line of its
// combined output. Tools such as cjpeg print their version on stderr.
func Version(ctx context.Context, name, flag string) (string, error) {
	out, err := exec.CommandContext(ctx, name, flag).CombinedOutput()
	line := firstLine(string(out))
	if line == "" && err != nil {
		return "", err
	}
	return line, nil
}

func firstLine(s string) string {
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			return l
		}
	}
	return ""
}
