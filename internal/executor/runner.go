package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// Runner executes one Python snippet in isolation and returns its
// stdout and stderr. A non-nil error means the harness itself failed;
// user-code failures surface through stderr and the exit error.
type Runner interface {
	RunSnippet(ctx context.Context, source string) (stdout, stderr string, err error)
}

// ErrTimedOut marks an execution killed by the wall-clock limit.
var ErrTimedOut = errors.New("execution timed out")

// LocalRunner executes snippets with the host python3 interpreter.
// Each snippet gets a fresh temp directory and a fresh process, so
// state never leaks between test cases.
type LocalRunner struct {
	python string
}

func NewLocalRunner() *LocalRunner {
	return &LocalRunner{python: "python3"}
}

func (r *LocalRunner) RunSnippet(ctx context.Context, source string) (string, string, error) {
	tmpDir, err := os.MkdirTemp("", "drillbench-run-*")
	if err != nil {
		return "", "", fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	scriptPath := filepath.Join(tmpDir, "main.py")
	if err := os.WriteFile(scriptPath, []byte(source), 0o644); err != nil {
		return "", "", fmt.Errorf("write snippet: %w", err)
	}

	cmd := exec.CommandContext(ctx, r.python, "-u", scriptPath)
	cmd.Dir = tmpDir

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	runErr := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return outBuf.String(), errBuf.String(), ErrTimedOut
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			// Interpreter ran and the snippet failed; stderr carries
			// the traceback. Not a harness error.
			return outBuf.String(), errBuf.String(), nil
		}
		return "", "", fmt.Errorf("run python3: %w", runErr)
	}

	return outBuf.String(), errBuf.String(), nil
}
