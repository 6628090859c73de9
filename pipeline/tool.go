package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/grailbio/base/log"
)

// Runner invokes one external collaborator synchronously and returns
// its standard output. How the collaborator actually runs (subprocess,
// library, remote) is the runner's business; the pipeline only sees the
// contract.
type Runner interface {
	Run(ctx context.Context, tool string, args ...string) (stdout []byte, err error)
}

// ToolError is a failed collaborator invocation. Stderr carries the
// captured diagnostic text, Err the process error if the tool also
// exited nonzero.
type ToolError struct {
	Tool   string
	Stderr string
	Err    error
}

func (e *ToolError) Error() string {
	msg := "tool " + e.Tool + " failed"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// ExecRunner runs collaborators as local subprocesses, resolving each
// tool name against ToolPath and then $PATH.
//
// Any output on stderr fails the invocation even when the process exits
// zero: several collaborators report real errors on stderr only, and the
// historical policy treats their warnings as fatal.
type ExecRunner struct {
	ToolPath string
}

func (r *ExecRunner) Run(ctx context.Context, tool string, args ...string) ([]byte, error) {
	path, err := LookTool(tool, r.ToolPath)
	if err != nil {
		return nil, &ToolError{Tool: tool, Err: err}
	}
	log.Debug.Printf("exec: %s %s", path, strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()
	if stderr.Len() > 0 {
		return stdout.Bytes(), &ToolError{
			Tool:   tool,
			Stderr: strings.TrimSpace(stderr.String()),
			Err:    runErr,
		}
	}
	if runErr != nil {
		return stdout.Bytes(), &ToolError{Tool: tool, Err: runErr}
	}
	return stdout.Bytes(), nil
}

// itoa keeps the argument-list builders in stages.go compact.
func itoa(n int) string {
	return fmt.Sprintf("%d", n)
}
