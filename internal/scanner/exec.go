package scanner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	sharedErrors "github.com/khanhnv2901/webaudit-cli/internal/shared/errors"
)

// lookPath is swappable in tests to simulate absent tools.
var lookPath = exec.LookPath

// toolAvailable reports whether the named executable is on PATH. Presence is
// checked here rather than by attempting an invocation, so an absent tool
// never surfaces as an execution error.
func toolAvailable(name string) bool {
	_, err := lookPath(name)
	return err == nil
}

// runTool executes an external tool with a bounded timeout and returns its
// stdout. Each invocation spawns its own process; nothing is pooled or
// retried. Timeouts, non-zero exits and context cancellation all come back as
// wrapped errors for the caller to fold into a ScanResult.
func runTool(ctx context.Context, timeout time.Duration, name string, args ...string) ([]byte, error) {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s after %s", sharedErrors.ErrToolTimeout, name, timeout)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return nil, fmt.Errorf("%w: %s: %s", sharedErrors.ErrToolExecution, name, firstLine(detail))
	}

	return stdout.Bytes(), nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// toolErrorReason condenses a runTool error into a short status reason.
func toolErrorReason(err error) string {
	switch {
	case errors.Is(err, sharedErrors.ErrToolTimeout):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return firstLine(err.Error())
	}
}
