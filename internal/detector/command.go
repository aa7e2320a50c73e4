package detector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
)

// CommandResolver runs a command to look up the pid of an app. Command may
// contain a single %d verb for the app id; the first line of stdout must be
// the pid. A non-zero exit means "not found".
type CommandResolver struct{ Command string }

// buildShellAwareCommand avoids a shell unless shell metacharacters are present.
func buildShellAwareCommand(ctx context.Context, cmdStr string) (*exec.Cmd, error) {
	cmdStr = strings.TrimSpace(cmdStr)
	if cmdStr == "" {
		return nil, errors.New("empty detector command")
	}
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		if runtime.GOOS == "windows" {
			return exec.CommandContext(ctx, "cmd", "/C", cmdStr), nil
		}
		return exec.CommandContext(ctx, "/bin/sh", "-c", cmdStr), nil
	}
	parts := strings.Fields(cmdStr)
	// #nosec G204
	return exec.CommandContext(ctx, parts[0], parts[1:]...), nil
}

func (d CommandResolver) PIDFromAppID(ctx context.Context, appID uint32) (int, error) {
	cmdStr := d.Command
	if strings.Contains(cmdStr, "%d") {
		cmdStr = fmt.Sprintf(cmdStr, appID)
	}
	cmd, err := buildShellAwareCommand(ctx, cmdStr)
	if err != nil {
		return 0, err
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	first, _, _ := strings.Cut(strings.TrimSpace(out.String()), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(first))
	if err != nil || pid <= 0 {
		return 0, ErrNotFound
	}
	return pid, nil
}

// AppIDFromPID is not supported by command lookups.
func (d CommandResolver) AppIDFromPID(context.Context, int) (uint32, error) {
	return 0, ErrNotFound
}

func (d CommandResolver) Describe() string { return "cmd:" + d.Command }
