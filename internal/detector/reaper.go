package detector

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// DefaultReaperPattern matches the launcher's reaper command line for an app.
const DefaultReaperPattern = `/reaper\s.*\bAppId=%d\b`

// ReaperResolver finds apps by the command line of the launcher reaper
// process, which carries an AppId=<n> argument.
type ReaperResolver struct {
	// Pattern is a regexp with a single %d verb for the app id.
	Pattern string
}

// PIDFromAppID returns the oldest process whose full command line matches.
func (r ReaperResolver) PIDFromAppID(ctx context.Context, appID uint32) (int, error) {
	pat := r.Pattern
	if pat == "" {
		pat = DefaultReaperPattern
	}
	re, err := regexp.Compile(fmt.Sprintf(pat, appID))
	if err != nil {
		return 0, fmt.Errorf("reaper pattern: %w", err)
	}
	procs, err := gopsproc.ProcessesWithContext(ctx)
	if err != nil {
		return 0, err
	}
	best, bestStart := 0, int64(0)
	for _, p := range procs {
		cmd, err := p.CmdlineWithContext(ctx)
		if err != nil || cmd == "" || !re.MatchString(cmd) {
			continue
		}
		start, err := p.CreateTimeWithContext(ctx)
		if err != nil {
			start = 0
		}
		if best == 0 || start < bestStart || (start == bestStart && int(p.Pid) < best) {
			best, bestStart = int(p.Pid), start
		}
	}
	if best == 0 {
		return 0, ErrNotFound
	}
	return best, nil
}

// AppIDFromPID walks from pid up the parent chain, stopping before pid 1,
// and returns the first AppId=<n> argument it sees.
func (r ReaperResolver) AppIDFromPID(ctx context.Context, pid int) (uint32, error) {
	seen := map[int]bool{}
	for pid > 1 && !seen[pid] {
		seen[pid] = true
		p, err := gopsproc.NewProcessWithContext(ctx, int32(pid))
		if err != nil {
			break
		}
		if args, err := p.CmdlineSliceWithContext(ctx); err == nil {
			if id, ok := appIDArg(args); ok {
				return id, nil
			}
		}
		ppid, err := p.PpidWithContext(ctx)
		if err != nil {
			break
		}
		pid = int(ppid)
	}
	return 0, ErrNotFound
}

func (r ReaperResolver) Describe() string {
	if r.Pattern == "" {
		return "reaper:" + DefaultReaperPattern
	}
	return "reaper:" + r.Pattern
}

func appIDArg(args []string) (uint32, bool) {
	for _, a := range args {
		v, ok := strings.CutPrefix(a, "AppId=")
		if !ok {
			continue
		}
		id, err := strconv.ParseUint(v, 10, 32)
		if err == nil && id > 0 {
			return uint32(id), true
		}
	}
	return 0, false
}
