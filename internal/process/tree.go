package process

import (
	"context"
	"errors"
	"os"
	"runtime"
	"slices"
	"strconv"
	"strings"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// Descendants returns every descendant pid of root in breadth-first order.
// root itself is not included.
func Descendants(ctx context.Context, root int) ([]int, error) {
	var out []int
	seen := map[int]bool{root: true}
	queue := []int{root}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		cur := queue[0]
		queue = queue[1:]
		kids, err := directChildren(ctx, cur)
		if err != nil {
			// partial trees are still useful; the process may have exited mid-walk
			continue
		}
		for _, k := range kids {
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, k)
			queue = append(queue, k)
		}
	}
	return out, nil
}

// directChildren lists the children of pid sorted ascending.
func directChildren(ctx context.Context, pid int) ([]int, error) {
	p, err := gopsproc.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		if errors.Is(err, gopsproc.ErrorProcessNotRunning) {
			return nil, nil
		}
		return nil, err
	}
	kids, err := p.ChildrenWithContext(ctx)
	if err != nil {
		if errors.Is(err, gopsproc.ErrorNoChildren) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]int, 0, len(kids))
	for _, k := range kids {
		out = append(out, int(k.Pid))
	}
	slices.Sort(out)
	return out, nil
}

// isStopped reports whether pid is in job-control stop state.
func isStopped(ctx context.Context, pid int) bool {
	if runtime.GOOS == "linux" {
		st, ok := procState(pid)
		if ok {
			return st == 'T'
		}
	}
	p, err := gopsproc.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return false
	}
	sts, err := p.StatusWithContext(ctx)
	if err != nil {
		return false
	}
	return slices.Contains(sts, gopsproc.Stop)
}

// procState reads the state letter from /proc/<pid>/stat.
func procState(pid int) (byte, bool) {
	b, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		return 0, false
	}
	line := string(b)
	// comm may contain spaces and parens; state follows the last ") "
	end := strings.LastIndex(line, ") ")
	if end == -1 || end+2 >= len(line) {
		return 0, false
	}
	return line[end+2], true
}
