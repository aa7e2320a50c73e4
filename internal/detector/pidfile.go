package detector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/loykin/pausr/internal/process"
)

// PIDFileResolver reads <Dir>/<appid>.pid files written by a launcher
// wrapper. The first line holds the pid; an optional later line holds
// {"start_unix": N} to reject recycled pids.
type PIDFileResolver struct {
	Dir string
}

type pidMeta struct {
	StartUnix int64 `json:"start_unix"`
}

// WritePIDFile records pid for appID in dir, including its start time.
func WritePIDFile(dir string, appID uint32, pid int) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	mb, _ := json.Marshal(pidMeta{StartUnix: process.StartUnix(pid)})
	content := strconv.Itoa(pid) + "\n" + string(mb) + "\n"
	return os.WriteFile(filepath.Join(dir, fmt.Sprintf("%d.pid", appID)), []byte(content), 0o600)
}

func (d PIDFileResolver) PIDFromAppID(_ context.Context, appID uint32) (int, error) {
	pid, err := readPIDFile(filepath.Join(d.Dir, fmt.Sprintf("%d.pid", appID)))
	if err != nil {
		return 0, err
	}
	if pid == 0 {
		return 0, ErrNotFound
	}
	return pid, nil
}

// AppIDFromPID scans the directory for a pid file naming pid.
func (d PIDFileResolver) AppIDFromPID(_ context.Context, pid int) (uint32, error) {
	if pid <= 0 {
		return 0, ErrNotFound
	}
	entries, err := os.ReadDir(d.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), ".pid")
		if !ok || e.IsDir() {
			continue
		}
		id, err := strconv.ParseUint(name, 10, 32)
		if err != nil || id == 0 {
			continue
		}
		got, err := readPIDFile(filepath.Join(d.Dir, e.Name()))
		if err == nil && got == pid {
			return uint32(id), nil
		}
	}
	return 0, ErrNotFound
}

func (d PIDFileResolver) Describe() string { return "pidfile:" + d.Dir }

// readPIDFile returns the live pid recorded in path, or 0 if the file is
// missing, the process is gone, or the pid was reused.
func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return 0, fmt.Errorf("invalid pid in %s: %w", path, err)
	}
	var start int64
	for _, l := range lines[1:] {
		var m pidMeta
		if err := json.Unmarshal([]byte(strings.TrimSpace(l)), &m); err == nil && m.StartUnix > 0 {
			start = m.StartUnix
			break
		}
	}
	if start > 0 {
		if cur := process.StartUnix(pid); cur > 0 && cur != start {
			return 0, nil
		}
	}
	if !process.Exists(pid) {
		return 0, nil
	}
	return pid, nil
}
