//go:build linux

package process

import (
	"context"
	"os/exec"
	"testing"
	"time"
)

// startTree launches a shell with n sleeping children and waits until they are visible.
func startTree(t *testing.T, script string, want int) *exec.Cmd {
	t.Helper()
	cmd := exec.Command("/bin/sh", "-c", script)
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot start shell: %v", err)
	}
	t.Cleanup(func() {
		if pids, err := Descendants(context.Background(), cmd.Process.Pid); err == nil {
			for _, p := range pids {
				_ = sendSignal(p, sigCont)
				_ = sendSignal(p, 9)
			}
		}
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
	})
	waitFor(t, func() bool {
		pids, _ := Descendants(context.Background(), cmd.Process.Pid)
		return len(pids) >= want
	})
	return cmd
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}

func TestDescendants_Nested(t *testing.T) {
	cmd := startTree(t, `/bin/sh -c 'sleep 30 & wait' & sleep 30 & wait`, 3)
	pids, err := Descendants(context.Background(), cmd.Process.Pid)
	if err != nil {
		t.Fatalf("descendants: %v", err)
	}
	for _, p := range pids {
		if p == cmd.Process.Pid {
			t.Fatalf("root pid must not be listed")
		}
	}
}

func TestPauseResume(t *testing.T) {
	ctx := context.Background()
	l := NewLocal(nil)
	cmd := startTree(t, `sleep 30 & sleep 30 & wait`, 2)
	pid := cmd.Process.Pid

	if paused, err := l.IsPaused(ctx, pid); err != nil || paused {
		t.Fatalf("fresh tree reported paused=%v err=%v", paused, err)
	}
	ok, err := l.Pause(ctx, pid)
	if err != nil || !ok {
		t.Fatalf("pause: ok=%v err=%v", ok, err)
	}
	waitFor(t, func() bool {
		p, _ := l.IsPaused(ctx, pid)
		return p
	})
	// the reaper itself keeps running
	if st, ok := procState(pid); ok && st == 'T' {
		t.Fatalf("root process must not be stopped")
	}

	ok, err = l.Resume(ctx, pid)
	if err != nil || !ok {
		t.Fatalf("resume: ok=%v err=%v", ok, err)
	}
	waitFor(t, func() bool {
		p, _ := l.IsPaused(ctx, pid)
		return !p
	})
}

func TestTerminate(t *testing.T) {
	ctx := context.Background()
	l := NewLocal(nil)
	cmd := startTree(t, `sleep 30 & wait`, 1)
	ok, err := l.Terminate(ctx, cmd.Process.Pid)
	if err != nil || !ok {
		t.Fatalf("terminate: ok=%v err=%v", ok, err)
	}
	waitFor(t, func() bool {
		pids, _ := Descendants(ctx, cmd.Process.Pid)
		return len(pids) == 0
	})
}

func TestNoDescendants(t *testing.T) {
	ctx := context.Background()
	l := NewLocal(nil)
	cmd := exec.Command("sleep", "30")
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot start sleep: %v", err)
	}
	t.Cleanup(func() { _ = cmd.Process.Kill(); _, _ = cmd.Process.Wait() })

	for name, op := range map[string]func(context.Context, int) (bool, error){
		"pause": l.Pause, "resume": l.Resume, "terminate": l.Terminate, "kill": l.Kill, "is_paused": l.IsPaused,
	} {
		if ok, err := op(ctx, cmd.Process.Pid); ok || err != nil {
			t.Fatalf("%s on leaf: ok=%v err=%v", name, ok, err)
		}
	}
	if !Exists(cmd.Process.Pid) {
		t.Fatalf("leaf must survive")
	}
}

func TestInvalidPID(t *testing.T) {
	l := NewLocal(nil)
	if ok, err := l.Pause(context.Background(), 0); ok || err != nil {
		t.Fatalf("pid 0: ok=%v err=%v", ok, err)
	}
	if ok, _ := l.IsPaused(context.Background(), -1); ok {
		t.Fatalf("negative pid must not be paused")
	}
	if Exists(0) {
		t.Fatalf("pid 0 must not exist")
	}
}

func TestStartUnix(t *testing.T) {
	cmd := exec.Command("sleep", "5")
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot start sleep: %v", err)
	}
	defer func() { _ = cmd.Process.Kill(); _, _ = cmd.Process.Wait() }()
	got := StartUnix(cmd.Process.Pid)
	now := time.Now().Unix()
	if got <= 0 || got > now+1 || now-got > 60 {
		t.Fatalf("start time %d not near now %d", got, now)
	}
	if StartUnix(0) != 0 {
		t.Fatalf("pid 0 must return 0")
	}
}
