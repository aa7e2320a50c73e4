package main

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestPidFileRoundTrip(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "pausr.pid")

	if err := writePidFile(pidFile, os.Getpid()); err != nil {
		t.Fatalf("writePidFile failed: %v", err)
	}
	pid, err := readPidFile(pidFile)
	if err != nil || pid != os.Getpid() {
		t.Fatalf("readPidFile = %d, %v; want %d", pid, err, os.Getpid())
	}
	if err := removePidFile(pidFile); err != nil {
		t.Fatalf("removePidFile failed: %v", err)
	}
	if _, err := os.Stat(pidFile); !os.IsNotExist(err) {
		t.Fatal("PID file was not removed")
	}
	if err := removePidFile(""); err != nil {
		t.Fatalf("empty pidfile should be a no-op: %v", err)
	}
}

func TestReadPidFileInvalid(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "bad.pid")
	if err := os.WriteFile(pidFile, []byte("not-a-pid"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := readPidFile(pidFile); err == nil {
		t.Fatal("expected error for garbage pid file")
	}
}

func TestChildArgs(t *testing.T) {
	in := []string{"serve", "--daemonize", "--config", "pausr.toml", "--logfile", "/tmp/x.log", "--logfile=/tmp/y.log", "--daemonize=true"}
	want := []string{"serve", "--config", "pausr.toml"}
	if got := childArgs(in); !reflect.DeepEqual(got, want) {
		t.Fatalf("childArgs = %v, want %v", got, want)
	}
}
