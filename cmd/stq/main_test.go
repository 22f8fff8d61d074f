package main

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestMain lets tests re-run this binary as the real stq command.
func TestMain(m *testing.M) {
	if os.Getenv("STQ_TEST_RUN_MAIN") == "1" {
		main()
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func execute(ctx context.Context, args ...string) (string, error) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestCLI_AddTask(t *testing.T) {
	root := filepath.Join(t.TempDir(), "q")

	out, err := execute(context.Background(), root, "--add-task", "echo hi")
	require.NoError(t, err)
	require.Equal(t, "echo_hi\n", out)

	out, err = execute(context.Background(), root, "-a", "echo hi")
	require.NoError(t, err)
	require.Equal(t, "echo_hi_1\n", out)

	out, err = execute(context.Background(), root, "-a", "make", "-n", "build", "-d", "/src")
	require.NoError(t, err)
	require.Equal(t, "build\n", out)
	data, err := os.ReadFile(filepath.Join(root, "QUEUE", "build"))
	require.NoError(t, err)
	require.Equal(t, "#!/bin/bash\ncd /src\nmake", string(data))

	require.NoFileExists(t, filepath.Join(root, "PIDS", "anything"))
	pids, err := os.ReadDir(filepath.Join(root, "PIDS"))
	require.NoError(t, err)
	require.Empty(t, pids, "submitting must not register a worker")
}

func TestCLI_Status(t *testing.T) {
	root := filepath.Join(t.TempDir(), "q")
	_, err := execute(context.Background(), root, "-a", "sleep 1")
	require.NoError(t, err)

	out, err := execute(context.Background(), root, "--status")
	require.NoError(t, err)
	require.Contains(t, out, "QUEUE")
	require.Contains(t, out, "(1)")
	require.Contains(t, out, "sleep_1")
	require.Contains(t, out, "FINISHED")
}

func TestCLI_WorkerRunsUntilCancelled(t *testing.T) {
	root := filepath.Join(t.TempDir(), "q")
	_, err := execute(context.Background(), root, "-a", "echo hi")
	require.NoError(t, err)

	t.Setenv("STQ_POLL_INTERVAL", "10ms")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := execute(ctx, root)
		done <- err
	}()

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(root, "FINISHED", "echo_hi", "out.txt"))
		return err == nil
	}, 10*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("worker did not stop")
	}
	pids, err := os.ReadDir(filepath.Join(root, "PIDS"))
	require.NoError(t, err)
	require.Empty(t, pids)
}

func TestCLI_SIGTERMStopsIdleWorker(t *testing.T) {
	root := filepath.Join(t.TempDir(), "q")
	var out bytes.Buffer
	cmd := exec.Command(os.Args[0], root)
	cmd.Env = append(os.Environ(), "STQ_TEST_RUN_MAIN=1", "STQ_POLL_INTERVAL=1h")
	cmd.Stdout = &out
	cmd.Stderr = &out
	require.NoError(t, cmd.Start())

	pids := filepath.Join(root, "PIDS")
	require.Eventually(t, func() bool {
		des, err := os.ReadDir(pids)
		return err == nil && len(des) == 1
	}, 10*time.Second, 10*time.Millisecond)
	require.NoError(t, cmd.Process.Signal(syscall.SIGTERM))

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case err := <-done:
		require.NoError(t, err, out.String())
	case <-time.After(10 * time.Second):
		_ = cmd.Process.Kill()
		t.Fatal("worker ignored SIGTERM")
	}
	des, err := os.ReadDir(pids)
	require.NoError(t, err)
	require.Empty(t, des)
}

func TestCLI_ConfigFile(t *testing.T) {
	root := filepath.Join(t.TempDir(), "q")
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "stq.yaml"), []byte("log-level: chatty\n"), 0o644))

	_, err := execute(context.Background(), root, "--status")
	require.ErrorContains(t, err, "chatty")

	// flags win over the file
	_, err = execute(context.Background(), root, "--status", "--log-level", "warn")
	require.NoError(t, err)
}

func TestCLI_RequiresQueueDirectory(t *testing.T) {
	_, err := execute(context.Background())
	require.Error(t, err)
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	got, err := expandPath("~/queue")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, "queue"), got)

	got, err = expandPath("/abs/q")
	require.NoError(t, err)
	require.Equal(t, "/abs/q", got)
}
