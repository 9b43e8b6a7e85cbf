package guard_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcyd/arcyd/internal/guard"
)

func TestAcquireWritesOwnPIDWhenNoFileExists(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "pid")
	g := guard.New(pidPath)

	require.NoError(t, g.Acquire())

	data, err := os.ReadFile(pidPath)
	require.NoError(t, err)
	pid, err := strconv.Atoi(string(data))
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestAcquireFailsWhenPIDFileNamesALiveProcess(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "pid")
	require.NoError(t, os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0o644))

	g := guard.New(pidPath)
	err := g.Acquire()
	assert.ErrorIs(t, err, guard.ErrAlreadyRunning)
}

func TestAcquireSucceedsWhenPIDFileIsStale(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "pid")

	cmd := exec.Command("sleep", "0.01")
	require.NoError(t, cmd.Start())
	deadPID := cmd.Process.Pid
	_ = cmd.Wait()

	require.NoError(t, os.WriteFile(pidPath, []byte(strconv.Itoa(deadPID)), 0o644))

	g := guard.New(pidPath)
	assert.NoError(t, g.Acquire())
}

func TestReleaseRemovesPIDFile(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "pid")
	g := guard.New(pidPath)
	require.NoError(t, g.Acquire())

	require.NoError(t, g.Release())
	_, err := os.Stat(pidPath)
	assert.True(t, os.IsNotExist(err))
}

func TestReleaseIsIdempotent(t *testing.T) {
	g := guard.New(filepath.Join(t.TempDir(), "pid"))
	assert.NoError(t, g.Release())
}

func TestRestartIsNoopWhenNoInstanceIsRunning(t *testing.T) {
	dir := t.TempDir()
	g := guard.New(filepath.Join(dir, "pid"))

	err := g.Restart(context.Background(), guard.RestartOptions{
		KillFilePath: filepath.Join(dir, "killfile"),
	})
	assert.NoError(t, err)
}

func TestRestartWaitsForKillFileRemovalThenPIDDeath(t *testing.T) {
	dir := t.TempDir()
	pidPath := filepath.Join(dir, "pid")
	killPath := filepath.Join(dir, "killfile")

	cmd := exec.Command("sleep", "5")
	require.NoError(t, cmd.Start())
	livePID := cmd.Process.Pid
	t.Cleanup(func() { _ = cmd.Process.Kill() })

	require.NoError(t, os.WriteFile(pidPath, []byte(strconv.Itoa(livePID)), 0o644))
	g := guard.New(pidPath)

	// Simulate the running daemon: remove the kill-file shortly after it
	// appears, then exit, mirroring SignalWatcher.Check's consumption of
	// the kill-file followed by process shutdown.
	go func() {
		for {
			if _, err := os.Stat(killPath); err == nil {
				os.Remove(killPath)
				_ = cmd.Process.Kill()
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := g.Restart(ctx, guard.RestartOptions{
		KillFilePath: killPath,
		PollInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	_, statErr := os.Stat(killPath)
	assert.True(t, os.IsNotExist(statErr))
}
