package proc

import (
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAliveSelf(t *testing.T) {
	require.True(t, Alive(os.Getpid()))
	require.False(t, Alive(0))
	require.False(t, Alive(-5))
}

func TestAliveAfterExit(t *testing.T) {
	cmd := exec.Command("bash", "-c", "exit 0")
	require.NoError(t, cmd.Start())
	pid := cmd.Process.Pid

	// unreaped child is a zombie, which counts as dead
	deadline := time.Now().Add(3 * time.Second)
	for Alive(pid) && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	require.False(t, Alive(pid))
	require.True(t, IsZombie(pid))
	require.NoError(t, cmd.Wait())
	require.False(t, IsZombie(pid))
}

func TestSamplerSelf(t *testing.T) {
	s := NewSampler()
	first, err := s.Sample(os.Getpid())
	require.NoError(t, err)
	require.Equal(t, os.Getpid(), first.PID)
	require.Greater(t, first.RSSBytes, int64(0))
	require.Greater(t, first.Threads, 0)
	require.Zero(t, first.CPUPercent)

	second, err := s.Sample(os.Getpid())
	require.NoError(t, err)
	require.GreaterOrEqual(t, second.CPUPercent, 0.0)
	s.Forget(os.Getpid())

	_, err = s.Sample(-1)
	require.Error(t, err)

	started, err := StartTime(os.Getpid())
	require.NoError(t, err)
	require.True(t, started.Before(time.Now().Add(time.Second)))
}
