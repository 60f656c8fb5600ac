package progress

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStore_RoundTrip(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), DefaultFilename))

	_, ok, err := s.Read()
	require.NoError(t, err)
	require.False(t, ok)

	in := State{Status: StatusRunning, Percent: 42, Message: "Etapa 4", Step: 4, Timestamp: time.Now()}
	require.NoError(t, s.Write(in))

	out, ok, err := s.Read()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 42, out.Percent)
	require.Equal(t, "Etapa 4", out.Message)
	require.Equal(t, 4, out.Step)
	require.Equal(t, StatusRunning, out.Status)
	require.True(t, in.Equal(out))

	require.NoError(t, s.Reset())
	_, ok, err = s.Read()
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, s.Reset())
}

func TestStore_NoTempFilesLeftBehind(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(filepath.Join(dir, DefaultFilename))
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Write(State{Status: StatusRunning, Percent: i}))
	}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, DefaultFilename, entries[0].Name())
}

func TestStore_ConcurrentReadersNeverSeePartialJSON(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), DefaultFilename))
	require.NoError(t, s.Write(State{Status: StatusRunning}))

	long := make([]Message, 200)
	for i := range long {
		long[i] = Message{Message: "linha de log bem comprida para inflar o documento", Type: MessageInfo}
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			_ = s.Write(State{Status: StatusRunning, Percent: i % 100, Messages: long[:i%len(long)]})
		}
	}()

	for i := 0; i < 500; i++ {
		b, err := os.ReadFile(s.Path())
		require.NoError(t, err)
		require.True(t, json.Valid(b), "partial document observed")
	}
	close(stop)
	wg.Wait()
}

func TestPathFromEnv(t *testing.T) {
	t.Setenv(EnvProgressFile, "")
	require.Equal(t, "fallback.json", PathFromEnv("fallback.json"))
	t.Setenv(EnvProgressFile, "/tmp/x.json")
	require.Equal(t, "/tmp/x.json", PathFromEnv("fallback.json"))
}
