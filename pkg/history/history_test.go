package history

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStoreKeepsLatestLinePerRun(t *testing.T) {
	dir, err := os.MkdirTemp("", "mdfctl-history-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	s := NewStore(HistoryPath(dir))
	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.Append(Record{ID: "a", ScriptName: "mdf_sp", StartTime: t0, Status: StatusRunning}))
	require.NoError(t, s.Append(Record{ID: "b", ScriptName: "mdf_rj", StartTime: t0.Add(time.Hour), Status: StatusRunning}))

	end := t0.Add(2 * time.Minute)
	code := 1
	require.NoError(t, s.Append(Record{
		ID: "a", ScriptName: "mdf_sp", StartTime: t0, EndTime: &end,
		Status: StatusError, ExitCode: &code, FailureKind: KindDependencyMissing,
		MissingModules: []string{"pyautogui"},
	}))

	all, err := s.List(ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "b", all[0].ID)
	require.Equal(t, StatusError, all[1].Status)
	require.True(t, all[1].Finished())
	require.Equal(t, 2*time.Minute, all[1].Duration())
	require.Equal(t, []string{"pyautogui"}, all[1].MissingModules)

	recent, err := s.List(ListOptions{Since: t0.Add(30 * time.Minute)})
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, "b", recent[0].ID)

	limited, err := s.List(ListOptions{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)

	got, err := s.Get("a")
	require.NoError(t, err)
	require.Equal(t, 1, *got.ExitCode)

	_, err = s.Get("missing")
	require.Error(t, err)
}

func TestStoreListWithoutFile(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "nope.jsonl"))
	all, err := s.List(ListOptions{})
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestStoreRejectsRecordWithoutID(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "h.jsonl"))
	require.Error(t, s.Append(Record{}))
}

func TestOutputBufferCapsLines(t *testing.T) {
	b := NewOutputBuffer(3)
	for _, l := range []string{"1", "2", "3", "4", "5"} {
		b.Append(l)
	}
	require.Equal(t, []string{"3", "4", "5"}, b.Lines())
	require.Equal(t, 3, b.Len())
	require.Equal(t, MaxOutputLines, NewOutputBuffer(0).max)
}

func TestActiveRunRoundTrip(t *testing.T) {
	dir := t.TempDir()
	none, err := LoadActive(dir)
	require.NoError(t, err)
	require.Nil(t, none)

	a := &ActiveRun{ID: "r1", PID: 1234, ScriptName: "mdf_sp", StartedAt: time.Now().UTC().Truncate(time.Second)}
	require.NoError(t, SaveActive(dir, a))

	got, err := LoadActive(dir)
	require.NoError(t, err)
	require.Equal(t, a.ID, got.ID)
	require.Equal(t, a.PID, got.PID)
	require.True(t, a.StartedAt.Equal(got.StartedAt))

	require.NoError(t, RemoveActive(dir))
	require.NoError(t, RemoveActive(dir))
}

func TestClaimActive(t *testing.T) {
	dir := t.TempDir()
	alive := map[int]bool{100: true}
	isAlive := func(pid int) bool { return alive[pid] }

	holder, err := ClaimActive(dir, &ActiveRun{ID: "r1", HostPID: 100}, isAlive)
	require.NoError(t, err)
	require.Nil(t, holder)

	holder, err = ClaimActive(dir, &ActiveRun{ID: "r2", HostPID: 200}, isAlive)
	require.ErrorIs(t, err, ErrActiveClaimed)
	require.Equal(t, "r1", holder.ID)

	// the owner went away without cleaning up
	alive[100] = false
	_, err = ClaimActive(dir, &ActiveRun{ID: "r2", HostPID: 200}, isAlive)
	require.NoError(t, err)
	got, err := LoadActive(dir)
	require.NoError(t, err)
	require.Equal(t, "r2", got.ID)
}

func TestClaimActiveReplacesCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(StateDir(dir), 0o755))
	require.NoError(t, os.WriteFile(ActivePath(dir), []byte("{not json"), 0o644))

	_, err := ClaimActive(dir, &ActiveRun{ID: "r1"}, func(int) bool { return true })
	require.NoError(t, err)
	got, err := LoadActive(dir)
	require.NoError(t, err)
	require.Equal(t, "r1", got.ID)
}

func TestRequestStopAndRelease(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, SaveActive(dir, &ActiveRun{ID: "r1", PID: 1234}))

	require.NoError(t, RequestStop(dir, "other", time.Now()))
	got, err := LoadActive(dir)
	require.NoError(t, err)
	require.Nil(t, got.StopRequestedAt)

	require.NoError(t, RequestStop(dir, "r1", time.Now()))
	got, err = LoadActive(dir)
	require.NoError(t, err)
	require.NotNil(t, got.StopRequestedAt)
	require.Equal(t, 1234, got.PID)

	require.NoError(t, ReleaseActive(dir, "other"))
	got, err = LoadActive(dir)
	require.NoError(t, err)
	require.NotNil(t, got)

	require.NoError(t, ReleaseActive(dir, "r1"))
	got, err = LoadActive(dir)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestSanitizeName(t *testing.T) {
	require.Equal(t, "Emissao-MDF-e-Sao-Paulo", SanitizeName("Emissão MDF-e São Paulo"))
	require.Equal(t, "mdf_sp.py", SanitizeName("  mdf_sp.py "))
	require.Equal(t, fallbackLogName, SanitizeName("???"))
	require.Equal(t, fallbackLogName, SanitizeName(""))
}

func TestRunLogWritesHeaderAndLines(t *testing.T) {
	dir := t.TempDir()
	started := time.Date(2024, 3, 1, 9, 5, 7, 0, time.Local)

	l, err := OpenRunLog(dir, "Emissão SP", started)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "20240301-090507-Emissao-SP.log"), l.Path())
	require.NoError(t, l.WriteLine("first\r\n"))
	require.NoError(t, l.WriteLine("second"))
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
	require.Error(t, l.WriteLine("late"))

	b, err := os.ReadFile(l.Path())
	require.NoError(t, err)
	require.Equal(t, "### Log de execução - Emissão SP ###\nfirst\nsecond\n", string(b))

	latest, err := LatestLog(dir)
	require.NoError(t, err)
	require.Equal(t, l.Path(), latest)

	_, err = LatestLog(t.TempDir())
	require.Error(t, err)
}

func TestParseLine(t *testing.T) {
	now := time.Date(2024, 1, 1, 13, 14, 15, 0, time.Local)

	e := ParseLine("[AutoMDF][WARNING][08:01:02]   campo vazio", now)
	require.Equal(t, "WARNING", e.Level)
	require.Equal(t, "08:01:02", e.Timestamp)
	require.Equal(t, "campo vazio", e.Message)
	require.Equal(t, "[08:01:02] [WARNING] campo vazio", e.Display())
	require.False(t, e.IsErrorLevel())

	e = ParseLine("Traceback (most recent call last):\n", now)
	require.Equal(t, "INFO", e.Level)
	require.Equal(t, "13:14:15", e.Timestamp)
	require.Equal(t, "Traceback (most recent call last):", e.Raw)

	require.True(t, ParseLine("[AutoMDF][ERROR][00:00:00] x", now).IsErrorLevel())
}

func TestTailLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	var lines []string
	for i := 0; i < 100; i++ {
		lines = append(lines, strings.Repeat("x", i%7)+"line")
	}
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))

	got, err := TailLines(path, 3, 0)
	require.NoError(t, err)
	require.Equal(t, lines[97:], got)

	// a tiny byte budget drops the partial first line
	got, err = TailLines(path, 100, 20)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	require.Equal(t, lines[99], got[len(got)-1])

	_, err = TailLines("", 1, 0)
	require.Error(t, err)
}

func TestExitInfoRoundTrip(t *testing.T) {
	dir := t.TempDir()
	log := filepath.Join(dir, "20240301-090507-sp.log")
	path := ExitInfoPath(log)
	require.Equal(t, filepath.Join(dir, "20240301-090507-sp.exit.json"), path)

	code := 2
	require.NoError(t, WriteExitInfo(path, ExitInfo{RunID: "r", PID: 10, ExitCode: &code, OutputTail: []string{"boom"}}))
	info, err := ReadExitInfo(path)
	require.NoError(t, err)
	require.Equal(t, 2, *info.ExitCode)
	require.Equal(t, []string{"boom"}, info.OutputTail)
}
