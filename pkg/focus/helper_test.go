package focus

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/auto-mdf/mdfctl/pkg/desktop"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeWM struct {
	mu       sync.Mutex
	windows  []desktop.Window
	active   desktop.Window
	failIDs  map[string]bool
	activate []string
}

func (f *fakeWM) ListWindows(ctx context.Context) ([]desktop.Window, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]desktop.Window{}, f.windows...), nil
}

func (f *fakeWM) ActiveWindow(ctx context.Context) (desktop.Window, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active, nil
}

func (f *fakeWM) Activate(ctx context.Context, w desktop.Window) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activate = append(f.activate, w.ID)
	if f.failIDs[w.ID] {
		return errors.New("activation refused")
	}
	f.active = w
	return nil
}

type fakeKB struct {
	mu     sync.Mutex
	combos []string
	caps   bool
	onKey  func(combo string)
}

func (k *fakeKB) KeyCombo(ctx context.Context, keys ...string) error {
	combo := strings.Join(keys, "+")
	k.mu.Lock()
	k.combos = append(k.combos, combo)
	cb := k.onKey
	k.mu.Unlock()
	if cb != nil {
		cb(combo)
	}
	return nil
}

func (k *fakeKB) CapsLockOn(ctx context.Context) (bool, error) { return k.caps, nil }

func (k *fakeKB) ToggleCapsLock(ctx context.Context) error {
	k.caps = !k.caps
	return nil
}

func fastOptions() Options {
	o := DefaultOptions()
	o.RetryDelay = 50 * time.Millisecond
	o.TaskbarWait = 0
	o.ActivateSettle = 0
	o.TabSettle = 0
	o.WaitTimeout = 0
	o.WaitPoll = 5 * time.Millisecond
	return o
}

func TestFocus_AlreadyActiveSwitchesTab(t *testing.T) {
	wm := &fakeWM{active: desktop.Window{ID: "1", Title: "MDF-e - Google Chrome"}}
	kb := &fakeKB{}
	h := New(wm, kb, fastOptions())

	require.True(t, h.Focus(context.Background(), Target{Tab: 3}))
	require.Equal(t, []string{"ctrl+3"}, kb.combos)
	require.Empty(t, wm.activate)
}

func TestFocus_ActivatesMatchingWindowSkippingGUI(t *testing.T) {
	wm := &fakeWM{
		active: desktop.Window{ID: "9", Title: "Auto MDF InvoISys"},
		windows: []desktop.Window{
			{ID: "2", Title: "Auto MDF - Google Chrome"},
			{ID: "3", Title: "Portal MDF-e - Mozilla Firefox"},
		},
	}
	h := New(wm, &fakeKB{}, fastOptions())

	require.True(t, h.Focus(context.Background(), Target{}))
	require.Equal(t, []string{"3"}, wm.activate)
}

func TestFocus_HintTakesPrecedenceOverBrowserList(t *testing.T) {
	wm := &fakeWM{windows: []desktop.Window{
		{ID: "1", Title: "Something - Google Chrome"},
		{ID: "2", Title: "SEFAZ Portal - Chromium"},
	}}
	h := New(wm, &fakeKB{}, fastOptions())

	require.True(t, h.Focus(context.Background(), Target{AppHint: "sefaz"}))
	require.Equal(t, "2", wm.active.ID)
}

func TestFocus_FallsBackToNextCandidate(t *testing.T) {
	wm := &fakeWM{
		windows: []desktop.Window{{ID: "1", Title: "A - Brave"}, {ID: "2", Title: "B - Brave"}},
		failIDs: map[string]bool{"1": true},
	}
	h := New(wm, &fakeKB{}, fastOptions())
	require.True(t, h.Focus(context.Background(), Target{}))
	require.Equal(t, []string{"1", "2"}, wm.activate)
}

func TestFocus_TaskbarSlotBringsWindowUp(t *testing.T) {
	wm := &fakeWM{}
	kb := &fakeKB{}
	kb.onKey = func(combo string) {
		if combo == "super+4" {
			wm.mu.Lock()
			wm.windows = append(wm.windows, desktop.Window{ID: "7", Title: "MDF - Microsoft Edge"})
			wm.mu.Unlock()
		}
	}
	h := New(wm, kb, fastOptions())

	require.True(t, h.Focus(context.Background(), Target{TaskbarSlot: 4}))
	require.Equal(t, []string{"super+4"}, kb.combos)
}

func TestFocus_MissingWindowFailsWithinBudget(t *testing.T) {
	wm := &fakeWM{windows: []desktop.Window{{ID: "1", Title: "Terminal"}}}
	kb := &fakeKB{}
	opts := fastOptions()
	opts.Attempts = 3
	h := New(wm, kb, opts)

	start := time.Now()
	ok := h.Focus(context.Background(), Target{AppHint: "does-not-exist"})
	elapsed := time.Since(start)

	require.False(t, ok)
	require.GreaterOrEqual(t, elapsed, 2*opts.RetryDelay)
	require.Less(t, elapsed, 2*opts.RetryDelay+time.Second)
	// the taskbar shortcut is pressed at most once per Focus call
	require.Equal(t, []string{"super+1"}, kb.combos)
}

func TestFocus_ContextCancelStopsRetrying(t *testing.T) {
	opts := fastOptions()
	opts.RetryDelay = time.Hour
	h := New(&fakeWM{}, &fakeKB{}, opts)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	require.False(t, h.Focus(ctx, Target{AppHint: "x"}))
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestWaitUntilActive(t *testing.T) {
	wm := &fakeWM{active: desktop.Window{ID: "1", Title: "Terminal"}}
	h := New(wm, &fakeKB{}, fastOptions())

	go func() {
		time.Sleep(30 * time.Millisecond)
		wm.mu.Lock()
		wm.active = desktop.Window{ID: "2", Title: "x - Opera"}
		wm.mu.Unlock()
	}()
	require.True(t, h.WaitUntilActive(context.Background(), Target{}, time.Second, 10*time.Millisecond))
	require.False(t, h.WaitUntilActive(context.Background(), Target{AppHint: "firefox"}, 30*time.Millisecond, 10*time.Millisecond))
}

func TestDisableCapsLock(t *testing.T) {
	kb := &fakeKB{caps: true}
	h := New(&fakeWM{}, kb, fastOptions())

	changed, err := h.DisableCapsLock(context.Background())
	require.NoError(t, err)
	require.True(t, changed)
	require.False(t, kb.caps)

	changed, err = h.DisableCapsLock(context.Background())
	require.NoError(t, err)
	require.False(t, changed)

	_, err = New(&fakeWM{}, nil, fastOptions()).DisableCapsLock(context.Background())
	require.ErrorIs(t, err, desktop.ErrUnsupported)
}

func TestTargetFromEnv(t *testing.T) {
	t.Setenv(EnvBrowserTab, "12")
	t.Setenv(EnvTaskbarSlot, "")
	t.Setenv(EnvTitleHint, " Chrome ")
	tg := TargetFromEnv()
	require.Equal(t, Target{AppHint: "Chrome", TaskbarSlot: 1, Tab: 9}, tg)

	t.Setenv(EnvBrowserTab, "-2")
	t.Setenv(EnvTaskbarSlot, "3")
	tg = TargetFromEnv()
	require.Equal(t, 0, tg.Tab)
	require.Equal(t, 3, tg.TaskbarSlot)

	require.Contains(t, Target{TaskbarSlot: 3, Tab: 2}.Env(), "MDF_BROWSER_TAB=2")
	require.Equal(t, 0, ParseTab("abc"))
}
