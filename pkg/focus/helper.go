package focus

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/auto-mdf/mdfctl/pkg/desktop"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	DefaultBrowserKeywords = []string{"Google Chrome", "Microsoft Edge", "Mozilla Firefox", "Brave", "Opera"}
	DefaultGUIKeywords     = []string{"Auto MDF", "mdfctl"}
)

type Options struct {
	Attempts   int
	RetryDelay time.Duration

	TaskbarLaunchLimit int
	TaskbarMinGap      time.Duration
	TaskbarWait        time.Duration

	ActivateSettle time.Duration
	TabSettle      time.Duration

	WaitTimeout time.Duration
	WaitPoll    time.Duration

	BrowserKeywords []string
	GUIKeywords     []string
}

func DefaultOptions() Options {
	return Options{
		Attempts:           2,
		RetryDelay:         4 * time.Second,
		TaskbarLaunchLimit: 3,
		TaskbarMinGap:      1500 * time.Millisecond,
		TaskbarWait:        600 * time.Millisecond,
		ActivateSettle:     250 * time.Millisecond,
		TabSettle:          150 * time.Millisecond,
		WaitTimeout:        1600 * time.Millisecond,
		WaitPoll:           120 * time.Millisecond,
		BrowserKeywords:    DefaultBrowserKeywords,
		GUIKeywords:        DefaultGUIKeywords,
	}
}

// Helper keeps the target browser in the foreground. It remembers the last
// window it activated and how often it fell back to the taskbar shortcut.
type Helper struct {
	wm   desktop.WindowManager
	kb   desktop.Keyboard
	opts Options
	now  func() time.Time

	mu              sync.Mutex
	last            *desktop.Window
	taskbarLaunched bool
	taskbarAttempts int
	lastTaskbar     time.Time
}

func New(wm desktop.WindowManager, kb desktop.Keyboard, opts Options) *Helper {
	def := DefaultOptions()
	if opts.Attempts <= 0 {
		opts.Attempts = def.Attempts
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	}
	if opts.TaskbarLaunchLimit <= 0 {
		opts.TaskbarLaunchLimit = def.TaskbarLaunchLimit
	}
	if opts.WaitPoll <= 0 {
		opts.WaitPoll = def.WaitPoll
	}
	if len(opts.BrowserKeywords) == 0 {
		opts.BrowserKeywords = def.BrowserKeywords
	}
	if len(opts.GUIKeywords) == 0 {
		opts.GUIKeywords = def.GUIKeywords
	}
	return &Helper{wm: wm, kb: kb, opts: opts, now: time.Now}
}

// Focus brings the target to the foreground, retrying up to Attempts times
// with RetryDelay in between. It reports failure instead of returning an
// error; the caller decides whether that aborts the run.
func (h *Helper) Focus(ctx context.Context, t Target) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.prepareTaskbarRetry(ctx)
	for attempt := 1; attempt <= h.opts.Attempts; attempt++ {
		if h.focusOnce(ctx, t) && h.waitUntilActive(ctx, t, h.opts.WaitTimeout) {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		log.Debug().Int("attempt", attempt).Str("hint", t.AppHint).Msg("focus attempt failed")
		if attempt < h.opts.Attempts && !sleep(ctx, h.opts.RetryDelay) {
			return false
		}
	}
	log.Warn().Str("hint", t.AppHint).Int("attempts", h.opts.Attempts).Msg("could not focus target window")
	return false
}

// WaitUntilActive polls the active window until it matches the target.
func (h *Helper) WaitUntilActive(ctx context.Context, t Target, timeout, poll time.Duration) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if poll > 0 {
		saved := h.opts.WaitPoll
		h.opts.WaitPoll = poll
		defer func() { h.opts.WaitPoll = saved }()
	}
	return h.waitUntilActive(ctx, t, timeout)
}

// DisableCapsLock turns caps lock off. changed reports whether it was on.
func (h *Helper) DisableCapsLock(ctx context.Context) (bool, error) {
	if h.kb == nil {
		return false, errors.Wrap(desktop.ErrUnsupported, "no keyboard backend")
	}
	on, err := h.kb.CapsLockOn(ctx)
	if err != nil {
		return false, errors.Wrap(err, "read caps lock")
	}
	if !on {
		return false, nil
	}
	if err := h.kb.ToggleCapsLock(ctx); err != nil {
		return false, errors.Wrap(err, "toggle caps lock")
	}
	log.Debug().Msg("caps lock turned off")
	return true, nil
}

func (h *Helper) focusOnce(ctx context.Context, t Target) bool {
	if h.wm == nil {
		return false
	}
	if active, err := h.wm.ActiveWindow(ctx); err == nil && h.matches(active, t) {
		h.record(active)
		h.switchTab(ctx, t)
		return true
	}
	if h.activateCandidates(ctx, t) {
		return true
	}
	if h.launchTaskbar(ctx, t) {
		return h.activateCandidates(ctx, t)
	}
	return false
}

func (h *Helper) activateCandidates(ctx context.Context, t Target) bool {
	var candidates []desktop.Window
	if h.last != nil && h.matches(*h.last, t) {
		candidates = append(candidates, *h.last)
	}
	windows, err := h.wm.ListWindows(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("list windows")
	}
	for _, w := range windows {
		if h.matches(w, t) && !containsWindow(candidates, w) {
			candidates = append(candidates, w)
		}
	}
	for _, w := range candidates {
		if err := h.wm.Activate(ctx, w); err != nil {
			log.Debug().Err(err).Str("window", w.Title).Msg("activate failed")
			continue
		}
		h.record(w)
		sleep(ctx, h.opts.ActivateSettle)
		h.switchTab(ctx, t)
		return true
	}
	return false
}

// launchTaskbar presses super+<slot>. It gives up after TaskbarLaunchLimit
// presses and never presses twice within TaskbarMinGap.
func (h *Helper) launchTaskbar(ctx context.Context, t Target) bool {
	if h.kb == nil || h.taskbarLaunched || h.taskbarAttempts >= h.opts.TaskbarLaunchLimit {
		return false
	}
	now := h.now()
	if !h.lastTaskbar.IsZero() && now.Sub(h.lastTaskbar) < h.opts.TaskbarMinGap {
		return false
	}
	h.lastTaskbar = now
	h.taskbarAttempts++
	if err := h.kb.KeyCombo(ctx, "super", strconv.Itoa(t.slot())); err != nil {
		log.Debug().Err(err).Msg("taskbar shortcut failed")
		return false
	}
	h.taskbarLaunched = true
	sleep(ctx, h.opts.TaskbarWait)
	return true
}

// prepareTaskbarRetry re-arms the taskbar shortcut when our own window owns
// the focus, which is what happens after a dialog was answered.
func (h *Helper) prepareTaskbarRetry(ctx context.Context) {
	if h.wm == nil {
		return
	}
	active, err := h.wm.ActiveWindow(ctx)
	if err != nil || active.Title == "" {
		return
	}
	if h.isGUI(active) {
		h.taskbarLaunched = false
		h.taskbarAttempts = 0
		h.lastTaskbar = time.Time{}
	}
}

func (h *Helper) waitUntilActive(ctx context.Context, t Target, timeout time.Duration) bool {
	if h.wm == nil {
		return false
	}
	deadline := h.now().Add(timeout)
	for h.now().Before(deadline) {
		if w, err := h.wm.ActiveWindow(ctx); err == nil && h.matches(w, t) {
			return true
		}
		if !sleep(ctx, h.opts.WaitPoll) {
			return false
		}
	}
	w, err := h.wm.ActiveWindow(ctx)
	return err == nil && h.matches(w, t)
}

func (h *Helper) switchTab(ctx context.Context, t Target) {
	tab := clampTab(t.Tab)
	if tab == 0 || h.kb == nil {
		return
	}
	if err := h.kb.KeyCombo(ctx, "ctrl", strconv.Itoa(tab)); err != nil {
		log.Debug().Err(err).Int("tab", tab).Msg("tab switch failed")
		return
	}
	sleep(ctx, h.opts.TabSettle)
}

func (h *Helper) record(w desktop.Window) {
	h.last = &w
	h.taskbarLaunched = true
}

func (h *Helper) matches(w desktop.Window, t Target) bool {
	title := strings.ToLower(w.Title)
	if title == "" || h.isGUI(w) {
		return false
	}
	if t.AppHint != "" {
		return strings.Contains(title, strings.ToLower(t.AppHint))
	}
	return containsAny(title, h.opts.BrowserKeywords)
}

func (h *Helper) isGUI(w desktop.Window) bool {
	return containsAny(strings.ToLower(w.Title), h.opts.GUIKeywords)
}

func containsAny(lowered string, keywords []string) bool {
	for _, k := range keywords {
		if k != "" && strings.Contains(lowered, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

func containsWindow(ws []desktop.Window, w desktop.Window) bool {
	for _, c := range ws {
		if c.ID == w.ID {
			return true
		}
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
