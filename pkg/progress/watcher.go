package progress

import (
	"context"
	"path/filepath"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/auto-mdf/mdfctl/pkg/events"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultPollInterval = 200 * time.Millisecond
	MinPollInterval     = 200 * time.Millisecond
)

type Changed struct {
	Path  string `json:"path"`
	State State  `json:"state"`
}

type Missing struct {
	Path string    `json:"path"`
	At   time.Time `json:"at"`
}

// Watcher polls the progress file and publishes a progress.changed event
// whenever the decoded document differs from the last one seen. With Notify
// set it also wakes on fsnotify events for the file's directory, but polling
// stays on so a missed notification only costs one interval.
type Watcher struct {
	Store    *Store
	Interval time.Duration
	Notify   bool
	Pub      message.Publisher

	// OnChange, when set, is called synchronously for every published change.
	OnChange func(State)

	last        *State
	missingSent bool
}

func (w *Watcher) Run(ctx context.Context) error {
	if w.Store == nil || w.Store.Path() == "" {
		return errors.New("missing progress store")
	}
	if w.Interval <= 0 {
		w.Interval = DefaultPollInterval
	}
	if w.Interval < MinPollInterval {
		w.Interval = MinPollInterval
	}

	var wake <-chan fsnotify.Event
	var werrs <-chan error
	if w.Notify {
		fw, err := fsnotify.NewWatcher()
		if err != nil {
			log.Warn().Err(err).Msg("fsnotify unavailable, polling only")
		} else {
			defer func() { _ = fw.Close() }()
			if err := fw.Add(filepath.Dir(w.Store.Path())); err != nil {
				log.Warn().Err(err).Str("dir", filepath.Dir(w.Store.Path())).Msg("fsnotify add failed, polling only")
			} else {
				wake = fw.Events
				werrs = fw.Errors
			}
		}
	}

	t := time.NewTicker(w.Interval)
	defer t.Stop()

	base := filepath.Base(w.Store.Path())
	for {
		if err := w.poll(); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		case ev, ok := <-wake:
			if !ok {
				wake = nil
				continue
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
		case err, ok := <-werrs:
			if !ok {
				werrs = nil
				continue
			}
			log.Debug().Err(err).Msg("fsnotify error")
		}
	}
}

// Poll reads the file once and publishes if needed. It is exported for
// callers that drive their own loop.
func (w *Watcher) Poll() error { return w.poll() }

func (w *Watcher) poll() error {
	st, ok, err := w.Store.Read()
	if err != nil {
		// A reader racing a non-atomic writer may see junk; skip this tick.
		log.Debug().Err(err).Str("path", w.Store.Path()).Msg("progress read failed")
		return nil
	}
	if !ok {
		w.last = nil
		if w.missingSent {
			return nil
		}
		w.missingSent = true
		return events.Publish(w.Pub, events.TopicRunEvents, events.TypeProgressMissing, Missing{Path: w.Store.Path(), At: time.Now()})
	}
	w.missingSent = false
	if w.last != nil && w.last.Equal(st) {
		return nil
	}
	w.last = &st
	if w.OnChange != nil {
		w.OnChange(st)
	}
	return events.Publish(w.Pub, events.TopicRunEvents, events.TypeProgressChanged, Changed{Path: w.Store.Path(), State: st})
}
