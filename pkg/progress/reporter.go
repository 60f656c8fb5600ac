package progress

import (
	"sync"
	"time"
)

// Reporter is the worker side of the progress file. Every mutation rewrites
// the whole document through the store.
type Reporter struct {
	store *Store
	now   func() time.Time

	mu    sync.Mutex
	state State
}

func NewReporter(store *Store) *Reporter {
	return &Reporter{store: store, now: time.Now, state: NewIdleState()}
}

// OpenReporter continues from the document already in the store, so a worker
// that reports from several short-lived processes keeps one history.
func OpenReporter(store *Store) (*Reporter, error) {
	r := NewReporter(store)
	st, ok, err := store.Read()
	if err != nil {
		return nil, err
	}
	if ok {
		r.state = st
	}
	return r, nil
}

func (r *Reporter) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Reporter) Start(totalSteps int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.state = State{
		Status:     StatusRunning,
		Percent:    0,
		Message:    "started",
		TotalSteps: totalSteps,
		StartTime:  &now,
	}
	return r.saveLocked()
}

// Report sets percent, message and step. Percent is clamped to 0..100; a
// step <= 0 keeps the previous step.
func (r *Reporter) Report(percent int, message string, step int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	percent = clampPercent(percent)
	r.state.Percent = percent
	r.state.Message = message
	if step > 0 {
		r.state.Step = step
	}
	if r.state.Status == StatusIdle {
		r.state.Status = StatusRunning
	}

	r.state.EstimatedSeconds = nil
	if r.state.StartTime != nil && percent > 0 && percent < 100 {
		elapsed := r.now().Sub(*r.state.StartTime).Seconds()
		remaining := int64(elapsed / float64(percent) * float64(100-percent))
		r.state.EstimatedSeconds = &remaining
	}
	return r.saveLocked()
}

// Checkpoint reports progress and records the message in the message list,
// the way scripts mark the end of each stage.
func (r *Reporter) Checkpoint(percent int, message string) error {
	r.mu.Lock()
	step := r.state.Step + 1
	r.mu.Unlock()
	if err := r.Report(percent, message, step); err != nil {
		return err
	}
	return r.Log(message)
}

func (r *Reporter) Log(message string) error {
	return r.addMessage(message, MessageInfo)
}

func (r *Reporter) Warn(message string) error {
	return r.addMessage(message, MessageWarning)
}

func (r *Reporter) Error(message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ts := r.now()
	r.state.Messages = append(r.state.Messages, Message{Timestamp: ts, Message: message, Type: MessageError})
	r.state.Errors = append(r.state.Errors, ErrorEntry{Timestamp: ts, Message: message})
	return r.saveLocked()
}

func (r *Reporter) Pause() error { return r.setStatus(StatusPaused) }

func (r *Reporter) Resume() error { return r.setStatus(StatusRunning) }

func (r *Reporter) Complete(message string) error {
	if message == "" {
		message = "automation completed"
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.Status = StatusCompleted
	r.state.Percent = 100
	r.state.Message = message
	r.state.EstimatedSeconds = nil
	r.state.Messages = append(r.state.Messages, Message{Timestamp: r.now(), Message: message, Type: MessageSuccess})
	return r.saveLocked()
}

// Fail marks the run as errored. Percent is left where it was.
func (r *Reporter) Fail(message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ts := r.now()
	r.state.Status = StatusError
	r.state.Message = "error: " + message
	r.state.EstimatedSeconds = nil
	r.state.Errors = append(r.state.Errors, ErrorEntry{Timestamp: ts, Message: message})
	r.state.Messages = append(r.state.Messages, Message{Timestamp: ts, Message: message, Type: MessageError})
	return r.saveLocked()
}

func (r *Reporter) addMessage(message string, typ MessageType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.Messages = append(r.state.Messages, Message{Timestamp: r.now(), Message: message, Type: typ})
	return r.saveLocked()
}

func (r *Reporter) setStatus(st Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.Status = st
	return r.saveLocked()
}

func (r *Reporter) saveLocked() error {
	now := r.now()
	r.state.Timestamp = now
	if r.state.StartTime != nil {
		r.state.ElapsedSeconds = int64(now.Sub(*r.state.StartTime).Seconds())
	}
	return r.store.Write(r.state)
}
