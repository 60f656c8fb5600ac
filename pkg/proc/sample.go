package proc

import (
	"os"
	"sync"
	"time"
)

// Sample is a point-in-time view of the worker for status output.
type Sample struct {
	PID        int       `json:"pid"`
	State      string    `json:"state"`
	Group      int       `json:"pgrp"`
	Threads    int       `json:"threads"`
	RSSBytes   int64     `json:"rss_bytes"`
	CPUPercent float64   `json:"cpu_percent"`
	TakenAt    time.Time `json:"taken_at"`
}

type cpuMark struct {
	ticks uint64
	at    time.Time
}

// Sampler remembers the previous CPU reading per pid so CPUPercent covers
// the interval between two calls.
type Sampler struct {
	mu   sync.Mutex
	last map[int]cpuMark
	now  func() time.Time
}

func NewSampler() *Sampler {
	return &Sampler{last: map[int]cpuMark{}, now: time.Now}
}

func (s *Sampler) Sample(pid int) (Sample, error) {
	st, err := readStat(pid)
	if err != nil {
		return Sample{}, err
	}
	now := s.now()
	out := Sample{
		PID:      pid,
		State:    string(st.state),
		Group:    st.pgrp,
		Threads:  st.threads,
		RSSBytes: st.rss * int64(os.Getpagesize()),
		TakenAt:  now,
	}

	ticks := st.utime + st.stime
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.last[pid]; ok && ticks >= prev.ticks {
		if elapsed := now.Sub(prev.at).Seconds(); elapsed > 0 {
			out.CPUPercent = float64(ticks-prev.ticks) / clkTck / elapsed * 100
		}
	}
	s.last[pid] = cpuMark{ticks: ticks, at: now}
	return out, nil
}

// Forget drops the CPU baseline of a finished worker.
func (s *Sampler) Forget(pid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.last, pid)
}
