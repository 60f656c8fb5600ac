package progress

import (
	"sort"

	"github.com/pkg/errors"
)

// DefaultCheckpoints is the percent schedule shared by all manifest scripts.
// Sharing one ordered set is what keeps the bar from jumping backwards when
// scripts are chained.
var DefaultCheckpoints = []int{5, 15, 20, 25, 30, 35, 40, 45, 50, 55, 60, 65, 70, 75, 80, 85, 90}

type Schedule struct {
	points []int
}

func NewSchedule(points []int) (Schedule, error) {
	if len(points) == 0 {
		points = DefaultCheckpoints
	}
	out := append([]int{}, points...)
	if !sort.IntsAreSorted(out) {
		return Schedule{}, errors.New("checkpoints must be sorted ascending")
	}
	for i, p := range out {
		if p < 0 || p > 100 {
			return Schedule{}, errors.Errorf("checkpoint %d out of range: %d", i, p)
		}
		if i > 0 && out[i-1] == p {
			return Schedule{}, errors.Errorf("duplicate checkpoint %d", p)
		}
	}
	return Schedule{points: out}, nil
}

func (s Schedule) Points() []int { return append([]int{}, s.points...) }

func (s Schedule) Valid(p int) bool {
	i := sort.SearchInts(s.points, p)
	return i < len(s.points) && s.points[i] == p
}

// Next returns the first checkpoint strictly greater than after.
func (s Schedule) Next(after int) (int, bool) {
	i := sort.SearchInts(s.points, after+1)
	if i >= len(s.points) {
		return 0, false
	}
	return s.points[i], true
}

// Snap rounds p down to the closest checkpoint not above it; values below the
// first checkpoint snap to 0.
func (s Schedule) Snap(p int) int {
	i := sort.SearchInts(s.points, p+1)
	if i == 0 {
		return 0
	}
	return s.points[i-1]
}
