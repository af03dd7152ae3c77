package capture

// StableFramesNeeded is about one second of video at 30fps.
const StableFramesNeeded = 28

// Stability is the stabilizer's view of the trailing detection window.
type Stability struct {
	Positive  int
	Len       int
	Capacity  int
	StableAll bool
}

// Progress is the positive share of the window, clamped to [0,1].
func (s Stability) Progress() float64 {
	if s.Capacity <= 0 {
		return 0
	}
	p := float64(s.Positive) / float64(s.Capacity)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// Stabilizer keeps a fixed-capacity FIFO of per-frame detections. Capture
// fires only once the window is full and every entry in it is positive.
type Stabilizer struct {
	history  []bool
	capacity int
}

func NewStabilizer(capacity int) *Stabilizer {
	if capacity < 1 {
		capacity = StableFramesNeeded
	}
	return &Stabilizer{
		history:  make([]bool, 0, capacity+1),
		capacity: capacity,
	}
}

// Push appends one detection, evicting the oldest entry on overflow.
func (s *Stabilizer) Push(detected bool) Stability {
	s.history = append(s.history, detected)
	if over := len(s.history) - s.capacity; over > 0 {
		n := copy(s.history, s.history[over:])
		s.history = s.history[:n]
	}
	return s.Stability()
}

func (s *Stabilizer) Stability() Stability {
	positive := 0
	for _, v := range s.history {
		if v {
			positive++
		}
	}
	return Stability{
		Positive:  positive,
		Len:       len(s.history),
		Capacity:  s.capacity,
		StableAll: len(s.history) == s.capacity && positive == s.capacity,
	}
}

func (s *Stabilizer) Reset() {
	s.history = s.history[:0]
}
