package ui

import "strings"

// SparklineChars are the eight bar heights, lowest first.
var SparklineChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Sparkline keeps the last width samples and renders them as bars scaled
// to the largest sample currently held.
type Sparkline struct {
	samples []float64
	head    int
	count   int
}

// NewSparkline creates a sparkline holding width samples.
func NewSparkline(width int) *Sparkline {
	if width <= 0 {
		width = 60
	}
	return &Sparkline{samples: make([]float64, width)}
}

// Add appends a sample, evicting the oldest once full.
func (s *Sparkline) Add(v float64) {
	s.samples[s.head] = v
	s.head = (s.head + 1) % len(s.samples)
	if s.count < len(s.samples) {
		s.count++
	}
}

// Render returns one rune per held sample, oldest first, padded with
// spaces on the right until the buffer fills.
func (s *Sparkline) Render() string {
	width := len(s.samples)
	if s.count == 0 {
		return strings.Repeat(" ", width)
	}

	ordered := make([]float64, 0, s.count)
	start := 0
	if s.count == width {
		start = s.head
	}
	for i := 0; i < s.count; i++ {
		ordered = append(ordered, s.samples[(start+i)%width])
	}

	peak := 0.0
	for _, v := range ordered {
		peak = max(peak, v)
	}

	var b strings.Builder
	b.Grow(width * 3)
	for _, v := range ordered {
		idx := 0
		if peak > 0 {
			idx = int(v / peak * float64(len(SparklineChars)-1))
			idx = min(max(idx, 0), len(SparklineChars)-1)
		}
		b.WriteRune(SparklineChars[idx])
	}
	b.WriteString(strings.Repeat(" ", width-s.count))
	return b.String()
}
