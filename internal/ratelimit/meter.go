package ratelimit

import (
	"math"
	"sync"
	"time"
)

// Meter is an exponentially-weighted moving average rate meter (spec.md
// §4.2). It keeps a per-window counter and a smoothed rate estimate, rolling
// the window forward lazily on count_up/current_rate calls rather than on a
// background ticker, so it needs no goroutine of its own.
type Meter struct {
	mu     sync.Mutex
	alpha  float64
	beta   float64
	window time.Duration

	counter      float64
	smoothedRate float64
	windowStart  time.Time
	now          func() time.Time
}

// NewMeter builds a meter with smoothing factor alpha in (0,1) and window
// length w.
func NewMeter(alpha float64, window time.Duration) *Meter {
	return &Meter{
		alpha:       alpha,
		beta:        1 - alpha,
		window:      window,
		windowStart: time.Now(),
		now:         time.Now,
	}
}

// CountUp increments the current window's counter by n, rolling over any
// windows that have fully elapsed since the last call.
func (m *Meter) CountUp(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover()
	m.counter += float64(n)
}

// CurrentRate returns the smoothed rate, rolling over any elapsed windows
// first so a caller that hasn't called CountUp recently still sees the rate
// decay toward zero.
func (m *Meter) CurrentRate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover()
	return m.smoothedRate
}

// rollover advances windowStart by however many whole windows have elapsed,
// applying r <- beta^(k-1) * (beta*r + alpha*(counter/w)) once for the
// window that just closed and once more per fully-idle window skipped
// (spec.md §4.2: "possibly skipping k>=1 windows").
func (m *Meter) rollover() {
	elapsed := m.now().Sub(m.windowStart)
	if elapsed < m.window {
		return
	}
	k := int(elapsed / m.window)
	if k < 1 {
		k = 1
	}

	w := m.window.Seconds()
	m.smoothedRate = m.beta*m.smoothedRate + m.alpha*(m.counter/w)
	if k > 1 {
		m.smoothedRate *= math.Pow(m.beta, float64(k-1))
	}
	m.counter = 0
	m.windowStart = m.windowStart.Add(time.Duration(k) * m.window)
}
