package mirror

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// DefaultMeterWindow is the smoothing window of a Meter.
const DefaultMeterWindow = time.Second

// Meter estimates throughput from cumulative byte counts with an
// exponentially weighted moving average.
type Meter struct {
	window time.Duration

	started  bool
	lastAt   time.Time
	lastDone int64
	rate     float64
}

// NewMeter creates a meter. A zero window uses DefaultMeterWindow.
func NewMeter(window time.Duration) *Meter {
	if window <= 0 {
		window = DefaultMeterWindow
	}
	return &Meter{window: window}
}

// Update records done bytes now and returns the estimate.
func (m *Meter) Update(done int64) float64 {
	return m.UpdateAt(done, time.Now())
}

// UpdateAt records done bytes at the given time and returns the estimate
// in bytes per second.
func (m *Meter) UpdateAt(done int64, at time.Time) float64 {
	if !m.started {
		m.started = true
		m.lastAt = at
		m.lastDone = done
		return m.rate
	}
	dt := at.Sub(m.lastAt)
	if dt <= 0 {
		return m.rate
	}
	sample := float64(done-m.lastDone) / dt.Seconds()
	weight := 1 - math.Exp(-float64(dt)/float64(m.window))
	m.rate += weight * (sample - m.rate)
	m.lastAt = at
	m.lastDone = done
	return m.rate
}

// Rate returns the last estimate.
func (m *Meter) Rate() float64 {
	return m.rate
}

var sizeUnits = []string{"B", "KB", "MB", "GB"}

// FormatSize renders a byte count with binary units, e.g. "1.5 MB".
func FormatSize(value float64) string {
	i := 0
	for i < len(sizeUnits)-1 && value > 1024 {
		value /= 1024
		i++
	}
	return strconv.FormatFloat(math.Round(value*100)/100, 'f', -1, 64) + " " + sizeUnits[i]
}

// FormatSpeed renders a progress line such as "1 MB of 2 MB (512 KB/s)".
// It returns "" while the total is unknown.
func FormatSpeed(done, total int64, bytesPerSecond float64) string {
	if total <= 0 {
		return ""
	}
	return fmt.Sprintf("%s of %s (%s/s)", FormatSize(float64(done)), FormatSize(float64(total)), FormatSize(bytesPerSecond))
}
