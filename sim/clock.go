package sim

import "fmt"

const (
	// NanosPerSecond is the carry threshold of a Timestamp's nanosecond field.
	NanosPerSecond int64 = 1_000_000_000

	// BaseIncrement is the logical time added per iteration when at most one worker is live.
	// With N live workers each iteration advances the clock by BaseIncrement / N.
	BaseIncrement int64 = 250_000_000
)

// Timestamp is an instant on the logical clock.
// Nanoseconds is always kept in [0, NanosPerSecond).
type Timestamp struct {
	Seconds     int64 `json:"seconds"`
	Nanoseconds int64 `json:"nanoseconds"`
}

// FromMillis converts a millisecond offset into a normalized Timestamp.
func FromMillis(ms int64) Timestamp {
	return normalize(0, ms*1_000_000)
}

// Add returns t shifted by offset, carrying whole seconds out of the nanosecond field.
func (t Timestamp) Add(offset Timestamp) Timestamp {
	return normalize(t.Seconds+offset.Seconds, t.Nanoseconds+offset.Nanoseconds)
}

// AtOrAfter reports whether t has reached target.
func (t Timestamp) AtOrAfter(target Timestamp) bool {
	return t.Seconds > target.Seconds ||
		(t.Seconds == target.Seconds && t.Nanoseconds >= target.Nanoseconds)
}

// Since returns the offset from earlier to t. Returns the zero Timestamp if earlier is after t.
func (t Timestamp) Since(earlier Timestamp) Timestamp {
	if !t.AtOrAfter(earlier) {
		return Timestamp{}
	}
	return normalize(t.Seconds-earlier.Seconds, t.Nanoseconds-earlier.Nanoseconds)
}

func (t Timestamp) String() string {
	return fmt.Sprintf("%d:%09d", t.Seconds, t.Nanoseconds)
}

func normalize(sec, nsec int64) Timestamp {
	sec += nsec / NanosPerSecond
	nsec %= NanosPerSecond
	if nsec < 0 {
		sec--
		nsec += NanosPerSecond
	}
	return Timestamp{Seconds: sec, Nanoseconds: nsec}
}

// LogicalClock is the coordinator's synthetic clock. Only the coordinator holds a *LogicalClock;
// workers only ever see Timestamp values copied out of it.
type LogicalClock struct {
	now Timestamp
}

// NewLogicalClock returns a clock at 0:000000000.
func NewLogicalClock() *LogicalClock {
	return &LogicalClock{}
}

// Advance moves the clock forward by BaseIncrement / max(activeWorkers, 1) and returns the new time.
func (c *LogicalClock) Advance(activeWorkers int) Timestamp {
	c.now.Nanoseconds += BaseIncrement / int64(max(activeWorkers, 1))
	if c.now.Nanoseconds >= NanosPerSecond {
		c.now.Seconds++
		c.now.Nanoseconds -= NanosPerSecond
	}
	return c.now
}

// Now returns a snapshot of the current logical time.
func (c *LogicalClock) Now() Timestamp {
	return c.now
}
