package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oss-sim/oss-sim/sim/internal/testutil"
)

func TestLogicalClock_Advance_IncrementByActiveWorkers(t *testing.T) {
	tests := []struct {
		name   string
		active int
		want   int64
	}{
		{"no workers", 0, 250_000_000},
		{"one worker", 1, 250_000_000},
		{"two workers", 2, 125_000_000},
		{"three workers", 3, 83_333_333},
		{"twenty workers", 20, 12_500_000},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := NewLogicalClock()
			got := c.Advance(tc.active)
			assert.Equal(t, Timestamp{Seconds: 0, Nanoseconds: tc.want}, got)
			assert.Equal(t, got, c.Now())
		})
	}
}

func TestLogicalClock_Advance_CarriesIntoSeconds(t *testing.T) {
	// GIVEN a clock at 0:750000000
	c := NewLogicalClock()
	for i := 0; i < 3; i++ {
		c.Advance(0)
	}
	assert.Equal(t, Timestamp{Seconds: 0, Nanoseconds: 750_000_000}, c.Now())

	// WHEN it advances by a full base increment
	got := c.Advance(1)

	// THEN the nanoseconds carry exactly into one second
	assert.Equal(t, Timestamp{Seconds: 1, Nanoseconds: 0}, got)
}

func TestLogicalClock_Advance_MonotonicAndNormalized(t *testing.T) {
	// GIVEN a clock driven with varying worker counts
	c := NewLogicalClock()
	prev := c.Now()
	for i := 0; i < 1000; i++ {
		now := c.Advance(i % 7)

		// THEN every reading is strictly later and normalized
		assert.True(t, now.AtOrAfter(prev) && now != prev, "step %d: %s not after %s", i, now, prev)
		testutil.AssertNormalized(t, now.String(), now.Seconds, now.Nanoseconds)
		prev = now
	}
}

func TestTimestamp_Add_DeadlineExamples(t *testing.T) {
	tests := []struct {
		start, offset, want Timestamp
	}{
		{Timestamp{6, 100}, Timestamp{5, 0}, Timestamp{11, 100}},
		{Timestamp{0, 500_000_000}, Timestamp{5, 999_999_999}, Timestamp{6, 499_999_999}},
		{Timestamp{2, 999_999_999}, Timestamp{0, 1}, Timestamp{3, 0}},
		{Timestamp{0, 0}, Timestamp{0, 0}, Timestamp{0, 0}},
	}
	for _, tc := range tests {
		got := tc.start.Add(tc.offset)
		assert.Equal(t, tc.want, got, "%s + %s", tc.start, tc.offset)
	}
}

func TestTimestamp_AtOrAfter(t *testing.T) {
	deadline := Timestamp{Seconds: 5, Nanoseconds: 500}
	assert.True(t, Timestamp{5, 500}.AtOrAfter(deadline), "equal counts as reached")
	assert.True(t, Timestamp{5, 501}.AtOrAfter(deadline))
	assert.True(t, Timestamp{6, 0}.AtOrAfter(deadline))
	assert.False(t, Timestamp{5, 499}.AtOrAfter(deadline))
	assert.False(t, Timestamp{4, 999_999_999}.AtOrAfter(deadline))
}

func TestTimestamp_Since(t *testing.T) {
	assert.Equal(t, Timestamp{1, 900_000_000}, Timestamp{3, 100_000_000}.Since(Timestamp{1, 200_000_000}))
	assert.Equal(t, Timestamp{}, Timestamp{1, 0}.Since(Timestamp{2, 0}), "earlier-than returns zero")
}

func TestFromMillis(t *testing.T) {
	assert.Equal(t, Timestamp{0, 100_000_000}, FromMillis(100))
	assert.Equal(t, Timestamp{2, 500_000_000}, FromMillis(2500))
	assert.Equal(t, Timestamp{}, FromMillis(0))
}

func TestTimestamp_String(t *testing.T) {
	assert.Equal(t, "3:000000042", Timestamp{3, 42}.String())
}
