package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCrossedThreshold(t *testing.T) {
	cases := []struct {
		prev, cur int
		want      bool
	}{
		{28, 32, true},  // crosses 30 upward
		{32, 28, true},  // crosses 30 downward
		{31, 34, false}, // between thresholds
		{50, 50, false},
		{49, 50, true},
		{50, 51, false}, // 50 not crossed: lo < t <= hi with lo=50
		{14, 16, true},
		{99, 100, true},
		{0, 100, true},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, crossedThreshold(c.prev, c.cur), "prev=%d cur=%d", c.prev, c.cur)
	}
}

func TestParseBatteryPercent(t *testing.T) {
	p, ok := parseBatteryPercent("battery at 42% remaining")
	assert.True(t, ok)
	assert.Equal(t, 42, p)

	_, ok = parseBatteryPercent("storage almost full")
	assert.False(t, ok)

	p, ok = parseBatteryPercent("weird 120% reading")
	assert.True(t, ok)
	assert.Equal(t, 100, p)
}

func TestNoiseFilterFirstEverKept(t *testing.T) {
	f := NewSystemNoiseFilter(0, 0)
	t0 := time.UnixMilli(1_000_000)
	assert.True(t, f.ShouldKeep("Battery", "battery at 42%", t0))
}

func TestNoiseFilterSmallDriftSuppressed(t *testing.T) {
	f := NewSystemNoiseFilter(0, 0)
	t0 := time.UnixMilli(1_000_000)

	assert.True(t, f.ShouldKeep("Battery", "battery at 42%", t0))
	// 41% one second later: no threshold crossed, no charging flip,
	// drift under 10, interval not elapsed
	assert.False(t, f.ShouldKeep("Battery", "battery at 41%", t0.Add(time.Second)))
}

func TestNoiseFilterThresholdCrossingKept(t *testing.T) {
	f := NewSystemNoiseFilter(0, 0)
	t0 := time.UnixMilli(1_000_000)

	assert.True(t, f.ShouldKeep("Battery", "battery at 32%", t0))
	assert.True(t, f.ShouldKeep("Battery", "battery at 29%", t0.Add(time.Second)))
}

func TestNoiseFilterChargingFlipKept(t *testing.T) {
	f := NewSystemNoiseFilter(0, 0)
	t0 := time.UnixMilli(1_000_000)

	assert.True(t, f.ShouldKeep("Battery", "battery at 42%", t0))
	assert.True(t, f.ShouldKeep("Battery", "charging, battery at 42%", t0.Add(time.Second)))
	// same charging state again: suppressed
	assert.False(t, f.ShouldKeep("Battery", "charging, battery at 43%", t0.Add(2*time.Second)))
}

func TestNoiseFilterLargeDriftKept(t *testing.T) {
	f := NewSystemNoiseFilter(0, 0)
	t0 := time.UnixMilli(1_000_000)

	assert.True(t, f.ShouldKeep("Battery", "battery at 44%", t0))
	assert.True(t, f.ShouldKeep("Battery", "battery at 34%", t0.Add(time.Second)))
}

func TestNoiseFilterMinIntervalElapsed(t *testing.T) {
	f := NewSystemNoiseFilter(0, 0)
	t0 := time.UnixMilli(1_000_000)

	assert.True(t, f.ShouldKeep("Battery", "battery at 42%", t0))
	assert.False(t, f.ShouldKeep("Battery", "battery at 41%", t0.Add(time.Minute)))
	assert.True(t, f.ShouldKeep("Battery", "battery at 41%", t0.Add(30*time.Minute)))
}

func TestNoiseFilterGenericCooldown(t *testing.T) {
	f := NewSystemNoiseFilter(0, 0)
	t0 := time.UnixMilli(1_000_000)

	assert.True(t, f.ShouldKeep("System update", "a new update is available", t0))
	assert.False(t, f.ShouldKeep("System update", "a new update is available", t0.Add(time.Second)))
	assert.False(t, f.ShouldKeep("System update", "a new update is available", t0.Add(2*time.Hour-time.Second)))
	assert.True(t, f.ShouldKeep("System update", "a new update is available", t0.Add(2*time.Hour+time.Second)))
}

func TestNoiseFilterSuppressedEventDoesNotUpdateState(t *testing.T) {
	f := NewSystemNoiseFilter(0, 0)
	t0 := time.UnixMilli(1_000_000)

	assert.True(t, f.ShouldKeep("Battery", "battery at 32%", t0))
	assert.False(t, f.ShouldKeep("Battery", "battery at 31%", t0.Add(time.Second)))
	// 29% vs remembered 32%, not vs the suppressed 31%: crossing of 30
	assert.True(t, f.ShouldKeep("Battery", "battery at 29%", t0.Add(2*time.Second)))
}
