package ingest

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// SystemMinInterval is the minimum spacing between kept battery-related
	// system notifications when no other keep condition holds.
	SystemMinInterval = 30 * time.Minute
	// SystemGenericCooldown throttles non-battery system chatter.
	SystemGenericCooldown = 2 * time.Hour
)

// batteryThresholds are the percent levels whose crossing always
// surfaces a battery notification.
var batteryThresholds = []int{15, 30, 50, 80, 100}

var percentRe = regexp.MustCompile(`(\d{1,3})%`)

// SystemNoiseFilter is a hysteresis gate for low-information SYSTEM
// category events, principally battery-percentage chatter. Its keep
// decision depends on remembered prior state, all guarded by one lock:
// a stale read here either floods the feed or silently drops a real
// battery-critical alert.
type SystemNoiseFilter struct {
	mu          sync.Mutex
	minInterval time.Duration
	cooldown    time.Duration

	lastBatteryPercent *int
	lastCharging       *bool
	lastNotifyAt       int64 // epoch ms; 0 means no system event kept yet
}

// NewSystemNoiseFilter creates a filter. Non-positive durations fall back
// to the defaults.
func NewSystemNoiseFilter(minInterval, cooldown time.Duration) *SystemNoiseFilter {
	if minInterval <= 0 {
		minInterval = SystemMinInterval
	}
	if cooldown <= 0 {
		cooldown = SystemGenericCooldown
	}
	return &SystemNoiseFilter{minInterval: minInterval, cooldown: cooldown}
}

// ShouldKeep decides whether a system-category event is worth surfacing.
// State updates happen only on keep.
func (f *SystemNoiseFilter) ShouldKeep(title, body string, now time.Time) bool {
	nowMs := now.UnixMilli()
	text := strings.ToLower(title + " " + body)

	percent, hasPercent := parseBatteryPercent(text)
	charging := strings.Contains(text, "charging") || strings.Contains(text, "charged")
	batteryRelated := hasPercent || charging

	f.mu.Lock()
	defer f.mu.Unlock()

	if !batteryRelated {
		if f.lastNotifyAt == 0 || nowMs-f.lastNotifyAt >= f.cooldown.Milliseconds() {
			f.lastNotifyAt = nowMs
			return true
		}
		return false
	}

	keep := false
	switch {
	case f.lastNotifyAt == 0:
		keep = true
	case hasPercent && f.lastBatteryPercent != nil && crossedThreshold(*f.lastBatteryPercent, percent):
		keep = true
	case f.lastCharging != nil && *f.lastCharging != charging:
		keep = true
	case hasPercent && f.lastBatteryPercent != nil && abs(percent-*f.lastBatteryPercent) >= 10:
		keep = true
	case hasPercent && f.lastBatteryPercent == nil:
		keep = true
	case nowMs-f.lastNotifyAt >= f.minInterval.Milliseconds():
		keep = true
	}
	if !keep {
		return false
	}
	if hasPercent {
		p := percent
		f.lastBatteryPercent = &p
	}
	c := charging
	f.lastCharging = &c
	f.lastNotifyAt = nowMs
	return true
}

// crossedThreshold reports whether any configured threshold lies strictly
// between the two percents, order-independent: a threshold t is crossed
// when lo < t <= hi.
func crossedThreshold(prev, cur int) bool {
	if prev == cur {
		return false
	}
	lo, hi := prev, cur
	if lo > hi {
		lo, hi = hi, lo
	}
	for _, t := range batteryThresholds {
		if lo < t && t <= hi {
			return true
		}
	}
	return false
}

func parseBatteryPercent(text string) (int, bool) {
	m := percentRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	if n < 0 {
		n = 0
	}
	if n > 100 {
		n = 100
	}
	return n, true
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
