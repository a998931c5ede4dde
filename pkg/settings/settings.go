// Package settings holds the user-facing settings surface: per-package
// enablement and the "suppress original OS notification once mirrored"
// toggle. Reads are snapshot-style behind an RWMutex so the ingestion
// path can consult them without I/O.
package settings

import (
	"sort"
	"sync"

	"notifeed/pkg/config"
	"notifeed/pkg/logger"
)

type Snapshot struct {
	SuppressMirrored bool
	Disabled         map[string]struct{}
}

var (
	mu   sync.RWMutex
	snap = Snapshot{Disabled: map[string]struct{}{}}
)

// Apply installs a new snapshot from config.
func Apply(sc config.SettingsConfig) {
	next := Snapshot{SuppressMirrored: sc.SuppressMirrored, Disabled: map[string]struct{}{}}
	for _, p := range sc.DisabledPackages {
		next.Disabled[p] = struct{}{}
	}
	mu.Lock()
	snap = next
	mu.Unlock()
	logger.Info("settings_applied", "disabled", len(next.Disabled), "suppress_mirrored", next.SuppressMirrored)
}

// PackageEnabled reports whether notifications from pkg are ingested.
func PackageEnabled(pkg string) bool {
	mu.RLock()
	defer mu.RUnlock()
	_, off := snap.Disabled[pkg]
	return !off
}

// SuppressMirrored reports the suppress-once-mirrored toggle.
func SuppressMirrored() bool {
	mu.RLock()
	defer mu.RUnlock()
	return snap.SuppressMirrored
}

// SetPackageEnabled flips a single package at runtime (settings API).
func SetPackageEnabled(pkg string, enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	next := Snapshot{SuppressMirrored: snap.SuppressMirrored, Disabled: make(map[string]struct{}, len(snap.Disabled))}
	for p := range snap.Disabled {
		next.Disabled[p] = struct{}{}
	}
	if enabled {
		delete(next.Disabled, pkg)
	} else {
		next.Disabled[pkg] = struct{}{}
	}
	snap = next
}

// DisabledPackages returns the disabled package names in sorted order.
func DisabledPackages() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(snap.Disabled))
	for p := range snap.Disabled {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// View is an adapter satisfying the ingest pipeline's Settings interface.
type View struct{}

func (View) PackageEnabled(pkg string) bool { return PackageEnabled(pkg) }
