// windowrefresh.go: time-windowed refresh policy
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package strata

import (
	"fmt"
	"time"
)

// RefreshWindow is one named, disjoint interval of a day-of-week-free
// clock (hour:minute of day, inclusive start, exclusive end) mapped to a
// refresh interval (spec §4.G time-windowed policy). Start and End are
// expressed in minutes-since-midnight, in the policy's configured
// time.Location.
type RefreshWindow struct {
	Name     string
	Start    int // minutes since midnight, [0, 1440)
	End      int // minutes since midnight, (Start, 1440]
	Interval time.Duration
}

// TimeWindowRefreshPolicy chooses a refresh interval based on which
// configured window, if any, the current time (in Location) falls into;
// outside every window, Default applies. Windows must not overlap —
// validated once at construction by NewTimeWindowRefreshPolicy, per spec
// §4.G ("Windows must not overlap (validated at configuration time)").
type TimeWindowRefreshPolicy[K comparable, V any] struct {
	Windows  []RefreshWindow
	Default  time.Duration
	Location *time.Location

	// OnSuccess and OnFailure, if set, are invoked after a successful
	// or failed refresh respectively (RefreshPolicy contract, spec §6).
	OnSuccess func(key K, oldValue, newValue V)
	OnFailure func(key K, err error)
}

// NewTimeWindowRefreshPolicy validates windows for overlap and constructs a
// policy. loc defaults to time.UTC if nil.
func NewTimeWindowRefreshPolicy[K comparable, V any](windows []RefreshWindow, defaultInterval time.Duration, loc *time.Location) (*TimeWindowRefreshPolicy[K, V], error) {
	if loc == nil {
		loc = time.UTC
	}
	if err := validateWindows(windows); err != nil {
		return nil, err
	}
	return &TimeWindowRefreshPolicy[K, V]{
		Windows:  windows,
		Default:  defaultInterval,
		Location: loc,
	}, nil
}

// validateWindows rejects any pair of windows whose [Start, End) ranges
// intersect, in either iteration order, with an error naming both windows
// (spec §4.G, §7 InvalidConfiguration).
func validateWindows(windows []RefreshWindow) error {
	for i := 0; i < len(windows); i++ {
		a := windows[i]
		if a.Start < 0 || a.End > 1440 || a.Start >= a.End {
			return NewErrInvalidConfig(fmt.Sprintf("refresh window %q has an invalid range [%d, %d)", a.Name, a.Start, a.End))
		}
		for j := i + 1; j < len(windows); j++ {
			b := windows[j]
			if a.Start < b.End && b.Start < a.End {
				return NewErrOverlappingWindows(a.Name, b.Name)
			}
		}
	}
	return nil
}

// RefreshInterval implements RefreshPolicy: now is an absolute nanosecond
// timestamp from the engine's TimeProvider, interpreted as wall-clock time
// in p.Location to find the minute-of-day bucket.
func (p *TimeWindowRefreshPolicy[K, V]) RefreshInterval(key K, value V, now int64) int64 {
	t := time.Unix(0, now).In(p.Location)
	minuteOfDay := t.Hour()*60 + t.Minute()

	for _, w := range p.Windows {
		if minuteOfDay >= w.Start && minuteOfDay < w.End {
			return int64(w.Interval)
		}
	}
	return int64(p.Default)
}

// OnRefreshSuccess implements RefreshPolicy.
func (p *TimeWindowRefreshPolicy[K, V]) OnRefreshSuccess(key K, oldValue, newValue V) {
	if p.OnSuccess != nil {
		p.OnSuccess(key, oldValue, newValue)
	}
}

// OnRefreshFailure implements RefreshPolicy.
func (p *TimeWindowRefreshPolicy[K, V]) OnRefreshFailure(key K, err error) {
	if p.OnFailure != nil {
		p.OnFailure(key, err)
	}
}
