// Package sonde holds dropsonde profiles and decides how each one is shown
// on a movie frame.
package sonde

import (
	"time"
)

// Sample is one reading of a falling sonde.
type Sample struct {
	Time time.Time
	Lon  float64
	Lat  float64
	Alt  float64 // metres
}

// Sonde is one dropsonde profile. Samples are in chronological order, the
// last one being the touchdown.
type Sonde struct {
	LaunchTime time.Time
	Samples    []Sample
}

// LastTime returns the time of the final sample, or the launch time if the
// sonde has no samples.
func (s *Sonde) LastTime() time.Time {
	if len(s.Samples) == 0 {
		return s.LaunchTime
	}
	return s.Samples[len(s.Samples)-1].Time
}

// Active returns the sondes launched at or before t and less than fade
// before t, in archive order. The result always has exactly slots entries:
// missing ones are nil and sondes beyond the slot count are dropped.
func Active(all []*Sonde, t time.Time, fade time.Duration, slots int) []*Sonde {
	out := make([]*Sonde, 0, slots)
	for _, s := range all {
		if len(out) == slots {
			break
		}
		if !s.LaunchTime.After(t) && s.LaunchTime.Add(fade).After(t) {
			out = append(out, s)
		}
	}
	for len(out) < slots {
		out = append(out, nil)
	}
	return out
}

// CountActive returns how many sondes Active would consider before
// truncating to the slot count.
func CountActive(all []*Sonde, t time.Time, fade time.Duration) int {
	n := 0
	for _, s := range all {
		if !s.LaunchTime.After(t) && s.LaunchTime.Add(fade).After(t) {
			n++
		}
	}
	return n
}
