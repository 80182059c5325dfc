package satellite

import (
	"fmt"
	"sort"
	"time"
)

// Key identifies a dataset by channel and temporal resolution in minutes.
type Key struct {
	Channel    int
	Resolution int
}

func (k Key) String() string {
	return fmt.Sprintf("CH%02d_%02dmin", k.Channel, k.Resolution)
}

// Tier is one step of the resolution fallback: the resolution to try and how
// far from the requested time a sample may be.
type Tier struct {
	Resolution int
	Tolerance  time.Duration
}

// DefaultTiers tries the 1-minute data first and falls back to the 10-minute
// data.
var DefaultTiers = []Tier{
	{Resolution: 1, Tolerance: time.Minute},
	{Resolution: 10, Tolerance: 6 * time.Minute},
}

// Sources holds the datasets that could be opened at startup. A missing key
// means the source is unavailable.
type Sources map[Key]Dataset

// Select returns the first grid found for channel at t, walking tiers in
// order. A tier is skipped when its dataset is absent or fails to produce a
// sample within tolerance. ok is false when no tier yields data.
func (s Sources) Select(channel int, t time.Time, tiers []Tier) (g *Grid, key Key, ok bool) {
	for _, tier := range tiers {
		key = Key{Channel: channel, Resolution: tier.Resolution}
		ds, found := s[key]
		if !found {
			continue
		}
		grid, err := ds.Nearest(t, tier.Tolerance)
		if err != nil {
			continue
		}
		return grid, key, true
	}
	return nil, Key{}, false
}

// Keys returns the available keys in a stable order.
func (s Sources) Keys() []Key {
	keys := make([]Key, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Channel != keys[j].Channel {
			return keys[i].Channel < keys[j].Channel
		}
		return keys[i].Resolution < keys[j].Resolution
	})
	return keys
}

// Close closes every dataset.
func (s Sources) Close() error {
	var first error
	for _, ds := range s {
		if err := ds.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
