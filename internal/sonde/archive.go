package sonde

import (
	"fmt"
	"sort"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"

	"github.com/observingClouds/eurec4a-movies/internal/ncvar"
)

// Vars names the archive variables. Time, Lon, Lat and Alt are laid out as
// (launch, level); Alt may also be a one-dimensional level coordinate.
type Vars struct {
	Launch string
	Time   string
	Lon    string
	Lat    string
	Alt    string
}

// DefaultVars matches the campaign sonde archive.
var DefaultVars = Vars{
	Launch: "launch_time",
	Time:   "time",
	Lon:    "lon",
	Lat:    "lat",
	Alt:    "alt",
}

// LoadDay reads the sondes launched on the UTC day of day from the archive
// at path. Sondes with fewer than minSamples valid sample times are dropped,
// as are the samples without a time. Sondes keep their archive order.
func LoadDay(path string, vars Vars, day time.Time, minSamples int) ([]*Sonde, error) {
	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, err
	}
	defer nc.Close()

	launches, err := ncvar.Times(nc, vars.Launch)
	if err != nil {
		return nil, err
	}
	times, err := ncvar.Times(nc, vars.Time)
	if err != nil {
		return nil, err
	}
	if len(launches) == 0 {
		return nil, nil
	}
	if len(times)%len(launches) != 0 {
		return nil, fmt.Errorf("%s: %d %s values do not split over %d launches", path, len(times), vars.Time, len(launches))
	}
	levels := len(times) / len(launches)

	lon, err := profileValues(nc, vars.Lon, len(launches), levels)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	lat, err := profileValues(nc, vars.Lat, len(launches), levels)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	alt, err := profileValues(nc, vars.Alt, len(launches), levels)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	y, m, d := day.UTC().Date()
	var sondes []*Sonde
	for i, launch := range launches {
		if launch.IsZero() {
			continue
		}
		if ly, lm, ld := launch.Date(); ly != y || lm != m || ld != d {
			continue
		}
		s := &Sonde{LaunchTime: launch.Truncate(time.Minute)}
		for j := 0; j < levels; j++ {
			k := i*levels + j
			if times[k].IsZero() {
				continue
			}
			s.Samples = append(s.Samples, Sample{
				Time: times[k],
				Lon:  lon(i, j),
				Lat:  lat(i, j),
				Alt:  alt(i, j),
			})
		}
		if len(s.Samples) < minSamples {
			continue
		}
		sort.SliceStable(s.Samples, func(a, b int) bool {
			return s.Samples[a].Time.Before(s.Samples[b].Time)
		})
		sondes = append(sondes, s)
	}
	return sondes, nil
}

// profileValues reads a (launch, level) variable, or a level coordinate
// shared by all launches.
func profileValues(nc api.Group, name string, launches, levels int) (func(i, j int) float64, error) {
	vals, err := ncvar.Floats(nc, name)
	if err != nil {
		return nil, err
	}
	switch len(vals) {
	case launches * levels:
		return func(i, j int) float64 { return vals[i*levels+j] }, nil
	case levels:
		return func(_, j int) float64 { return vals[j] }, nil
	}
	return nil, fmt.Errorf("variable %q: %d values for %d launches of %d levels", name, len(vals), launches, levels)
}
