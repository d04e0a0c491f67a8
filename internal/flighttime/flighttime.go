// Package flighttime carries the pure time arithmetic of a logbook:
// night-time estimation from sun position, duration splitting, and
// formatting helpers. No package here touches the database or the
// network.
package flighttime

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrPolarSun reports a date and latitude where the sun never crosses
// the horizon, so sunrise and sunset are undefined.
var ErrPolarSun = errors.New("sun does not rise or set at this latitude and date")

// civilTwilightAngle is the solar depression angle, in degrees, below
// which flight time counts as night under most civil regulations.
const civilTwilightAngle = 6.0

// SunTimes holds the computed sunrise and sunset, in UTC, bracketing
// the period where daylight credit applies.
type SunTimes struct {
	Rise time.Time
	Set  time.Time
}

// SunTimesAt computes civil-twilight sunrise and sunset for a location
// on a given date using the NOAA solar position approximation. Accuracy
// is within a couple of minutes, which is enough for logbook night-time
// estimates.
func SunTimesAt(date time.Time, lat, lon float64) (SunTimes, error) {
	rise, err := solarCrossing(date, lat, lon, true)
	if err != nil {
		return SunTimes{}, err
	}
	set, err := solarCrossing(date, lat, lon, false)
	if err != nil {
		return SunTimes{}, err
	}
	return SunTimes{Rise: rise, Set: set}, nil
}

// NightMinutes estimates how much of the interval [start, end) falls
// outside civil daylight, using the midpoint between the two airports
// as the reference location. start and end must be in UTC; the route is
// treated as stationary at the midpoint, which is adequate for
// short-haul legs.
func NightMinutes(start, end time.Time, depLat, depLon, arrLat, arrLon float64) (int, error) {
	if !end.After(start) {
		return 0, fmt.Errorf("interval end %s is not after start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	lat := (depLat + arrLat) / 2
	lon := midLongitude(depLon, arrLon)

	night := 0
	// Walk the interval in one-minute steps; cheap at logbook scale and
	// immune to legs that span a sunrise, a sunset, or midnight.
	for t := start; t.Before(end); t = t.Add(time.Minute) {
		day, err := isDaylight(t, lat, lon)
		if err != nil {
			if errors.Is(err, ErrPolarSun) {
				// Polar day or night: decide by instantaneous elevation.
				day = solarElevation(t, lat, lon) > -civilTwilightAngle
			} else {
				return 0, err
			}
		}
		if !day {
			night++
		}
	}
	return night, nil
}

// isDaylight reports whether t falls between civil sunrise and sunset
// at the location.
func isDaylight(t time.Time, lat, lon float64) (bool, error) {
	st, err := SunTimesAt(t, lat, lon)
	if err != nil {
		return false, err
	}
	return !t.Before(st.Rise) && t.Before(st.Set), nil
}

// midLongitude averages two longitudes the short way around, so a leg
// crossing the antimeridian does not land on the far side of the globe.
func midLongitude(a, b float64) float64 {
	diff := math.Mod(b-a+540, 360) - 180
	mid := a + diff/2
	if mid > 180 {
		mid -= 360
	}
	if mid < -180 {
		mid += 360
	}
	return mid
}

// solarCrossing finds the UTC instant of civil sunrise (rise=true) or
// sunset on the UTC date of t. The formulas are the NOAA low-accuracy
// set based on fractional year.
func solarCrossing(t time.Time, lat, lon float64, rise bool) (time.Time, error) {
	utc := t.UTC()
	yday := float64(utc.YearDay())

	gamma := 2 * math.Pi / 365 * (yday - 1 + (float64(utc.Hour())-12)/24)

	eqTime := 229.18 * (0.000075 +
		0.001868*math.Cos(gamma) -
		0.032077*math.Sin(gamma) -
		0.014615*math.Cos(2*gamma) -
		0.040849*math.Sin(2*gamma))

	decl := 0.006918 -
		0.399912*math.Cos(gamma) +
		0.070257*math.Sin(gamma) -
		0.006758*math.Cos(2*gamma) +
		0.000907*math.Sin(2*gamma) -
		0.002697*math.Cos(3*gamma) +
		0.00148*math.Sin(3*gamma)

	latRad := lat * math.Pi / 180
	zenith := (90 + civilTwilightAngle) * math.Pi / 180

	cosHA := (math.Cos(zenith) - math.Sin(latRad)*math.Sin(decl)) /
		(math.Cos(latRad) * math.Cos(decl))
	if cosHA > 1 || cosHA < -1 {
		return time.Time{}, ErrPolarSun
	}

	ha := math.Acos(cosHA) * 180 / math.Pi
	if !rise {
		ha = -ha
	}

	minutes := 720 - 4*(lon+ha) - eqTime
	midnight := time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
	return midnight.Add(time.Duration(minutes * float64(time.Minute))), nil
}

// solarElevation returns the sun's elevation angle in degrees at t for
// the location. Used only to classify polar day versus polar night.
func solarElevation(t time.Time, lat, lon float64) float64 {
	utc := t.UTC()
	yday := float64(utc.YearDay())
	frac := float64(utc.Hour()) + float64(utc.Minute())/60

	gamma := 2 * math.Pi / 365 * (yday - 1 + (frac-12)/24)

	eqTime := 229.18 * (0.000075 +
		0.001868*math.Cos(gamma) -
		0.032077*math.Sin(gamma) -
		0.014615*math.Cos(2*gamma) -
		0.040849*math.Sin(2*gamma))

	decl := 0.006918 -
		0.399912*math.Cos(gamma) +
		0.070257*math.Sin(gamma) -
		0.006758*math.Cos(2*gamma) +
		0.000907*math.Sin(2*gamma) -
		0.002697*math.Cos(3*gamma) +
		0.00148*math.Sin(3*gamma)

	trueSolarMin := frac*60 + eqTime + 4*lon
	haDeg := trueSolarMin/4 - 180

	latRad := lat * math.Pi / 180
	haRad := haDeg * math.Pi / 180

	cosZenith := math.Sin(latRad)*math.Sin(decl) + math.Cos(latRad)*math.Cos(decl)*math.Cos(haRad)
	return 90 - math.Acos(math.Max(-1, math.Min(1, cosZenith)))*180/math.Pi
}

// FormatMinutes renders a minute count as the H:MM logbook convention.
func FormatMinutes(min int) string {
	if min < 0 {
		min = 0
	}
	return fmt.Sprintf("%d:%02d", min/60, min%60)
}

// SumMinutes totals a column of minute values.
func SumMinutes(values ...int) int {
	total := 0
	for _, v := range values {
		total += v
	}
	return total
}
