package geo

import "math"

const earthRadiusM = 6371000.0

// Coordinate is a WGS84 position in decimal degrees.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether c is a finite coordinate inside the WGS84 ranges.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Latitude) || math.IsNaN(c.Longitude) {
		return false
	}
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

// HaversineKm returns the great-circle distance in kilometres on a spherical earth.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	// rounding can push a slightly outside [0,1]
	a = math.Min(math.Max(a, 0), 1)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	d := earthRadiusM * c / 1000
	if math.IsNaN(d) || d < 0 {
		return 0
	}
	return d
}

// DistanceKm is HaversineKm over two coordinates.
func DistanceKm(a, b Coordinate) float64 {
	if a == b {
		return 0
	}
	return HaversineKm(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
}

// PathKm sums DistanceKm over consecutive pairs of points.
func PathKm(points []Coordinate) float64 {
	total := 0.0
	for i := 1; i < len(points); i++ {
		total += DistanceKm(points[i-1], points[i])
	}
	return total
}

// Accumulator keeps a running distance over samples appended in order.
// The zero value is ready to use.
type Accumulator struct {
	last    Coordinate
	hasLast bool
	total   float64
}

// Add records c and returns the distance from the previous sample.
// The first sample contributes zero.
func (a *Accumulator) Add(c Coordinate) float64 {
	inc := 0.0
	if a.hasLast {
		inc = DistanceKm(a.last, c)
	}
	a.last = c
	a.hasLast = true
	a.total += inc
	return inc
}

func (a *Accumulator) TotalKm() float64 {
	return a.total
}

// Last returns the most recent sample, if any.
func (a *Accumulator) Last() (Coordinate, bool) {
	return a.last, a.hasLast
}
