// Package mercator converts between geographic coordinates and the unit
// Web Mercator square, where (0, 0) is the north-west corner of the world
// and (1, 1) the south-east one.
package mercator

import "math"

const (
	EarthRadius        = 6371008.8
	EarthCircumference = 2 * math.Pi * EarthRadius

	// MaxLatitude is the latitude at which the projection becomes square.
	MaxLatitude = 85.051129
)

func XFromLng(lng float64) float64 {
	return (180 + lng) / 360
}

func YFromLat(lat float64) float64 {
	lat = clamp(lat, -MaxLatitude, MaxLatitude)
	return (180 - 180/math.Pi*math.Log(math.Tan(math.Pi/4+lat*math.Pi/360))) / 360
}

func LngFromX(x float64) float64 {
	return x*360 - 180
}

func LatFromY(y float64) float64 {
	y2 := 180 - y*360
	return 360/math.Pi*math.Atan(math.Exp(y2*math.Pi/180)) - 90
}

// FromLngLat returns the unit mercator position of a lng/lat pair.
func FromLngLat(lng, lat float64) (x, y float64) {
	return XFromLng(lng), YFromLat(lat)
}

func ToLngLat(x, y float64) (lng, lat float64) {
	return LngFromX(x), LatFromY(y)
}

// CircumferenceAtLatitude is the length of the parallel at lat in meters.
func CircumferenceAtLatitude(lat float64) float64 {
	return EarthCircumference * math.Cos(lat*math.Pi/180)
}

// ZFromAltitude converts meters into unit mercator distance at lat.
func ZFromAltitude(altitude, lat float64) float64 {
	return altitude / CircumferenceAtLatitude(lat)
}

func AltitudeFromZ(z, lat float64) float64 {
	return z * CircumferenceAtLatitude(lat)
}

// PixelsPerMeter is the number of world pixels covering one meter at lat
// when the whole world spans worldSize pixels. lat is clamped like FromLngLat.
func PixelsPerMeter(lat, worldSize float64) float64 {
	return worldSize / CircumferenceAtLatitude(clamp(lat, -MaxLatitude, MaxLatitude))
}

// PointToTileFraction returns the fractional tile coordinates of lng/lat in
// the 2^z grid.
func PointToTileFraction(lng, lat float64, z int) (fx, fy float64) {
	dim := math.Exp2(float64(z))
	x, y := FromLngLat(lng, lat)
	return x * dim, y * dim
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
