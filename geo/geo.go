// Package geo holds coordinates and distance math.
package geo

import (
	"fmt"
	"math"
)

const earthRadiusKm = 6371.0088

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat" binding:"gte=-90,lte=90"`
	Lng float64 `json:"lng" binding:"gte=-180,lte=180"`
}

// Valid reports whether p is within coordinate bounds.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180 &&
		!math.IsNaN(p.Lat) && !math.IsNaN(p.Lng)
}

// Round returns p rounded to the given number of decimals. Negative zero
// is folded into zero.
func (p Point) Round(decimals int) Point {
	f := math.Pow10(decimals)
	return Point{Lat: roundTo(p.Lat, f), Lng: roundTo(p.Lng, f)}
}

func roundTo(v, f float64) float64 {
	r := math.Round(v*f) / f
	if r == 0 {
		return 0
	}
	return r
}

// Key formats p with fixed precision for hashing.
func (p Point) Key(decimals int) string {
	r := p.Round(decimals)
	return fmt.Sprintf("%.*f,%.*f", decimals, r.Lat, decimals, r.Lng)
}

// DistanceKm returns the haversine distance between a and b.
func DistanceKm(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}
