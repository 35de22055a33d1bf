package ranking

import (
	"math"
	"sort"

	"github.com/ncobase/placesearch/geo"
)

const (
	maxRating         = 5.0
	reviewSaturation  = 5000.0
	distanceHalfScale = 2.0 // km at which the distance component is 0.5
)

// Features are the per-item signals the scorer reads.
type Features struct {
	Rating        float64
	ReviewCount   int
	Location      *geo.Point
	OpenNow       *bool
	CuisineScores map[string]float64
}

// Scored is one ranked item. Index refers to the input order.
type Scored struct {
	Index      int
	Score      float64
	DistanceKm *float64
}

// Origin picks the distance reference: the user location, else the
// reported city center. It returns nil when neither is known.
func Origin(user, cityCenter *geo.Point) *geo.Point {
	if user != nil {
		return user
	}
	return cityCenter
}

// Rank scores items with already-enforced weights and returns them best
// first. Ties keep provider order.
func Rank(items []Features, w Weights, c Context, origin *geo.Point) []Scored {
	out := make([]Scored, len(items))
	for i, it := range items {
		s := Scored{Index: i}
		if origin != nil && it.Location != nil {
			d := geo.DistanceKm(*origin, *it.Location)
			s.DistanceKm = &d
		}
		s.Score = score(it, s.DistanceKm, w, c)
		out[i] = s
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Score != out[b].Score {
			return out[a].Score > out[b].Score
		}
		return out[a].Index < out[b].Index
	})
	return out
}

func score(it Features, dist *float64, w Weights, c Context) float64 {
	total := w.Rating * clamp01(it.Rating/maxRating)
	total += w.Reviews * reviewsComponent(it.ReviewCount)

	if w.Distance > 0 && dist != nil {
		total += w.Distance * (1 / (1 + *dist/distanceHalfScale))
	}
	if w.OpenBoost > 0 && it.OpenNow != nil && *it.OpenNow {
		total += w.OpenBoost
	}
	if w.CuisineMatch > 0 && c.CuisineKey != "" {
		total += w.CuisineMatch * clamp01(it.CuisineScores[c.CuisineKey])
	}
	return total
}

// reviewsComponent dampens review counts logarithmically.
func reviewsComponent(n int) float64 {
	if n <= 0 {
		return 0
	}
	return clamp01(math.Log1p(float64(n)) / math.Log1p(reviewSaturation))
}

// HasCuisineScores reports whether any item carries a score for key.
func HasCuisineScores(items []Features, key string) bool {
	if key == "" {
		return false
	}
	for _, it := range items {
		if _, ok := it.CuisineScores[key]; ok {
			return true
		}
	}
	return false
}
