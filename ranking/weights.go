// Package ranking scores provider results with weights whose components are
// zeroed whenever the signal they depend on is missing.
package ranking

// Weights are the five scoring components, each in [0,1].
type Weights struct {
	Rating       float64 `json:"rating" mapstructure:"rating"`
	Reviews      float64 `json:"reviews" mapstructure:"reviews"`
	Distance     float64 `json:"distance" mapstructure:"distance"`
	OpenBoost    float64 `json:"open_boost" mapstructure:"open_boost"`
	CuisineMatch float64 `json:"cuisine_match" mapstructure:"cuisine_match"`
}

// Context carries the signals that gate individual weights.
type Context struct {
	HasUserLocation  bool
	OpenNowRequested bool
	HasCuisineScores bool
	CuisineKey       string
}

// Clamp limits every component to [0,1].
func (w Weights) Clamp() Weights {
	w.Rating = clamp01(w.Rating)
	w.Reviews = clamp01(w.Reviews)
	w.Distance = clamp01(w.Distance)
	w.OpenBoost = clamp01(w.OpenBoost)
	w.CuisineMatch = clamp01(w.CuisineMatch)
	return w
}

// Enforce returns the effective weights for c. The argument is a value and
// is never modified; Enforce(Enforce(w, c), c) == Enforce(w, c).
func Enforce(w Weights, c Context) Weights {
	if !c.HasUserLocation {
		w.Distance = 0
	}
	if c.CuisineKey == "" || !c.HasCuisineScores {
		w.CuisineMatch = 0
	}
	if !c.OpenNowRequested {
		w.OpenBoost = 0
	}
	return w
}

func clamp01(v float64) float64 {
	switch {
	case v != v, v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
