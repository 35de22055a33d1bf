package ranking

import (
	"math/rand"
	"testing"

	"github.com/ncobase/placesearch/geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomWeights(r *rand.Rand) Weights {
	return Weights{
		Rating:       r.Float64(),
		Reviews:      r.Float64(),
		Distance:     r.Float64(),
		OpenBoost:    r.Float64(),
		CuisineMatch: r.Float64(),
	}
}

func randomContext(r *rand.Rand) Context {
	c := Context{
		HasUserLocation:  r.Intn(2) == 0,
		OpenNowRequested: r.Intn(2) == 0,
		HasCuisineScores: r.Intn(2) == 0,
	}
	if r.Intn(2) == 0 {
		c.CuisineKey = "italian"
	}
	return c
}

func TestEnforceInvariants(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		w := randomWeights(r)
		c := randomContext(r)
		orig := w

		once := Enforce(w, c)
		assert.Equal(t, orig, w, "input must not change")
		assert.Equal(t, once, Enforce(once, c), "enforce must be idempotent")

		if !c.HasUserLocation {
			assert.Zero(t, once.Distance)
		} else {
			assert.Equal(t, w.Distance, once.Distance)
		}
		if c.CuisineKey == "" || !c.HasCuisineScores {
			assert.Zero(t, once.CuisineMatch)
		}
		if !c.OpenNowRequested {
			assert.Zero(t, once.OpenBoost)
		}
		assert.Equal(t, w.Rating, once.Rating)
		assert.Equal(t, w.Reviews, once.Reviews)
	}
}

func TestClamp(t *testing.T) {
	w := Weights{Rating: 1.5, Reviews: -1, Distance: 0.4}.Clamp()
	assert.Equal(t, 1.0, w.Rating)
	assert.Zero(t, w.Reviews)
	assert.Equal(t, 0.4, w.Distance)
}

func TestRankDeterministicWithProviderTiebreak(t *testing.T) {
	items := []Features{
		{Rating: 4.0, ReviewCount: 100},
		{Rating: 4.5, ReviewCount: 100},
		{Rating: 4.0, ReviewCount: 100},
	}
	w := Enforce(Weights{Rating: 0.5, Reviews: 0.2, Distance: 0.3}, Context{})
	first := Rank(items, w, Context{}, nil)
	second := Rank(items, w, Context{}, nil)

	require.Equal(t, first, second)
	assert.Equal(t, []int{1, 0, 2}, indexes(first))
}

func TestRankDistanceUsesOrigin(t *testing.T) {
	user := geo.Point{Lat: 40.0, Lng: -74.0}
	near := geo.Point{Lat: 40.001, Lng: -74.0}
	far := geo.Point{Lat: 40.2, Lng: -74.0}
	items := []Features{{Rating: 4, Location: &far}, {Rating: 4, Location: &near}}

	c := Context{HasUserLocation: true}
	w := Enforce(Weights{Rating: 0.3, Distance: 0.7}, c)
	got := Rank(items, w, c, Origin(&user, nil))
	assert.Equal(t, []int{1, 0}, indexes(got))
	require.NotNil(t, got[0].DistanceKm)
	assert.Less(t, *got[0].DistanceKm, 1.0)
}

func TestRankReviewsDampened(t *testing.T) {
	items := []Features{{Rating: 4.8, ReviewCount: 20}, {Rating: 4.0, ReviewCount: 200000}}
	w := Weights{Rating: 0.7, Reviews: 0.15}
	got := Rank(items, w, Context{}, nil)
	assert.Equal(t, 0, got[0].Index)
	assert.LessOrEqual(t, reviewsComponent(200000), 1.0)
}

func TestRankOpenAndCuisine(t *testing.T) {
	open, closed := true, false
	items := []Features{
		{Rating: 4, OpenNow: &closed, CuisineScores: map[string]float64{"sushi": 0.1}},
		{Rating: 4, OpenNow: &open, CuisineScores: map[string]float64{"sushi": 0.9}},
	}
	c := Context{OpenNowRequested: true, CuisineKey: "sushi", HasCuisineScores: HasCuisineScores(items, "sushi")}
	w := Enforce(Weights{Rating: 0.4, OpenBoost: 0.3, CuisineMatch: 0.3}, c)
	assert.Equal(t, []int{1, 0}, indexes(Rank(items, w, c, nil)))
	assert.False(t, HasCuisineScores(items, "thai"))
}

func indexes(s []Scored) []int {
	out := make([]int, len(s))
	for i, v := range s {
		out[i] = v.Index
	}
	return out
}
