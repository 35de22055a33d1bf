package search

import (
	"testing"

	"github.com/ncobase/placesearch/geo"
	"github.com/ncobase/placesearch/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var telAviv = &geo.Point{Lat: 32.0853, Lng: 34.7818}

func TestNearMe(t *testing.T) {
	for _, q := range []string{"pizza near me", "Coffee NEARBY", "closest pharmacy", "מסעדה בסביבה", "café près de moi"} {
		assert.True(t, NearMe(q), q)
	}
	for _, q := range []string{"pizza in haifa", "near the louvre", "menu"} {
		assert.False(t, NearMe(q), q)
	}
	assert.Equal(t, "pizza", StripNearMe("pizza  near me"))
}

func TestRouteIntentNearMeWithoutLocationClarifies(t *testing.T) {
	r := RouteIntent(RouteInput{Query: "burgers near me", Confidence: 0.99})
	c, ok := r.(RouteClarify)
	require.True(t, ok)
	assert.Equal(t, clarifyLocation, c.Question)
}

func TestRouteIntentNearMeForcesProximity(t *testing.T) {
	// classifier confidence must not matter
	for _, conf := range []float64{0, 0.3, 0.99} {
		r := RouteIntent(RouteInput{Query: "burgers near me", Location: telAviv, Confidence: conf})
		p, ok := r.(RouteProvider)
		require.True(t, ok)
		assert.Equal(t, provider.ModeNearby, p.Mode)
		assert.Equal(t, "near_me", p.Reason)
	}
}

func TestRouteIntentModes(t *testing.T) {
	tests := []struct {
		name string
		in   RouteInput
		mode provider.Mode
	}{
		{"landmark", RouteInput{Query: "coffee near the Louvre"}, provider.ModeLandmark},
		{"explicit area", RouteInput{Query: "sushi in Haifa", Location: telAviv, Confidence: 0.9}, provider.ModeText},
		{"location bias", RouteInput{Query: "sushi", Location: telAviv, Confidence: 0.9}, provider.ModeNearby},
		{"low confidence", RouteInput{Query: "sushi", Location: telAviv, Confidence: 0.5}, provider.ModeText},
		{"no location", RouteInput{Query: "sushi", Confidence: 0.9}, provider.ModeText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := RouteIntent(tt.in).(RouteProvider)
			require.True(t, ok)
			assert.Equal(t, tt.mode, p.Mode)
		})
	}
	p := RouteIntent(RouteInput{Query: "coffee near the Louvre"}).(RouteProvider)
	assert.Equal(t, "Louvre", p.Landmark)
}

func TestBuildQuery(t *testing.T) {
	loc := Locale{Language: "en", Region: "IL"}

	q := BuildQuery(RouteProvider{Mode: provider.ModeNearby}, &Request{Query: "pizza   near me", Location: telAviv}, loc)
	assert.Equal(t, "pizza", q.Keyword)
	assert.Empty(t, q.Text)
	assert.Equal(t, defaultRadiusMeters, q.RadiusMeters)
	assert.Equal(t, "en", q.Language)
	assert.Equal(t, "IL", q.Region)

	q = BuildQuery(RouteProvider{Mode: provider.ModeNearby}, &Request{
		Query: "pizza near me", Location: telAviv, Filters: &Filters{MaxDistanceKm: 0.5},
	}, loc)
	assert.Equal(t, 500, q.RadiusMeters)

	q = BuildQuery(RouteProvider{Mode: provider.ModeLandmark, Landmark: "Louvre"}, &Request{Query: "coffee near the Louvre"}, loc)
	assert.Equal(t, "coffee near the Louvre", q.Text)
	assert.Equal(t, "Louvre", q.Landmark)
}

func TestResolveLocale(t *testing.T) {
	tests := []struct {
		name      string
		reqLang   string
		reqRegion string
		detected  string
		language  string
		region    string
	}{
		{"request wins", "fr", "CA", "en", "fr", "CA"},
		{"detected language", "", "", "he", "he", "IL"},
		{"default region", "", "", "", "en", "IL"},
		{"tag region", "pt-BR", "", "", "pt", "BR"},
		{"bad input falls back", "??", "zz9", "", "en", "IL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveLocale(tt.reqLang, tt.reqRegion, tt.detected, "en", "IL")
			assert.Equal(t, tt.language, got.Language)
			assert.Equal(t, tt.region, got.Region)
		})
	}
}
