// Package provider is the boundary to the external geo-search service.
package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/ncobase/placesearch/geo"
)

// Mode selects the provider search style.
type Mode string

const (
	ModeText     Mode = "text"
	ModeNearby   Mode = "nearby"
	ModeLandmark Mode = "landmark"
)

// Filters are the provider-side restrictions.
type Filters struct {
	OpenNow   bool     `json:"open_now,omitempty" url:"open_now,omitempty"`
	MinPrice  int      `json:"min_price,omitempty" url:"min_price,omitempty"`
	MaxPrice  int      `json:"max_price,omitempty" url:"max_price,omitempty"`
	MinRating float64  `json:"min_rating,omitempty" url:"min_rating,omitempty"`
	Types     []string `json:"types,omitempty" url:"type,omitempty"`
}

// Query is one provider request.
type Query struct {
	Mode         Mode       `json:"mode"`
	Text         string     `json:"text,omitempty"`
	Keyword      string     `json:"keyword,omitempty"`
	Landmark     string     `json:"landmark,omitempty"`
	Location     *geo.Point `json:"location,omitempty"`
	RadiusMeters int        `json:"radius_meters,omitempty"`
	Language     string     `json:"language"`
	Region       string     `json:"region"`
	Filters      Filters    `json:"filters"`
}

// CacheKey identifies q for result caching: mapped query, mode, region and
// language.
func (q Query) CacheKey() string {
	loc := "-"
	if q.Location != nil {
		loc = q.Location.Key(3)
	}
	types := append([]string(nil), q.Filters.Types...)
	return strings.ToLower(fmt.Sprintf("%s|%s|%s|%s|%s|%s|%d|%t|%d|%d|%.1f|%s|%s",
		q.Mode, q.Text, q.Keyword, q.Landmark, loc, q.Region, q.RadiusMeters,
		q.Filters.OpenNow, q.Filters.MinPrice, q.Filters.MaxPrice, q.Filters.MinRating,
		strings.Join(types, ","), q.Language))
}

// Place is one provider record.
type Place struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	Address       string             `json:"address,omitempty"`
	Location      *geo.Point         `json:"location,omitempty"`
	Rating        float64            `json:"rating,omitempty"`
	ReviewCount   int                `json:"review_count,omitempty"`
	PriceLevel    int                `json:"price_level,omitempty"`
	OpenNow       *bool              `json:"open_now,omitempty"`
	Types         []string           `json:"types,omitempty"`
	CuisineScores map[string]float64 `json:"cuisine_scores,omitempty"`
}

// Result is a provider response.
type Result struct {
	Places     []Place    `json:"places"`
	CityCenter *geo.Point `json:"city_center,omitempty"`
}

// Provider fetches places.
type Provider interface {
	Search(ctx context.Context, q Query) (*Result, error)
}

// Func adapts a function to Provider.
type Func func(ctx context.Context, q Query) (*Result, error)

// Search implements Provider.
func (f Func) Search(ctx context.Context, q Query) (*Result, error) {
	return f(ctx, q)
}
