package search

import (
	"strings"

	"github.com/ncobase/placesearch/geo"
	"github.com/ncobase/placesearch/provider"
)

// MergeFilters combines caller-supplied filters with extracted ones.
// Caller values win; cuisine lists are unioned.
func MergeFilters(user *Filters, extracted Filters) Filters {
	if user == nil {
		return extracted
	}
	out := *user
	out.OpenNow = user.OpenNow || extracted.OpenNow
	if out.MinRating == 0 {
		out.MinRating = extracted.MinRating
	}
	if out.MaxPrice == 0 {
		out.MaxPrice = extracted.MaxPrice
	}
	if out.MaxDistanceKm == 0 {
		out.MaxDistanceKm = extracted.MaxDistanceKm
	}
	out.Cuisines = union(user.Cuisines, extracted.Cuisines)
	return out
}

// ProviderFilters maps f onto the provider-side restrictions.
func (f Filters) ProviderFilters() provider.Filters {
	return provider.Filters{
		OpenNow:   f.OpenNow,
		MaxPrice:  f.MaxPrice,
		MinRating: f.MinRating,
		Types:     append([]string(nil), f.Cuisines...),
	}
}

// Effective are the restrictions post-filtering applies.
type Effective struct {
	OpenNow       bool
	MinRating     float64
	MaxPrice      int
	MaxDistanceKm float64
	CuisineKey    string
	Exclude       []string
}

// Resolve merges constraints onto filters. A set constraint overrides the
// corresponding filter, even when it loosens it.
func Resolve(f Filters, c Constraints) Effective {
	e := Effective{
		OpenNow:       f.OpenNow,
		MinRating:     f.MinRating,
		MaxPrice:      f.MaxPrice,
		MaxDistanceKm: f.MaxDistanceKm,
		CuisineKey:    c.CuisineKey,
		Exclude:       c.Exclude,
	}
	if c.OpenNow != nil {
		e.OpenNow = *c.OpenNow
	}
	if c.MinRating != nil {
		e.MinRating = *c.MinRating
	}
	if c.MaxPrice != nil {
		e.MaxPrice = *c.MaxPrice
	}
	if c.MaxDistanceKm != nil {
		e.MaxDistanceKm = *c.MaxDistanceKm
	}
	if e.CuisineKey == "" && len(f.Cuisines) > 0 {
		e.CuisineKey = f.Cuisines[0]
	}
	return e
}

// PostFilter drops places violating e, keeping provider order. Unknown
// values (no opening hours, no price, no coordinates) are kept.
func PostFilter(places []provider.Place, e Effective, origin *geo.Point) []provider.Place {
	out := make([]provider.Place, 0, len(places))
	for _, p := range places {
		if e.OpenNow && p.OpenNow != nil && !*p.OpenNow {
			continue
		}
		if e.MinRating > 0 && p.Rating > 0 && p.Rating < e.MinRating {
			continue
		}
		if e.MaxPrice > 0 && p.PriceLevel > e.MaxPrice {
			continue
		}
		if e.MaxDistanceKm > 0 && origin != nil && p.Location != nil &&
			geo.DistanceKm(*origin, *p.Location) > e.MaxDistanceKm {
			continue
		}
		if matchesAny(p, e.Exclude) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func matchesAny(p provider.Place, terms []string) bool {
	if len(terms) == 0 {
		return false
	}
	name := strings.ToLower(p.Name)
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if strings.Contains(name, t) {
			return true
		}
		for _, typ := range p.Types {
			if strings.EqualFold(typ, t) {
				return true
			}
		}
	}
	return false
}

func union(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	var out []string
	for _, s := range append(append([]string(nil), a...), b...) {
		k := strings.ToLower(strings.TrimSpace(s))
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
