package search

import (
	"math"
	"strings"

	"github.com/ncobase/placesearch/provider"
)

const defaultRadiusMeters = 1500

// BuildQuery maps a routed request onto a provider query.
func BuildQuery(route RouteProvider, req *Request, loc Locale) provider.Query {
	q := provider.Query{
		Mode:     route.Mode,
		Language: loc.Language,
		Region:   loc.Region,
		Location: req.Location,
	}
	text := strings.Join(strings.Fields(req.Query), " ")

	switch route.Mode {
	case provider.ModeNearby:
		q.Keyword = StripNearMe(text)
		q.RadiusMeters = defaultRadiusMeters
		if req.Filters != nil && req.Filters.MaxDistanceKm > 0 {
			q.RadiusMeters = int(math.Ceil(req.Filters.MaxDistanceKm * 1000))
		}
	case provider.ModeLandmark:
		q.Text = text
		q.Landmark = route.Landmark
	default:
		q.Text = text
	}
	return q
}
