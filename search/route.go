package search

import (
	"regexp"
	"strings"

	"github.com/ncobase/placesearch/geo"
	"github.com/ncobase/placesearch/provider"
)

var (
	nearMePattern   = regexp.MustCompile(`(?i)(\bnear\s+me\b|\bnearby\b|\baround\s+me\b|\bclose\s+to\s+me\b|\bclosest\b|\bnearest\b|\bin\s+my\s+area\b|\baround\s+here\b|cerca\s+de\s+m[ií]|près\s+de\s+moi|in\s+der\s+nähe|рядом|לידי|קרוב\s+אליי|בסביבה|באזור\s+שלי)`)
	landmarkPattern = regexp.MustCompile(`(?i)\b(?:near|next\s+to|close\s+to|by|opposite|across\s+from)\s+(?:the\s+)?([^,.;!?]+)`)
	areaPattern     = regexp.MustCompile(`(?i)\bin\s+[\p{L}]`)
)

// NearMe reports whether q asks for places around the user.
func NearMe(q string) bool {
	return nearMePattern.MatchString(q)
}

// StripNearMe removes the near-me phrase from q.
func StripNearMe(q string) string {
	return strings.Join(strings.Fields(nearMePattern.ReplaceAllString(q, " ")), " ")
}

// Landmark extracts a landmark reference such as "near the Louvre".
func Landmark(q string) string {
	if NearMe(q) {
		return ""
	}
	m := landmarkPattern.FindStringSubmatch(q)
	if len(m) < 2 {
		return ""
	}
	lm := strings.TrimSpace(m[1])
	if lm == "" || strings.EqualFold(lm, "me") {
		return ""
	}
	return lm
}

// RouteInput is what intent routing considers.
type RouteInput struct {
	Query      string
	Location   *geo.Point
	Confidence float64
}

// Route is one of RouteProvider or RouteClarify.
type Route interface {
	route()
}

// RouteProvider selects a provider mode.
type RouteProvider struct {
	Mode     provider.Mode
	Landmark string
	Reason   string
}

// RouteClarify ends the pipeline asking for input.
type RouteClarify struct {
	Question string
	Reason   string
}

func (RouteProvider) route() {}
func (RouteClarify) route()  {}

// proximityConfidence is the classifier confidence above which a query
// with a known location and no explicit area is searched around the user.
const proximityConfidence = 0.8

// RouteIntent chooses the provider mode. A near-me query always goes to
// proximity search when the location is known and asks for it otherwise.
func RouteIntent(in RouteInput) Route {
	if NearMe(in.Query) {
		if in.Location != nil {
			return RouteProvider{Mode: provider.ModeNearby, Reason: "near_me"}
		}
		return RouteClarify{Question: clarifyLocation, Reason: "near_me_without_location"}
	}
	if lm := Landmark(in.Query); lm != "" {
		return RouteProvider{Mode: provider.ModeLandmark, Landmark: lm, Reason: "landmark"}
	}
	if in.Location != nil && in.Confidence >= proximityConfidence && !areaPattern.MatchString(in.Query) {
		return RouteProvider{Mode: provider.ModeNearby, Reason: "location_bias"}
	}
	return RouteProvider{Mode: provider.ModeText, Reason: "text"}
}
