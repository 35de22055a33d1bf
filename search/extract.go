package search

import (
	"context"
	"regexp"
	"strconv"
	"strings"
)

// ExtractInput is the input of both extractors.
type ExtractInput struct {
	Query    string
	Language string
	Filters  *Filters
}

// FilterExtractor derives pre-provider filters from the query.
type FilterExtractor interface {
	ExtractFilters(ctx context.Context, in ExtractInput) (Filters, error)
}

// ConstraintExtractor derives post-provider constraints from the query.
type ConstraintExtractor interface {
	ExtractConstraints(ctx context.Context, in ExtractInput) (Constraints, error)
}

var (
	openNowPattern  = regexp.MustCompile(`(?i)\b(open\s+now|open\s+right\s+now|currently\s+open|still\s+open)\b|פתוח\s+עכשיו`)
	cheapPattern    = regexp.MustCompile(`(?i)\b(cheap|inexpensive|budget|affordable)\b|זול`)
	topRatedPattern = regexp.MustCompile(`(?i)\b(best|top[\s-]rated|highly\s+rated|great|excellent)\b|הכי\s+טוב`)
	withinPattern   = regexp.MustCompile(`(?i)\bwithin\s+(\d+(?:\.\d+)?)\s*(km|kilometers?|m|meters?|mi|miles?)\b`)
	excludePattern  = regexp.MustCompile(`(?i)\b(?:not|no|without|except)\s+([\p{L}]+)`)
)

type cuisineTerm struct {
	key     string
	pattern *regexp.Regexp
}

var cuisineLexicon = func() []cuisineTerm {
	keys := []string{
		"italian", "pizza", "sushi", "japanese", "chinese", "thai", "indian", "mexican",
		"vegan", "vegetarian", "burger", "hummus", "falafel", "ramen", "french",
		"mediterranean", "seafood", "steak", "coffee", "bakery", "korean", "vietnamese",
	}
	out := make([]cuisineTerm, len(keys))
	for i, k := range keys {
		out[i] = cuisineTerm{key: k, pattern: regexp.MustCompile(`\b` + k + `s?\b`)}
	}
	return out
}()

const topRatedMin = 4.2

// HeuristicExtractor implements both extractors with lexical rules.
type HeuristicExtractor struct{}

// ExtractFilters implements FilterExtractor.
func (HeuristicExtractor) ExtractFilters(ctx context.Context, in ExtractInput) (Filters, error) {
	if err := ctx.Err(); err != nil {
		return Filters{}, err
	}
	var f Filters
	q := strings.ToLower(in.Query)
	f.OpenNow = openNowPattern.MatchString(q)
	if cheapPattern.MatchString(q) {
		f.MaxPrice = 2
	}
	f.Cuisines = cuisines(q)
	return f, nil
}

// ExtractConstraints implements ConstraintExtractor.
func (HeuristicExtractor) ExtractConstraints(ctx context.Context, in ExtractInput) (Constraints, error) {
	if err := ctx.Err(); err != nil {
		return Constraints{}, err
	}
	var c Constraints
	q := strings.ToLower(in.Query)

	if openNowPattern.MatchString(q) {
		open := true
		c.OpenNow = &open
	}
	if topRatedPattern.MatchString(q) {
		minRating := topRatedMin
		c.MinRating = &minRating
	}
	if m := withinPattern.FindStringSubmatch(q); len(m) == 3 {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			km := toKm(v, m[2])
			c.MaxDistanceKm = &km
		}
	}
	for _, m := range excludePattern.FindAllStringSubmatch(q, -1) {
		c.Exclude = append(c.Exclude, m[1])
	}
	if found := cuisines(q); len(found) > 0 {
		c.CuisineKey = found[0]
	}
	return c, nil
}

func cuisines(q string) []string {
	var out []string
	for _, c := range cuisineLexicon {
		if c.pattern.MatchString(q) && !excluded(q, c.key) {
			out = append(out, c.key)
		}
	}
	return out
}

func excluded(q, term string) bool {
	for _, m := range excludePattern.FindAllStringSubmatch(q, -1) {
		if m[1] == term {
			return true
		}
	}
	return false
}

func toKm(v float64, unit string) float64 {
	switch {
	case strings.HasPrefix(unit, "mi"):
		return v * 1.609344
	case unit == "m" || strings.HasPrefix(unit, "meter"):
		return v / 1000
	default:
		return v
	}
}
