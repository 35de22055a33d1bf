package llm

import (
	"context"
	"fmt"

	"github.com/ncobase/placesearch/search"
)

const filtersPrompt = `Extract search filters from a places query.
Reply with a JSON object: {"open_now": bool, "cuisines": [string], "min_rating": number, "max_price": 0-4, "max_distance_km": number}.
Use 0, false or [] for anything the query does not state. Cuisines are lowercase English words.`

const constraintsPrompt = `Extract result constraints from a places query.
Reply with a JSON object whose fields are all optional: {"open_now": bool, "min_rating": number, "max_price": 0-4, "max_distance_km": number, "cuisine_key": string, "exclude": [string]}.
Omit fields the query does not state. "exclude" lists things the user does not want.`

// Extractor derives filters and constraints with the model.
type Extractor struct {
	client *Client
}

// NewExtractor creates an Extractor.
func NewExtractor(client *Client) *Extractor {
	return &Extractor{client: client}
}

func extractMessage(in search.ExtractInput) string {
	return fmt.Sprintf("query: %s\nlanguage: %s", in.Query, in.Language)
}

// ExtractFilters implements search.FilterExtractor.
func (e *Extractor) ExtractFilters(ctx context.Context, in search.ExtractInput) (search.Filters, error) {
	var f search.Filters
	if err := e.client.completeJSON(ctx, filtersPrompt, extractMessage(in), &f); err != nil {
		return search.Filters{}, err
	}
	return f, nil
}

// ExtractConstraints implements search.ConstraintExtractor.
func (e *Extractor) ExtractConstraints(ctx context.Context, in search.ExtractInput) (search.Constraints, error) {
	var c search.Constraints
	if err := e.client.completeJSON(ctx, constraintsPrompt, extractMessage(in), &c); err != nil {
		return search.Constraints{}, err
	}
	return c, nil
}
