package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/ncobase/placesearch/realtime"
)

// NarrationInput is what a narrator sees of a finished run.
type NarrationInput struct {
	Query    string
	Language string
	Kind     Kind
	Message  string
	Results  []ResultItem
	Total    int
}

// Narration is the assistant text plus follow-up suggestions.
type Narration struct {
	Text        string                     `json:"text"`
	Suggestions []realtime.SuggestedAction `json:"suggestions,omitempty"`
}

// Narrator produces the assistant text for a run. It is only ever invoked
// off the response path.
type Narrator interface {
	Narrate(ctx context.Context, in NarrationInput) (Narration, error)
}

// NarrationRecord is the cached narration replayed to late subscribers.
type NarrationRecord struct {
	Text        string                     `json:"text"`
	Language    string                     `json:"language,omitempty"`
	Deferred    bool                       `json:"deferred,omitempty"`
	Suggestions []realtime.SuggestedAction `json:"suggestions,omitempty"`
}

// TemplateNarrator narrates from fixed templates. It is the fallback when
// no model is configured or the model fails.
type TemplateNarrator struct{}

// Narrate implements Narrator.
func (TemplateNarrator) Narrate(_ context.Context, in NarrationInput) (Narration, error) {
	if in.Kind == KindStop || in.Kind == KindClarify {
		return Narration{Text: in.Message}, nil
	}
	n := Narration{Suggestions: suggest(in)}
	// Results holds the current page only; Total counts every match.
	switch {
	case in.Total == 0:
		n.Text = fmt.Sprintf("I couldn't find places matching %q. Try widening the search.", in.Query)
	case len(in.Results) == 0:
		n.Text = "There are no more places on this page. Go back to the first page to see them."
	case in.Total == 1:
		n.Text = fmt.Sprintf("I found one place: %s.", in.Results[0].Name)
	default:
		names := make([]string, 0, 3)
		for i := 0; i < len(in.Results) && i < 3; i++ {
			names = append(names, in.Results[i].Name)
		}
		n.Text = fmt.Sprintf("I found %d places. Top picks: %s.", in.Total, strings.Join(names, ", "))
	}
	return n, nil
}

func suggest(in NarrationInput) []realtime.SuggestedAction {
	q := strings.TrimSpace(in.Query)
	lower := strings.ToLower(q)
	var out []realtime.SuggestedAction
	if !openNowPattern.MatchString(lower) {
		out = append(out, realtime.SuggestedAction{Label: "Open now", Query: q + " open now"})
	}
	if !topRatedPattern.MatchString(lower) {
		out = append(out, realtime.SuggestedAction{Label: "Top rated", Query: "best " + q})
	}
	if in.Total == 0 && NearMe(q) {
		out = append(out, realtime.SuggestedAction{Label: "Search the whole city", Query: StripNearMe(q)})
	}
	return out
}
