package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ncobase/placesearch/search"
)

const narratorPrompt = `You are a friendly places assistant. Summarize search results for the user in two sentences at most,
in the language given, and propose up to three short follow-up searches.
Reply with a JSON object: {"text": string, "suggestions": [{"label": string, "query": string}]}.`

// maxNarratedResults caps how many results are sent to the model.
const maxNarratedResults = 5

type narratedPlace struct {
	Name    string  `json:"name"`
	Rating  float64 `json:"rating,omitempty"`
	Address string  `json:"address,omitempty"`
}

// Narrator writes assistant text with the model.
type Narrator struct {
	client *Client
}

// NewNarrator creates a Narrator.
func NewNarrator(client *Client) *Narrator {
	return &Narrator{client: client}
}

// Narrate implements search.Narrator.
func (n *Narrator) Narrate(ctx context.Context, in search.NarrationInput) (search.Narration, error) {
	places := make([]narratedPlace, 0, maxNarratedResults)
	for i := 0; i < len(in.Results) && i < maxNarratedResults; i++ {
		r := in.Results[i]
		places = append(places, narratedPlace{Name: r.Name, Rating: r.Rating, Address: r.Address})
	}
	raw, err := json.Marshal(places)
	if err != nil {
		return search.Narration{}, err
	}
	user := fmt.Sprintf("language: %s\nquery: %s\ntotal results: %d\ntop results: %s", in.Language, in.Query, in.Total, raw)

	var out search.Narration
	if err := n.client.completeJSON(ctx, narratorPrompt, user, &out); err != nil {
		return search.Narration{}, err
	}
	return out, nil
}
