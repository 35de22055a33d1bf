package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/ncobase/placesearch/search"
)

const gatePrompt = `You classify messages sent to a places search assistant.
Reply with a JSON object: {"decision": "continue"|"stop"|"clarify", "confidence": 0..1, "language": "<ISO 639-1>", "message": "<reply for stop or question for clarify>"}.
"continue" means the message is a search for places. "stop" means it is not a place search (small talk, off-topic).
"clarify" means it is a place search that cannot be run without more input.
Write "message" in the user's language.`

type gateReply struct {
	Decision   string  `json:"decision"`
	Confidence float64 `json:"confidence"`
	Language   string  `json:"language"`
	Message    string  `json:"message"`
}

// Gate classifies queries with the model.
type Gate struct {
	client *Client
}

// NewGate creates a Gate.
func NewGate(client *Client) *Gate {
	return &Gate{client: client}
}

// Classify implements search.Gate.
func (g *Gate) Classify(ctx context.Context, in search.GateInput) (search.GateOutcome, error) {
	user := fmt.Sprintf("message: %s\nlanguage hint: %s\nuser location known: %t", in.Query, in.Language, in.HasLocation)

	var r gateReply
	if err := g.client.completeJSON(ctx, gatePrompt, user, &r); err != nil {
		return nil, err
	}

	lang := strings.ToLower(strings.TrimSpace(r.Language))
	if lang == "" {
		lang = in.Language
	}
	switch strings.ToLower(r.Decision) {
	case "continue":
		return search.GateContinue{Confidence: clamp01(r.Confidence), Language: lang}, nil
	case "stop":
		return search.GateStop{Reason: "classifier", Message: r.Message, Language: lang}, nil
	case "clarify":
		return search.GateClarify{Question: r.Message, Language: lang}, nil
	default:
		return nil, fmt.Errorf("%w: unknown decision %q", ErrInvalidResponse, r.Decision)
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
