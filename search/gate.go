package search

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/abadojack/whatlanggo"
)

// GateInput is what the gate classifies.
type GateInput struct {
	Query       string
	Language    string
	HasLocation bool
}

// GateOutcome is one of GateContinue, GateStop or GateClarify.
type GateOutcome interface {
	gateOutcome()
}

// GateContinue lets the pipeline proceed.
type GateContinue struct {
	Confidence float64
	Language   string
}

// GateStop ends the pipeline without searching.
type GateStop struct {
	Reason   string
	Message  string
	Language string
}

// GateClarify ends the pipeline asking the user for more input.
type GateClarify struct {
	Question string
	Language string
}

func (GateContinue) gateOutcome() {}
func (GateStop) gateOutcome()     {}
func (GateClarify) gateOutcome()  {}

// Gate decides whether a query is a place search.
type Gate interface {
	Classify(ctx context.Context, in GateInput) (GateOutcome, error)
}

var (
	greetingPattern = regexp.MustCompile(`(?i)^\s*(hi|hello|hey|thanks|thank you|shalom|hola|bonjour|שלום|תודה)[\s!.?]*$`)
	placeWords      = regexp.MustCompile(`(?i)\b(restaurant|cafe|coffee|bar|pub|pizza|sushi|burger|food|eat|dinner|lunch|breakfast|brunch|bakery|hotel|museum|park|shop|store|pharmacy|gym|hummus|falafel|ramen|tacos|vegan|near|nearby|open|place|places|spot)\b`)
)

// HeuristicGate classifies without a language model.
type HeuristicGate struct{}

// Classify implements Gate.
func (HeuristicGate) Classify(_ context.Context, in GateInput) (GateOutcome, error) {
	q := strings.TrimSpace(in.Query)
	lang := in.Language
	if lang == "" {
		lang = DetectLanguage(q, "")
	}

	switch {
	case q == "":
		return GateClarify{Question: clarifyEmptyQuery, Language: lang}, nil
	case greetingPattern.MatchString(q):
		return GateStop{Reason: "greeting", Message: stopGreeting, Language: lang}, nil
	case utf8.RuneCountInString(q) < 2:
		return GateClarify{Question: clarifyTooShort, Language: lang}, nil
	}

	confidence := 0.55
	if placeWords.MatchString(q) {
		confidence = 0.85
	}
	if NearMe(q) {
		confidence = 0.9
	}
	return GateContinue{Confidence: confidence, Language: lang}, nil
}

// DetectLanguage returns the ISO 639-1 code of text, or fallback when
// detection is not reliable.
func DetectLanguage(text, fallback string) string {
	info := whatlanggo.Detect(text)
	if info.Confidence < minLanguageConfidence {
		return fallback
	}
	if code := info.Lang.Iso6391(); code != "" {
		return code
	}
	return fallback
}

const minLanguageConfidence = 0.5

const (
	clarifyEmptyQuery = "What kind of place are you looking for?"
	clarifyTooShort   = "Could you tell me a bit more about what you're looking for?"
	clarifyLocation   = "Where should I search? Share your location or mention a city or neighborhood."
	stopGreeting      = "Hi! Tell me what kind of place you're looking for and where."
)
