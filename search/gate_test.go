package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeuristicGate(t *testing.T) {
	ctx := context.Background()
	g := HeuristicGate{}

	tests := []struct {
		query string
		want  any
	}{
		{"", GateClarify{}},
		{"   ", GateClarify{}},
		{"x", GateClarify{}},
		{"hello!", GateStop{}},
		{"Thanks", GateStop{}},
		{"pizza near me", GateContinue{}},
		{"quiet bookshop", GateContinue{}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			out, err := g.Classify(ctx, GateInput{Query: tt.query, Language: "en"})
			require.NoError(t, err)
			assert.IsType(t, tt.want, out)
		})
	}
}

func TestHeuristicGateConfidence(t *testing.T) {
	ctx := context.Background()
	g := HeuristicGate{}

	out, err := g.Classify(ctx, GateInput{Query: "sushi near me", Language: "en"})
	require.NoError(t, err)
	assert.InDelta(t, 0.9, out.(GateContinue).Confidence, 1e-9)

	out, err = g.Classify(ctx, GateInput{Query: "late night ramen", Language: "en"})
	require.NoError(t, err)
	assert.InDelta(t, 0.85, out.(GateContinue).Confidence, 1e-9)

	out, err = g.Classify(ctx, GateInput{Query: "something quiet", Language: "en"})
	require.NoError(t, err)
	assert.InDelta(t, 0.55, out.(GateContinue).Confidence, 1e-9)
}

func TestDetectLanguage(t *testing.T) {
	assert.Equal(t, "en", DetectLanguage("I am looking for a quiet restaurant with a garden for dinner tonight", "fr"))
	assert.Equal(t, "he", DetectLanguage("אני מחפש מסעדה איטלקית טובה בתל אביב", "en"))
	assert.Equal(t, "fr", DetectLanguage("", "fr"))
}
