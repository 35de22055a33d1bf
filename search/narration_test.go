package search

import (
	"context"
	"testing"

	"github.com/ncobase/placesearch/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateNarratorUsesPageItems(t *testing.T) {
	tests := []struct {
		name string
		in   NarrationInput
		want string
	}{
		{"nothing found", NarrationInput{Query: "pizza", Kind: KindResults}, `I couldn't find places matching "pizza". Try widening the search.`},
		{"one match on page", NarrationInput{Kind: KindResults, Total: 1, Results: []ResultItem{{Place: provider.Place{Name: "Alpha"}}}}, "I found one place: Alpha."},
		{"one match past the end", NarrationInput{Kind: KindResults, Total: 1}, "There are no more places on this page. Go back to the first page to see them."},
		{"many past the end", NarrationInput{Kind: KindResults, Total: 5}, "There are no more places on this page. Go back to the first page to see them."},
		{"many", NarrationInput{Kind: KindResults, Total: 5, Results: []ResultItem{{Place: provider.Place{Name: "A"}}, {Place: provider.Place{Name: "B"}}}}, "I found 5 places. Top picks: A, B."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := TemplateNarrator{}.Narrate(context.Background(), tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n.Text)
		})
	}
}
