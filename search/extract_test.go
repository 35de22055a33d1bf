package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractFilters(t *testing.T) {
	f, err := HeuristicExtractor{}.ExtractFilters(context.Background(), ExtractInput{Query: "cheap Italian pizza open now"})
	require.NoError(t, err)
	assert.True(t, f.OpenNow)
	assert.Equal(t, 2, f.MaxPrice)
	assert.Equal(t, []string{"italian", "pizza"}, f.Cuisines)
}

func TestExtractConstraints(t *testing.T) {
	c, err := HeuristicExtractor{}.ExtractConstraints(context.Background(), ExtractInput{Query: "best sushi within 2 km, no chains"})
	require.NoError(t, err)
	require.NotNil(t, c.MinRating)
	assert.InDelta(t, topRatedMin, *c.MinRating, 1e-9)
	require.NotNil(t, c.MaxDistanceKm)
	assert.InDelta(t, 2.0, *c.MaxDistanceKm, 1e-9)
	assert.Equal(t, []string{"chains"}, c.Exclude)
	assert.Equal(t, "sushi", c.CuisineKey)
	assert.Nil(t, c.OpenNow)
}

func TestExtractConstraintsUnits(t *testing.T) {
	ctx := context.Background()
	c, err := HeuristicExtractor{}.ExtractConstraints(ctx, ExtractInput{Query: "bar within 800 m"})
	require.NoError(t, err)
	assert.InDelta(t, 0.8, *c.MaxDistanceKm, 1e-9)

	c, err = HeuristicExtractor{}.ExtractConstraints(ctx, ExtractInput{Query: "bar within 1 mile"})
	require.NoError(t, err)
	assert.InDelta(t, 1.609344, *c.MaxDistanceKm, 1e-9)
}

func TestExtractExcludedCuisine(t *testing.T) {
	f, err := HeuristicExtractor{}.ExtractFilters(context.Background(), ExtractInput{Query: "dinner without pizza"})
	require.NoError(t, err)
	assert.Empty(t, f.Cuisines)
}

func TestExtractorHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := HeuristicExtractor{}.ExtractFilters(ctx, ExtractInput{Query: "pizza"})
	assert.ErrorIs(t, err, context.Canceled)
	_, err = HeuristicExtractor{}.ExtractConstraints(ctx, ExtractInput{Query: "pizza"})
	assert.ErrorIs(t, err, context.Canceled)
}
