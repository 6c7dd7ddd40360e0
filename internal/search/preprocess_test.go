package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Given: a query mixing free text, an object alias, and a color alias
// Then: structured tokens are extracted and removed from the text query
func TestPreprocess_ExtractsLabelsAndColors(t *testing.T) {
	pp := Preprocess("crimson automobile near the beach")

	assert.Equal(t, []string{"car"}, pp.ObjectLabels)
	assert.Equal(t, []string{"red"}, pp.Colors)
	assert.Equal(t, "near the beach", pp.TextQuery)
}

func TestPreprocess_PlainTextPassesThrough(t *testing.T) {
	pp := Preprocess("happy birthday singing")

	assert.Empty(t, pp.ObjectLabels)
	assert.Empty(t, pp.Colors)
	assert.Equal(t, "happy birthday singing", pp.TextQuery)
}

// Given: repeated structured tokens
// Then: labels and colors are deduplicated
func TestPreprocess_DeduplicatesTokens(t *testing.T) {
	pp := Preprocess("dog dog puppy red scarlet")

	assert.Equal(t, []string{"dog"}, pp.ObjectLabels)
	assert.Equal(t, []string{"red"}, pp.Colors)
	assert.Equal(t, "", pp.TextQuery)
}

func TestPreprocess_StripsPunctuationBeforeLookup(t *testing.T) {
	pp := Preprocess("a dog!")

	assert.Equal(t, []string{"dog"}, pp.ObjectLabels)
	assert.Equal(t, "a", pp.TextQuery)
}
