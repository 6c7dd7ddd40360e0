package colors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_PrimaryHues(t *testing.T) {
	assert.Equal(t, Red, Classify(210, 30, 30))
	assert.Equal(t, Green, Classify(50, 170, 60))
	assert.Equal(t, Blue, Classify(40, 80, 210))
}

// Given: low-saturation samples
// Then: they land in the achromatic buckets, not a hue
func TestClassify_Achromatic(t *testing.T) {
	assert.Equal(t, Black, Classify(10, 10, 10))
	assert.Equal(t, White, Classify(245, 245, 245))
	assert.Equal(t, Gray, Classify(128, 128, 128))
}

func TestLookup_ResolvesAliases(t *testing.T) {
	c, ok := Lookup("crimson")
	assert.True(t, ok)
	assert.Equal(t, Red, c)

	c, ok = Lookup("  NAVY ")
	assert.True(t, ok)
	assert.Equal(t, Blue, c)

	_, ok = Lookup("plaid")
	assert.False(t, ok)
}

func TestAll_CoversElevenCategories(t *testing.T) {
	assert.Len(t, All, 11)
}
