package pipeline

import (
	"image"
	_ "image/jpeg"
	"os"

	"github.com/mediaengine/engine/internal/colors"
)

// dominantColors decodes a sampled frame's JPEG and buckets a coarse
// grid of its pixels into colors.Category, returning up to 3 distinct
// categories ordered by how much of the grid they covered. A true
// k-means dominant-color pass is unnecessary at this resolution; a
// fixed sampling grid followed by internal/colors's nearest-centroid
// classification is the small-k clustering the stage needs.
func dominantColors(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	const gridSize = 8
	counts := make(map[colors.Category]int, len(colors.All))

	stepX := bounds.Dx() / gridSize
	stepY := bounds.Dy() / gridSize
	if stepX == 0 {
		stepX = 1
	}
	if stepY == 0 {
		stepY = 1
	}

	for y := bounds.Min.Y; y < bounds.Max.Y; y += stepY {
		for x := bounds.Min.X; x < bounds.Max.X; x += stepX {
			r, g, b, _ := img.At(x, y).RGBA()
			cat := colors.Classify(uint8(r>>8), uint8(g>>8), uint8(b>>8))
			counts[cat]++
		}
	}

	type countedCategory struct {
		cat   colors.Category
		count int
	}
	var ranked []countedCategory
	for cat, n := range counts {
		ranked = append(ranked, countedCategory{cat, n})
	}
	for i := 0; i < len(ranked); i++ {
		for j := i + 1; j < len(ranked); j++ {
			if ranked[j].count > ranked[i].count {
				ranked[i], ranked[j] = ranked[j], ranked[i]
			}
		}
	}

	limit := 3
	if len(ranked) < limit {
		limit = len(ranked)
	}
	out := make([]string, 0, limit)
	for i := 0; i < limit; i++ {
		out = append(out, string(ranked[i].cat))
	}
	return out, nil
}
