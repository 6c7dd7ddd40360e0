package search

import (
	"github.com/mediaengine/engine/internal/colors"
	"github.com/mediaengine/engine/internal/labels"
)

func labelLookup(token string) (string, bool) {
	return labels.Lookup(token)
}

func colorLookup(token string) (string, bool) {
	cat, ok := colors.Lookup(token)
	if !ok {
		return "", false
	}
	return string(cat), true
}
