package search

import "strings"

// Preprocessed is a query broken into its recognized structured
// tokens and whatever free text remains after removing them.
type Preprocessed struct {
	TextQuery    string
	ObjectLabels []string
	Colors       []string
}

// Preprocess extracts recognized object-label and color tokens from
// raw text, removing matched tokens to form the residual text query
// used for transcript/visual retrieval.
func Preprocess(raw string) Preprocessed {
	fields := strings.Fields(raw)
	var kept []string
	var labels []string
	var colorCats []string

	for _, f := range fields {
		token := strings.Trim(f, ".,!?;:\"'()")
		if label, ok := labelLookup(token); ok {
			labels = append(labels, label)
			continue
		}
		if color, ok := colorLookup(token); ok {
			colorCats = append(colorCats, color)
			continue
		}
		kept = append(kept, f)
	}

	return Preprocessed{
		TextQuery:    strings.TrimSpace(strings.Join(kept, " ")),
		ObjectLabels: dedupe(labels),
		Colors:       dedupe(colorCats),
	}
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
