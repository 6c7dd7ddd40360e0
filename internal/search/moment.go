package search

import "sort"

// moment is one candidate (item, ~timestamp) hit carrying optional
// per-source scores, generalizing the notion of a single fused search
// result to something that can be built up incrementally across
// retrieval paths before scoring.
type moment struct {
	itemID      string
	timestampMs int

	hasTranscript   bool
	transcriptScore float64
	snippet         string

	hasVisual   bool
	visualScore float64

	hasObject bool
	hasColor  bool
	hasPerson bool

	matchedLabels  []string
	matchedPersons []string

	score float64
}

func (m *moment) sources() []string {
	var out []string
	if m.hasTranscript {
		out = append(out, "transcript")
	}
	if m.hasVisual {
		out = append(out, "visual")
	}
	if m.hasObject {
		out = append(out, "object")
	}
	if m.hasPerson {
		out = append(out, "person")
	}
	if m.hasColor {
		out = append(out, "color")
	}
	return out
}

// rawHit is one ungrouped (item, timestamp, score) sample from a
// single retrieval path, before moment grouping.
type rawHit struct {
	itemID      string
	timestampMs int
	score       float64
	snippet     string
}

// groupHits clusters hits within windowMs of each other per item,
// taking the highest-scoring hit's timestamp as the moment's
// representative and its score as the moment's raw score. The snippet
// is not carried over.
func groupHits(hits []rawHit, windowMs int) []moment {
	byItem := make(map[string][]rawHit)
	for _, h := range hits {
		byItem[h.itemID] = append(byItem[h.itemID], h)
	}

	var out []moment
	for itemID, itemHits := range byItem {
		sort.Slice(itemHits, func(i, j int) bool { return itemHits[i].timestampMs < itemHits[j].timestampMs })

		var group []rawHit
		flush := func() {
			if len(group) == 0 {
				return
			}
			best := group[0]
			for _, h := range group[1:] {
				if h.score > best.score {
					best = h
				}
			}
			out = append(out, moment{itemID: itemID, timestampMs: best.timestampMs, score: best.score})
		}

		for _, h := range itemHits {
			if len(group) > 0 && h.timestampMs-group[len(group)-1].timestampMs > windowMs {
				flush()
				group = nil
			}
			group = append(group, h)
		}
		flush()
	}
	return out
}

// normalizeScores min-max normalizes raw scores across hits to [0,1],
// in place. A single-hit or zero-spread set normalizes to 1.0 for
// every hit, since there is no useful spread to scale by.
func normalizeScores(hits []rawHit) {
	if len(hits) == 0 {
		return
	}
	min, max := hits[0].score, hits[0].score
	for _, h := range hits[1:] {
		if h.score < min {
			min = h.score
		}
		if h.score > max {
			max = h.score
		}
	}
	spread := max - min
	for i := range hits {
		if spread <= 0 {
			hits[i].score = 1.0
			continue
		}
		hits[i].score = (hits[i].score - min) / spread
	}
}

// mergeMoments combines transcript and visual moments for the same
// item whose timestamps fall within windowMs of each other into one
// fused moment that carries each side's score and presence flag;
// weighting and summing are left to the caller.
func mergeMoments(transcript, visual []moment) []moment {
	const windowMs = VisualMomentWindowMs

	var out []*moment
	byItem := make(map[string][]*moment)

	addOrMerge := func(m moment) {
		for _, existing := range byItem[m.itemID] {
			delta := m.timestampMs - existing.timestampMs
			if delta < 0 {
				delta = -delta
			}
			if delta <= windowMs {
				if m.hasTranscript {
					existing.hasTranscript = true
					existing.transcriptScore = m.transcriptScore
					existing.snippet = m.snippet
				}
				if m.hasVisual {
					existing.hasVisual = true
					existing.visualScore = m.visualScore
				}
				return
			}
		}
		cp := m
		out = append(out, &cp)
		byItem[m.itemID] = append(byItem[m.itemID], &cp)
	}

	for _, m := range transcript {
		m.hasTranscript = true
		m.transcriptScore = m.score
		addOrMerge(m)
	}
	for _, m := range visual {
		m.hasVisual = true
		m.visualScore = m.score
		addOrMerge(m)
	}

	final := make([]moment, len(out))
	for i, m := range out {
		final[i] = *m
	}
	return final
}

func sortMomentsDesc(ms []moment) {
	sort.Slice(ms, func(i, j int) bool { return ms[i].score > ms[j].score })
}
