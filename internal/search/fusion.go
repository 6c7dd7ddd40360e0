package search

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mediaengine/engine/internal/store"
)

// candidateItems lists items eligible for a query: everything done
// indexing in the requested library (or every library, if
// unrestricted).
func (s *Searcher) candidateItems(ctx context.Context, libraryID string) ([]*store.Item, error) {
	var out []*store.Item
	cursor := ""
	for {
		items, next, err := s.st.ListItems(ctx, store.ItemFilter{LibraryID: libraryID, Status: store.StatusDone}, false, store.Pagination{Cursor: cursor, Limit: 500})
		if err != nil {
			return nil, fmt.Errorf("list candidate items: %w", err)
		}
		out = append(out, items...)
		if next == "" || len(items) == 0 {
			break
		}
		cursor = next
	}
	return out, nil
}

// filterByLibrary drops moments whose item does not belong to
// libraryID, used when the transcript or fused path (which query
// across every item) needs narrowing to one library.
func (s *Searcher) filterByLibrary(ctx context.Context, moments []moment, libraryID string) ([]moment, error) {
	if len(moments) == 0 {
		return moments, nil
	}
	member := make(map[string]bool)
	var out []moment
	for _, m := range moments {
		in, ok := member[m.itemID]
		if !ok {
			item, err := s.st.GetItem(ctx, m.itemID)
			if err != nil {
				continue
			}
			in = item.LibraryID == libraryID
			member[m.itemID] = in
		}
		if in {
			out = append(out, m)
		}
	}
	return out, nil
}

// transcriptPath runs a bleve BM25 match over transcript segments,
// grouped into moments and min-max normalized.
func (s *Searcher) transcriptPath(ctx context.Context, q Query, pp Preprocessed) ([]moment, error) {
	if s.fts == nil || pp.TextQuery == "" {
		return nil, nil
	}
	hits, err := s.fts.Search(ctx, pp.TextQuery, "", 200)
	if err != nil {
		return nil, fmt.Errorf("transcript search: %w", err)
	}

	raw := make([]rawHit, 0, len(hits))
	for _, h := range hits {
		raw = append(raw, rawHit{itemID: h.ItemID, timestampMs: h.StartMs, score: h.Score})
	}
	normalizeScores(raw)

	moments := groupHits(raw, TranscriptMomentWindowMs)
	for i := range moments {
		moments[i].hasTranscript = true
		moments[i].transcriptScore = moments[i].score
	}
	return s.attachSnippets(ctx, moments)
}

// visualPath encodes the text query and searches every candidate
// item's shard, merging top-k frame hits across items.
func (s *Searcher) visualPath(ctx context.Context, q Query, pp Preprocessed) ([]moment, error) {
	if s.shards == nil || s.models == nil {
		return nil, nil
	}
	text := pp.TextQuery
	if text == "" {
		return nil, nil
	}

	embedder, err := s.models.GetTextEmbedder(ctx)
	if err != nil || embedder == nil {
		return nil, nil
	}
	vec, err := embedder.EmbedText(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query text: %w", err)
	}

	items, err := s.candidateItems(ctx, q.LibraryID)
	if err != nil {
		return nil, err
	}

	// One shard per item means one independent graph query per item;
	// fan them out the way multi-query search fans out sub-queries,
	// bounded so a big library doesn't open every shard at once.
	var mu sync.Mutex
	var raw []rawHit
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, item := range items {
		item := item
		g.Go(func() error {
			results, err := s.shards.Search(gctx, item.ID, vec, 20)
			if err != nil {
				s.logger().Warn("visual shard search failed", "item_id", item.ID, "error", err.Error())
				return nil
			}
			var hits []rawHit
			for _, r := range results {
				if float64(r.Score) < VisualSimilarityThreshold {
					continue
				}
				_, ts, ok := s.resolveFrameKey(gctx, item.ID, r.ID)
				if !ok {
					continue
				}
				hits = append(hits, rawHit{itemID: item.ID, timestampMs: ts, score: float64(r.Score)})
			}
			mu.Lock()
			raw = append(raw, hits...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	normalizeScores(raw)

	moments := groupHits(raw, VisualMomentWindowMs)
	for i := range moments {
		moments[i].hasVisual = true
		moments[i].visualScore = moments[i].score
	}
	return moments, nil
}

// resolveFrameKey turns a shard result ID (e.g. "frame:<id>") back
// into a frame and its timestamp.
func (s *Searcher) resolveFrameKey(ctx context.Context, itemID, shardKey string) (frameID string, timestampMs int, ok bool) {
	id := shardKey
	if len(id) > 6 && id[:6] == "frame:" {
		id = id[6:]
	}
	frame, err := s.st.GetFrame(ctx, id)
	if err != nil {
		return "", 0, false
	}
	return frame.ID, frame.TimestampMs, true
}

// fusedPath runs both retrieval paths and combines them into
// weighted-sum moments with detector and color boosts.
func (s *Searcher) fusedPath(ctx context.Context, q Query, pp Preprocessed) ([]moment, error) {
	transcript, err := s.transcriptPath(ctx, q, pp)
	if err != nil {
		return nil, err
	}
	visual, err := s.visualPath(ctx, q, pp)
	if err != nil {
		return nil, err
	}

	if pp.TextQuery == "" && len(pp.ObjectLabels) > 0 {
		return s.labelOnlyPath(ctx, q, pp)
	}

	merged := mergeMoments(transcript, visual)
	for i := range merged {
		m := &merged[i]
		switch {
		case m.hasTranscript && m.hasVisual:
			m.score = 0.5*m.transcriptScore + 0.5*m.visualScore
		case m.hasTranscript:
			m.score = m.transcriptScore
		case m.hasVisual:
			m.score = m.visualScore
		}

		boost, labels, err := s.detectorBoost(ctx, m.itemID, m.timestampMs, pp.ObjectLabels)
		if err != nil {
			return nil, err
		}
		m.score += boost
		if boost > 0 {
			m.hasObject = true
			m.matchedLabels = labels
		}

		if len(pp.Colors) > 0 {
			hasColor, err := s.colorBoost(ctx, m.itemID, m.timestampMs, pp.Colors)
			if err != nil {
				return nil, err
			}
			if hasColor {
				m.hasColor = true
				m.score += 0.05
			}
		}
	}
	merged, err = s.attachSnippets(ctx, merged)
	if err != nil {
		return nil, err
	}
	return merged, nil
}

// labelOnlyPath returns a moment at every matching detection, ranked
// by detection confidence, when the query carries only object labels.
func (s *Searcher) labelOnlyPath(ctx context.Context, q Query, pp Preprocessed) ([]moment, error) {
	wanted := make(map[string]bool, len(pp.ObjectLabels))
	for _, l := range pp.ObjectLabels {
		wanted[l] = true
	}

	items, err := s.candidateItems(ctx, q.LibraryID)
	if err != nil {
		return nil, err
	}

	var out []moment
	for _, item := range items {
		dets, err := s.st.ListDetections(ctx, item.ID)
		if err != nil {
			return nil, fmt.Errorf("list detections for %s: %w", item.ID, err)
		}
		for _, d := range dets {
			if !wanted[d.Label] {
				continue
			}
			out = append(out, moment{
				itemID:        item.ID,
				timestampMs:   d.TimestampMs,
				score:         d.Confidence,
				hasObject:     true,
				matchedLabels: []string{d.Label},
			})
		}
	}
	return out, nil
}

// detectorBoost returns min(0.15, 0.05 * matching labels detected
// within ±1s of timestampMs), and the labels that matched.
func (s *Searcher) detectorBoost(ctx context.Context, itemID string, timestampMs int, wantedLabels []string) (float64, []string, error) {
	if len(wantedLabels) == 0 {
		return 0, nil, nil
	}
	wanted := make(map[string]bool, len(wantedLabels))
	for _, l := range wantedLabels {
		wanted[l] = true
	}

	dets, err := s.st.ListDetections(ctx, itemID)
	if err != nil {
		return 0, nil, fmt.Errorf("list detections: %w", err)
	}

	var matched []string
	seen := make(map[string]bool)
	for _, d := range dets {
		if !wanted[d.Label] {
			continue
		}
		if abs(d.TimestampMs-timestampMs) > 1000 {
			continue
		}
		if seen[d.Label] {
			continue
		}
		seen[d.Label] = true
		matched = append(matched, d.Label)
	}
	boost := 0.05 * float64(len(matched))
	if boost > 0.15 {
		boost = 0.15
	}
	return boost, matched, nil
}

// colorBoost reports whether any requested color appears among the
// dominant colors of the frame nearest timestampMs.
func (s *Searcher) colorBoost(ctx context.Context, itemID string, timestampMs int, wantedColors []string) (bool, error) {
	frames, err := s.st.ListFrames(ctx, itemID)
	if err != nil {
		return false, fmt.Errorf("list frames: %w", err)
	}
	wanted := make(map[string]bool, len(wantedColors))
	for _, c := range wantedColors {
		wanted[c] = true
	}

	var nearest *store.Frame
	bestDist := -1
	for i := range frames {
		f := &frames[i]
		d := abs(f.TimestampMs - timestampMs)
		if bestDist < 0 || d < bestDist {
			bestDist = d
			nearest = f
		}
	}
	if nearest == nil {
		return false, nil
	}
	for _, c := range nearest.Colors {
		if wanted[c] {
			return true, nil
		}
	}
	return false, nil
}

// filterByPersons restricts moments to items where a requested person
// appears within ±T of the moment's timestamp, enriching matches with
// the person's name.
func (s *Searcher) filterByPersons(ctx context.Context, moments []moment, q Query) ([]moment, error) {
	tolerance := q.PersonTolMs
	if tolerance <= 0 {
		tolerance = DefaultPersonToleranceMs
	}

	personNames := make(map[string]string, len(q.PersonIDs))
	for _, id := range q.PersonIDs {
		p, err := s.st.GetPerson(ctx, id)
		if err != nil {
			continue
		}
		personNames[id] = p.Name
	}

	var out []moment
	for _, m := range moments {
		faces, err := s.st.ListFacesByItem(ctx, m.itemID)
		if err != nil {
			return nil, fmt.Errorf("list faces by item: %w", err)
		}
		var names []string
		for _, f := range faces {
			name, wanted := personNames[f.PersonID]
			if !wanted {
				continue
			}
			if abs(f.TimestampMs-m.timestampMs) > tolerance {
				continue
			}
			names = append(names, name)
		}
		if len(names) == 0 {
			continue
		}
		m.hasPerson = true
		m.matchedPersons = dedupe(names)
		out = append(out, m)
	}
	return out, nil
}

// attachSnippets fills in transcript snippets for moments that
// matched the transcript path, by finding the segment nearest each
// moment's timestamp.
func (s *Searcher) attachSnippets(ctx context.Context, moments []moment) ([]moment, error) {
	segsByItem := make(map[string][]store.TranscriptSegment)
	for i := range moments {
		m := &moments[i]
		if !m.hasTranscript || m.snippet != "" {
			continue
		}
		segs, ok := segsByItem[m.itemID]
		if !ok {
			var err error
			segs, err = s.st.ListTranscriptSegments(ctx, m.itemID)
			if err != nil {
				return nil, fmt.Errorf("list transcript segments: %w", err)
			}
			segsByItem[m.itemID] = segs
		}
		var nearest *store.TranscriptSegment
		bestDist := -1
		for j := range segs {
			seg := &segs[j]
			d := abs(seg.StartMs - m.timestampMs)
			if bestDist < 0 || d < bestDist {
				bestDist = d
				nearest = seg
			}
		}
		if nearest != nil {
			m.snippet = nearest.Text
		}
	}
	return moments, nil
}

func (s *Searcher) toResult(ctx context.Context, m moment) Result {
	r := Result{
		ItemID:         m.itemID,
		TimestampMs:    m.timestampMs,
		Score:          m.score,
		MatchSources:   m.sources(),
		Snippet:        m.snippet,
		MatchedLabels:  m.matchedLabels,
		MatchedPersons: m.matchedPersons,
	}
	if thumb, err := s.nearestThumbnail(ctx, m.itemID, m.timestampMs); err == nil {
		r.ThumbnailPath = thumb
	}
	return r
}

func (s *Searcher) nearestThumbnail(ctx context.Context, itemID string, timestampMs int) (string, error) {
	frames, err := s.st.ListFrames(ctx, itemID)
	if err != nil {
		return "", err
	}
	var nearest *store.Frame
	bestDist := -1
	for i := range frames {
		f := &frames[i]
		if f.ThumbnailPath == "" {
			continue
		}
		d := abs(f.TimestampMs - timestampMs)
		if bestDist < 0 || d < bestDist {
			bestDist = d
			nearest = f
		}
	}
	if nearest == nil {
		return "", nil
	}
	return nearest.ThumbnailPath, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
