// Package search ranks items and per-item moments against a query
// combining free text, detected-object labels, person identities, and
// color mentions. The transcript path is BM25 over indexed segments,
// the visual path queries per-item vector shards, and the two are
// combined by an explicit weighted-sum fusion carrying detector and
// color boosts.
package search

import (
	"context"
	"log/slog"

	"github.com/mediaengine/engine/internal/ml"
	"github.com/mediaengine/engine/internal/store"
)

// VisualSimilarityThreshold is the floor below which a visual-path
// frame match is discarded as noise.
const VisualSimilarityThreshold = 0.18

// TranscriptMomentWindowMs is the half-width used to group adjacent
// transcript hits into one moment.
const TranscriptMomentWindowMs = 2000

// VisualMomentWindowMs is the half-width used to group adjacent
// visual-path frame hits into one moment.
const VisualMomentWindowMs = 3000

// Mode selects which retrieval path(s) a query runs.
type Mode string

const (
	ModeTranscript Mode = "transcript"
	ModeVisual     Mode = "visual"
	ModeBoth       Mode = "both"
)

// Query is one search request.
type Query struct {
	Text        string
	Mode        Mode
	Labels      []string // explicit object labels, merged with any extracted from Text
	LibraryID   string
	PersonIDs   []string
	PersonTolMs int // ±T window for the person filter, 0 uses DefaultPersonToleranceMs
	Limit       int
	Offset      int
}

// DefaultPersonToleranceMs is the default ±T window for the person
// filter when a query does not override it.
const DefaultPersonToleranceMs = 2000

// Result is one ranked moment.
type Result struct {
	ItemID         string
	TimestampMs    int
	Score          float64
	MatchSources   []string
	Snippet        string
	ThumbnailPath  string
	MatchedLabels  []string
	MatchedPersons []string
}

// Searcher runs queries against the transcript index, vector shards,
// and relational Store.
type Searcher struct {
	st     *store.Store
	shards *store.ShardStore
	fts    *store.TranscriptIndex
	models *ml.Cache
	log    *slog.Logger
}

func New(st *store.Store, shards *store.ShardStore, fts *store.TranscriptIndex, models *ml.Cache, log *slog.Logger) *Searcher {
	if log == nil {
		log = slog.Default()
	}
	return &Searcher{st: st, shards: shards, fts: fts, models: models, log: log}
}

func (s *Searcher) logger() *slog.Logger {
	if s.log != nil {
		return s.log
	}
	return slog.Default()
}

// Search runs q and returns ranked, paginated results.
func (s *Searcher) Search(ctx context.Context, q Query) ([]Result, int, error) {
	pp := Preprocess(q.Text)
	for _, l := range q.Labels {
		if label, ok := labelLookup(l); ok {
			pp.ObjectLabels = append(pp.ObjectLabels, label)
		}
	}
	pp.ObjectLabels = dedupe(pp.ObjectLabels)

	var moments []moment
	var err error

	switch {
	case len(pp.ObjectLabels) > 0 && pp.TextQuery == "" && q.Mode != ModeTranscript:
		moments, err = s.labelOnlyPath(ctx, q, pp)
	case q.Mode == ModeTranscript:
		moments, err = s.transcriptPath(ctx, q, pp)
	case q.Mode == ModeVisual:
		moments, err = s.visualPath(ctx, q, pp)
	default:
		moments, err = s.fusedPath(ctx, q, pp)
	}
	if err != nil {
		return nil, 0, err
	}

	if q.LibraryID != "" {
		moments, err = s.filterByLibrary(ctx, moments, q.LibraryID)
		if err != nil {
			return nil, 0, err
		}
	}

	if len(q.PersonIDs) > 0 {
		moments, err = s.filterByPersons(ctx, moments, q)
		if err != nil {
			return nil, 0, err
		}
	}

	sortMomentsDesc(moments)
	total := len(moments)

	start := q.Offset
	if start > total {
		start = total
	}
	end := total
	if q.Limit > 0 && start+q.Limit < end {
		end = start + q.Limit
	}
	page := moments[start:end]

	results := make([]Result, 0, len(page))
	for _, m := range page {
		results = append(results, s.toResult(ctx, m))
	}
	return results, total, nil
}
