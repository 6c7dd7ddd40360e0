package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

// TranscriptDoc is one indexed transcript segment.
type TranscriptDoc struct {
	ItemID  string
	StartMs int
	EndMs   int
	Text    string
}

// TranscriptHit is one full-text search result.
type TranscriptHit struct {
	SegmentID string
	ItemID    string
	StartMs   int
	EndMs     int
	Score     float64
}

// bleveTranscriptDoc is the Bleve-indexed document shape: stored fields
// so a hit can be turned into a TranscriptHit without a Store round trip.
type bleveTranscriptDoc struct {
	ItemID  string `json:"item_id"`
	StartMs int    `json:"start_ms"`
	EndMs   int    `json:"end_ms"`
	Text    string `json:"text"`
}

// TranscriptIndex is a Bleve v2 BM25 index over transcript segments,
// keyed by segment ID. Transcripts are natural speech, so Bleve's
// standard analyzer is used as-is for text rather than a code-aware
// tokenizer; item_id is indexed as a single keyword term so a search
// can be scoped to one item.
type TranscriptIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

// OpenTranscriptIndex opens (or creates) the transcript index at path.
// A corrupted index directory is detected and rebuilt from scratch.
func OpenTranscriptIndex(path string) (*TranscriptIndex, error) {
	mapping := bleve.NewIndexMapping()
	mapping.DefaultMapping.AddFieldMappingsAt("item_id", bleve.NewKeywordFieldMapping())

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create transcript index directory: %w", err)
	}

	if err := validateTranscriptIndex(path); err != nil {
		slog.Warn("transcript index corrupted, rebuilding", slog.String("path", path), slog.String("error", err.Error()))
		if rmErr := os.RemoveAll(path); rmErr != nil {
			return nil, fmt.Errorf("transcript index corrupted and cannot be cleared: %w", rmErr)
		}
	}

	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		idx, err = bleve.New(path, mapping)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript index: %w", err)
	}

	return &TranscriptIndex{index: idx, path: path}, nil
}

func validateTranscriptIndex(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty")
	}
	return nil
}

// Index adds or replaces transcript segments, keyed by segmentID.
func (t *TranscriptIndex) Index(ctx context.Context, docs map[string]TranscriptDoc) error {
	if len(docs) == 0 {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return fmt.Errorf("transcript index is closed")
	}

	batch := t.index.NewBatch()
	for id, d := range docs {
		doc := bleveTranscriptDoc{ItemID: d.ItemID, StartMs: d.StartMs, EndMs: d.EndMs, Text: d.Text}
		if err := batch.Index(id, doc); err != nil {
			return fmt.Errorf("failed to index segment %s: %w", id, err)
		}
	}
	return t.index.Batch(batch)
}

// Search runs a BM25 match query over segment text, optionally scoped
// to a single item (used when a search is narrowed to one item's
// transcript, e.g. from the detail view).
func (t *TranscriptIndex) Search(ctx context.Context, queryStr string, itemID string, limit int) ([]TranscriptHit, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return nil, fmt.Errorf("transcript index is closed")
	}
	if strings.TrimSpace(queryStr) == "" {
		return nil, nil
	}

	textQuery := bleve.NewMatchQuery(queryStr)
	textQuery.SetField("text")

	var q query.Query = textQuery
	if itemID != "" {
		itemQuery := bleve.NewTermQuery(itemID)
		itemQuery.SetField("item_id")
		q = bleve.NewConjunctionQuery(textQuery, itemQuery)
	}

	req := bleve.NewSearchRequest(q)
	req.Size = limit
	req.Fields = []string{"item_id", "start_ms", "end_ms"}

	result, err := t.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("transcript search failed: %w", err)
	}

	hits := make([]TranscriptHit, 0, len(result.Hits))
	for _, h := range result.Hits {
		hits = append(hits, TranscriptHit{
			SegmentID: h.ID,
			ItemID:    fieldString(h.Fields["item_id"]),
			StartMs:   fieldInt(h.Fields["start_ms"]),
			EndMs:     fieldInt(h.Fields["end_ms"]),
			Score:     h.Score,
		})
	}
	return hits, nil
}

// Delete removes segments by ID (an item re-indexed or deleted).
func (t *TranscriptIndex) Delete(ctx context.Context, segmentIDs []string) error {
	if len(segmentIDs) == 0 {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return fmt.Errorf("transcript index is closed")
	}
	batch := t.index.NewBatch()
	for _, id := range segmentIDs {
		batch.Delete(id)
	}
	return t.index.Batch(batch)
}

// Reset drops every indexed segment and recreates the index from
// scratch, for the wipe-derived maintenance path where enumerating
// segment IDs row-by-row would be wasted work.
func (t *TranscriptIndex) Reset() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return fmt.Errorf("transcript index is closed")
	}
	m := t.index.Mapping()
	if err := t.index.Close(); err != nil {
		return fmt.Errorf("close transcript index for reset: %w", err)
	}
	if err := os.RemoveAll(t.path); err != nil {
		return fmt.Errorf("clear transcript index: %w", err)
	}
	idx, err := bleve.New(t.path, m)
	if err != nil {
		return fmt.Errorf("recreate transcript index: %w", err)
	}
	t.index = idx
	return nil
}

// Close closes the underlying Bleve index.
func (t *TranscriptIndex) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.index.Close()
}

func fieldString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func fieldInt(v interface{}) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}
