package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
	lru "github.com/hashicorp/golang-lru/v2"
)

// VectorResult is one nearest-neighbor hit.
type VectorResult struct {
	ID       string
	Distance float32
	Score    float32
}

// itemShard is one item's vector graph, keyed by a caller-chosen
// string ID. The pipeline stores frame embeddings here as
// "frame:<frame_id>"; face embeddings are kept in the faces table,
// not in shards.
type itemShard struct {
	mu      sync.RWMutex
	graph   *hnsw.Graph[uint64]
	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64
	dirty   bool
}

func newItemShard(dims int) *itemShard {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = 16
	g.EfSearch = 20
	g.Ml = 0.25
	return &itemShard{graph: g, idMap: make(map[string]uint64), keyMap: make(map[uint64]string)}
}

type shardMetadata struct {
	IDMap   map[string]uint64
	NextKey uint64
}

// ShardStore indexes vectors per item rather than in one global graph
// (see the vector-search design note: per-item shards keep a delete or
// a re-embed local to the item it touches, and avoid lazy-deletion
// graph bloat across an entire library). Shards are small enough that
// the store keeps a bounded number warm in memory and loads the rest
// from disk on demand.
type ShardStore struct {
	dir   string
	cache *lru.Cache[string, *itemShard]
	mu    sync.Mutex // guards shard creation/eviction-save races
}

// NewShardStore opens a shard store rooted at dir (config.ShardsDir()),
// keeping up to warmShards item graphs resident.
func NewShardStore(dir string, warmShards int) (*ShardStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create shard directory: %w", err)
	}
	ss := &ShardStore{dir: dir}
	cache, err := lru.NewWithEvict(warmShards, func(itemID string, shard *itemShard) {
		if shard.dirty {
			_ = ss.save(itemID, shard)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create shard cache: %w", err)
	}
	ss.cache = cache
	return ss, nil
}

func (ss *ShardStore) shardPath(itemID string) string {
	return filepath.Join(ss.dir, itemID+".hnsw")
}

// shard returns the in-memory shard for itemID, loading it from disk
// (or creating an empty one) if it isn't cached.
func (ss *ShardStore) shard(itemID string) (*itemShard, error) {
	if s, ok := ss.cache.Get(itemID); ok {
		return s, nil
	}

	ss.mu.Lock()
	defer ss.mu.Unlock()

	if s, ok := ss.cache.Get(itemID); ok {
		return s, nil
	}

	s := newItemShard(0)
	if _, err := os.Stat(ss.shardPath(itemID)); err == nil {
		if err := ss.load(itemID, s); err != nil {
			return nil, fmt.Errorf("failed to load shard %s: %w", itemID, err)
		}
	}
	ss.cache.Add(itemID, s)
	return s, nil
}

// Add inserts or replaces vectors under itemID. An existing ID is
// lazily deleted (orphaned key) rather than removed from the graph,
// matching coder/hnsw's documented deletion caveat.
func (ss *ShardStore) Add(ctx context.Context, itemID string, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	s, err := ss.shard(itemID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, id := range ids {
		if existing, ok := s.idMap[id]; ok {
			delete(s.keyMap, existing)
			delete(s.idMap, id)
		}
		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		normalizeVectorInPlace(vec)

		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idMap[id] = key
		s.keyMap[key] = id
	}
	s.dirty = true
	return nil
}

// Search returns the k nearest vectors within itemID's shard.
func (ss *ShardStore) Search(ctx context.Context, itemID string, query []float32, k int) ([]*VectorResult, error) {
	s, err := ss.shard(itemID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.graph.Len() == 0 {
		return nil, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	normalizeVectorInPlace(q)

	nodes := s.graph.Search(q, k)
	results := make([]*VectorResult, 0, len(nodes))
	for _, node := range nodes {
		id, ok := s.keyMap[node.Key]
		if !ok {
			continue
		}
		dist := s.graph.Distance(q, node.Value)
		results = append(results, &VectorResult{ID: id, Distance: dist, Score: 1 - dist/2})
	}
	return results, nil
}

// Delete removes vectors by ID from itemID's shard.
func (ss *ShardStore) Delete(ctx context.Context, itemID string, ids []string) error {
	s, err := ss.shard(itemID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if key, ok := s.idMap[id]; ok {
			delete(s.keyMap, key)
			delete(s.idMap, id)
		}
	}
	s.dirty = true
	return nil
}

// DropShard deletes an item's shard file entirely (item removed).
func (ss *ShardStore) DropShard(itemID string) error {
	ss.cache.Remove(itemID)
	err := os.Remove(ss.shardPath(itemID))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// DropAll removes every shard file and purges the warm cache, for the
// wipe-derived maintenance path. Purge runs first so an eviction save
// cannot re-materialize a file that was just deleted.
func (ss *ShardStore) DropAll() error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	for _, itemID := range ss.cache.Keys() {
		if s, ok := ss.cache.Peek(itemID); ok {
			s.dirty = false
		}
	}
	ss.cache.Purge()

	entries, err := os.ReadDir(ss.dir)
	if err != nil {
		return fmt.Errorf("list shard directory: %w", err)
	}
	for _, e := range entries {
		if err := os.Remove(filepath.Join(ss.dir, e.Name())); err != nil {
			return fmt.Errorf("remove shard %s: %w", e.Name(), err)
		}
	}
	return nil
}

// Flush saves every resident dirty shard to disk (called before shutdown).
func (ss *ShardStore) Flush() error {
	for _, itemID := range ss.cache.Keys() {
		s, ok := ss.cache.Peek(itemID)
		if !ok || !s.dirty {
			continue
		}
		if err := ss.save(itemID, s); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes and releases the shard store.
func (ss *ShardStore) Close() error {
	return ss.Flush()
}

// save persists one shard atomically via a temp file plus rename.
func (ss *ShardStore) save(itemID string, s *itemShard) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path := ss.shardPath(itemID)
	tmpPath := path + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create shard temp file: %w", err)
	}
	if err := s.graph.Export(f); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to export shard graph: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename shard file: %w", err)
	}

	metaTmp := path + ".meta.tmp"
	mf, err := os.Create(metaTmp)
	if err != nil {
		return fmt.Errorf("failed to create shard metadata temp file: %w", err)
	}
	meta := shardMetadata{IDMap: s.idMap, NextKey: s.nextKey}
	if err := gob.NewEncoder(mf).Encode(meta); err != nil {
		mf.Close()
		os.Remove(metaTmp)
		return fmt.Errorf("failed to encode shard metadata: %w", err)
	}
	if err := mf.Close(); err != nil {
		os.Remove(metaTmp)
		return err
	}
	return os.Rename(metaTmp, path+".meta")
}

func (ss *ShardStore) load(itemID string, s *itemShard) error {
	metaFile, err := os.Open(ss.shardPath(itemID) + ".meta")
	if err != nil {
		return fmt.Errorf("failed to open shard metadata: %w", err)
	}
	defer metaFile.Close()

	var meta shardMetadata
	if err := gob.NewDecoder(metaFile).Decode(&meta); err != nil {
		return fmt.Errorf("failed to decode shard metadata: %w", err)
	}
	s.idMap = meta.IDMap
	s.nextKey = meta.NextKey
	s.keyMap = make(map[uint64]string, len(meta.IDMap))
	for id, key := range meta.IDMap {
		s.keyMap[key] = id
	}

	f, err := os.Open(ss.shardPath(itemID))
	if err != nil {
		return fmt.Errorf("failed to open shard graph: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	if err := s.graph.Import(r); err != nil {
		return fmt.Errorf("failed to import shard graph: %w", err)
	}
	return nil
}

func normalizeVectorInPlace(v []float32) {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return
	}
	norm := float32(1.0 / math.Sqrt(sumSq))
	for i := range v {
		v[i] *= norm
	}
}
