package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/xxxsen/ragbase/internal/index"
)

type record struct {
	entry index.Entry
	seq   uint64
}

// Storage is a brute-force cosine index guarded by a single RWMutex.
// Writers replace whole records, so a chunk's vector and metadata become
// visible to concurrent searches atomically.
type Storage struct {
	mu     sync.RWMutex
	byID   map[string]int
	items  []record
	nextSq uint64
}

func New() *Storage {
	return &Storage{byID: map[string]int{}}
}

var _ index.Index = (*Storage)(nil)

func (s *Storage) Upsert(ctx context.Context, entries []index.Entry) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		e.Vector = index.Normalize(e.Vector)
		if pos, ok := s.byID[e.ChunkID]; ok {
			// Keep the original insertion sequence so tie-breaking stays
			// stable across re-upserts.
			s.items[pos].entry = e
			continue
		}
		s.byID[e.ChunkID] = len(s.items)
		s.items = append(s.items, record{entry: e, seq: s.nextSq})
		s.nextSq++
	}
	return nil
}

func (s *Storage) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.items[:0]
	removed := 0
	for _, rec := range s.items {
		if rec.entry.DocumentID == documentID {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	s.items = kept
	s.byID = make(map[string]int, len(s.items))
	for i, rec := range s.items {
		s.byID[rec.entry.ChunkID] = i
	}
	return removed, nil
}

func (s *Storage) Search(ctx context.Context, vector []float32, topK int, filters *index.Filters) ([]index.Hit, error) {
	_ = ctx
	if topK <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		rec   record
		score float32
	}
	candidates := make([]scored, 0, len(s.items))
	for _, rec := range s.items {
		if filters != nil && len(filters.DocumentIDs) > 0 && !contains(filters.DocumentIDs, rec.entry.DocumentID) {
			continue
		}
		candidates = append(candidates, scored{rec: rec, score: index.CosineSimilarity(rec.entry.Vector, vector)})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].rec.seq < candidates[j].rec.seq
	})
	if topK > len(candidates) {
		topK = len(candidates)
	}
	hits := make([]index.Hit, 0, topK)
	for _, c := range candidates[:topK] {
		hits = append(hits, index.Hit{Entry: c.rec.entry, Score: c.score})
	}
	return hits, nil
}

func (s *Storage) CountByDocument(ctx context.Context, documentID string) (int, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, rec := range s.items {
		if rec.entry.DocumentID == documentID {
			count++
		}
	}
	return count, nil
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
