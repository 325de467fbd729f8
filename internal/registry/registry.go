package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/xxxsen/ragbase/internal/model"
	appErr "github.com/xxxsen/ragbase/internal/pkg/errors"
)

// Registry tracks ingested documents independently of the vector index so
// listing and deletion never have to scan vectors.
type Registry interface {
	Register(ctx context.Context, doc *model.Document) error
	UpdateStatus(ctx context.Context, id string, status model.DocumentStatus, failReason string) error
	SetChunkCount(ctx context.Context, id string, count int) error
	Get(ctx context.Context, id string) (*model.Document, error)
	// List returns documents ordered by creation time.
	List(ctx context.Context) ([]*model.Document, error)
	Delete(ctx context.Context, id string) error
}

// Memory is the in-process registry backend.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]*model.Document
	seq  map[string]int
	next int
}

func NewMemory() *Memory {
	return &Memory{docs: map[string]*model.Document{}, seq: map[string]int{}}
}

var _ Registry = (*Memory)(nil)

func (m *Memory) Register(ctx context.Context, doc *model.Document) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[doc.ID]; ok {
		return appErr.ErrConflict
	}
	clone := *doc
	m.docs[doc.ID] = &clone
	m.seq[doc.ID] = m.next
	m.next++
	return nil
}

func (m *Memory) UpdateStatus(ctx context.Context, id string, status model.DocumentStatus, failReason string) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return appErr.ErrNotFound
	}
	doc.Status = status
	doc.FailReason = failReason
	return nil
}

func (m *Memory) SetChunkCount(ctx context.Context, id string, count int) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return appErr.ErrNotFound
	}
	doc.ChunkCount = count
	return nil
}

func (m *Memory) Get(ctx context.Context, id string) (*model.Document, error) {
	_ = ctx
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	clone := *doc
	return &clone, nil
}

func (m *Memory) List(ctx context.Context) ([]*model.Document, error) {
	_ = ctx
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.Document, 0, len(m.docs))
	for _, doc := range m.docs {
		clone := *doc
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool {
		return m.seq[out[i].ID] < m.seq[out[j].ID]
	})
	return out, nil
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return appErr.ErrNotFound
	}
	delete(m.docs, id)
	delete(m.seq, id)
	return nil
}
