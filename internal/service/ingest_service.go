package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragbase/internal/ai"
	"github.com/xxxsen/ragbase/internal/chunker"
	"github.com/xxxsen/ragbase/internal/filestore"
	"github.com/xxxsen/ragbase/internal/index"
	"github.com/xxxsen/ragbase/internal/loader"
	"github.com/xxxsen/ragbase/internal/model"
	appErr "github.com/xxxsen/ragbase/internal/pkg/errors"
	"github.com/xxxsen/ragbase/internal/registry"
)

// IngestService owns the ingestion path: load, chunk, embed, index, and the
// cascading delete. Work on the same document id is serialized; independent
// documents ingest in parallel.
type IngestService struct {
	chunker   *chunker.Chunker
	embedder  ai.IEmbedder
	idx       index.Index
	reg       registry.Registry
	files     filestore.Store
	batchSize int

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

func NewIngestService(ck *chunker.Chunker, embedder ai.IEmbedder, idx index.Index, reg registry.Registry, files filestore.Store, batchSize int) *IngestService {
	if batchSize <= 0 {
		batchSize = 16
	}
	return &IngestService{
		chunker:   ck,
		embedder:  embedder,
		idx:       idx,
		reg:       reg,
		files:     files,
		batchSize: batchSize,
		locks:     map[string]*sync.Mutex{},
	}
}

func (s *IngestService) lock(docID string) func() {
	s.lockMu.Lock()
	mu, ok := s.locks[docID]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[docID] = mu
	}
	s.lockMu.Unlock()
	mu.Lock()
	return mu.Unlock
}

// DocumentID derives the stable id from filename plus content hash, so
// re-uploading identical bytes lands on the same document.
func DocumentID(filename string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(filename))
	h.Write([]byte{0})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// Ingest runs the full pipeline for one uploaded file. Input errors
// (unsupported format, corrupt bytes, empty content) surface before the
// document enters the registry; upstream embedding failures leave a
// registry entry in status failed with no indexed chunks.
func (s *IngestService) Ingest(ctx context.Context, filename string, data []byte) (*model.Document, error) {
	format, err := loader.DetectFormat(filename)
	if err != nil {
		return nil, err
	}
	text, err := loader.Load(data, format)
	if err != nil {
		return nil, err
	}
	pieces := s.chunker.Split(text)
	if len(pieces) == 0 {
		return nil, fmt.Errorf("%w: document has no extractable text", appErr.ErrCorruptInput)
	}

	docID := DocumentID(filename, data)
	logger := logutil.GetLogger(ctx).With(zap.String("document_id", docID), zap.String("filename", filename))

	unlock := s.lock(docID)
	defer unlock()

	if existing, err := s.reg.Get(ctx, docID); err == nil {
		if existing.Status == model.DocumentStatusReady {
			logger.Info("document already ingested")
			return existing, nil
		}
		if existing.Status == model.DocumentStatusProcessing || existing.Status == model.DocumentStatusPending {
			return nil, fmt.Errorf("%w: document %s is being ingested", appErr.ErrConflict, docID)
		}
		// A previous failed run left the entry behind. Clear remnants and
		// run the pipeline again under the same id.
		if _, err := s.idx.DeleteByDocument(ctx, docID); err != nil {
			return nil, err
		}
		if err := s.reg.UpdateStatus(ctx, docID, model.DocumentStatusProcessing, ""); err != nil {
			return nil, err
		}
	} else if appErr.IsNotFound(err) {
		doc := &model.Document{
			ID:           docID,
			Filename:     filename,
			SourceFormat: format,
			Status:       model.DocumentStatusPending,
			Ctime:        time.Now().UnixMilli(),
		}
		if err := s.reg.Register(ctx, doc); err != nil {
			return nil, err
		}
		if err := s.reg.UpdateStatus(ctx, docID, model.DocumentStatusProcessing, ""); err != nil {
			return nil, err
		}
	} else {
		return nil, err
	}

	if s.files != nil {
		if err := s.files.Save(ctx, docID, data); err != nil {
			logger.Warn("keep raw upload failed", zap.Error(err))
		}
	}

	if err := s.indexChunks(ctx, docID, filename, pieces); err != nil {
		reason := err.Error()
		if _, delErr := s.idx.DeleteByDocument(ctx, docID); delErr != nil {
			logger.Error("rollback partial chunks failed", zap.Error(delErr))
			reason = fmt.Sprintf("%s (partial rollback failed: %v)", reason, delErr)
		}
		if updErr := s.reg.UpdateStatus(ctx, docID, model.DocumentStatusFailed, reason); updErr != nil {
			logger.Error("mark document failed", zap.Error(updErr))
		}
		return nil, err
	}

	if err := s.reg.SetChunkCount(ctx, docID, len(pieces)); err != nil {
		return nil, err
	}
	if err := s.reg.UpdateStatus(ctx, docID, model.DocumentStatusReady, ""); err != nil {
		return nil, err
	}
	logger.Info("document ingested", zap.Int("chunks", len(pieces)))
	return s.reg.Get(ctx, docID)
}

// indexChunks embeds pieces batch by batch, in order, upserting each batch
// as soon as its vectors arrive.
func (s *IngestService) indexChunks(ctx context.Context, docID, filename string, pieces []string) error {
	for start := 0; start < len(pieces); start += s.batchSize {
		end := start + s.batchSize
		if end > len(pieces) {
			end = len(pieces)
		}
		batch := pieces[start:end]
		vectors, err := s.embedder.Embed(ctx, batch, ai.TaskTypeDocument)
		if err != nil {
			return err
		}
		entries := make([]index.Entry, 0, len(batch))
		for i, piece := range batch {
			position := start + i
			entries = append(entries, index.Entry{
				ChunkID:    model.ChunkID(docID, position),
				DocumentID: docID,
				Filename:   filename,
				Position:   position,
				Text:       piece,
				Vector:     vectors[i],
			})
		}
		if err := s.idx.Upsert(ctx, entries); err != nil {
			return err
		}
	}
	return nil
}

// Reingest replays a known document from its retained upload, running the
// full pipeline again. This is how a document stuck in status failed after a
// provider outage gets back to ready without the operator re-uploading it.
func (s *IngestService) Reingest(ctx context.Context, id string) (*model.Document, error) {
	if s.files == nil {
		return nil, fmt.Errorf("%w: no file store configured, raw uploads are not retained", appErr.ErrInvalid)
	}
	doc, err := s.reg.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	rc, err := s.files.Open(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("open retained upload for %s: %w", id, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read retained upload for %s: %w", id, err)
	}
	return s.Ingest(ctx, doc.Filename, data)
}

func (s *IngestService) List(ctx context.Context) ([]*model.Document, error) {
	return s.reg.List(ctx)
}

func (s *IngestService) Get(ctx context.Context, id string) (*model.Document, error) {
	return s.reg.Get(ctx, id)
}

// Delete cascades index-first: vectors go, then the raw upload, and the
// registry entry last as the commit point. If index deletion fails the
// entry stays (marked failed) so the reconcile job can retry the cleanup.
func (s *IngestService) Delete(ctx context.Context, id string) error {
	unlock := s.lock(id)
	defer unlock()

	if _, err := s.reg.Get(ctx, id); err != nil {
		return err
	}
	if _, err := s.idx.DeleteByDocument(ctx, id); err != nil {
		reason := fmt.Sprintf("cascade delete incomplete: %v", err)
		if updErr := s.reg.UpdateStatus(ctx, id, model.DocumentStatusFailed, reason); updErr != nil {
			logutil.GetLogger(ctx).Error("mark delete failure", zap.String("document_id", id), zap.Error(updErr))
		}
		return fmt.Errorf("%w: %v", appErr.ErrIndexConsistency, err)
	}
	if s.files != nil {
		if err := s.files.Delete(ctx, id); err != nil {
			logutil.GetLogger(ctx).Warn("remove raw upload failed", zap.String("document_id", id), zap.Error(err))
		}
	}
	return s.reg.Delete(ctx, id)
}
