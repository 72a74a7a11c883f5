package state

import (
	"context"

	"github.com/jwalitptl/practice-local/internal/model"
	"github.com/jwalitptl/practice-local/internal/service/document"
)

// DocumentStore caches one patient's documents, pinned first.
type DocumentStore struct {
	core
	svc       document.DocumentService
	patientID int64
	documents []model.Document
}

func NewDocumentStore(svc document.DocumentService, opts Options) *DocumentStore {
	s := &DocumentStore{svc: svc}
	s.init("documents", opts)
	return s
}

func (s *DocumentStore) Documents() []model.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Document(nil), s.documents...)
}

func (s *DocumentStore) Fetch(ctx context.Context, patientID int64) error {
	return s.run("fetch", "load documents", func() error { return s.load(ctx, patientID) })
}

func (s *DocumentStore) load(ctx context.Context, patientID int64) error {
	list, err := s.svc.ListByPatient(ctx, patientID)
	if err != nil {
		return err
	}
	s.replace(func() {
		s.patientID = patientID
		s.documents = list
	})
	return nil
}

func (s *DocumentStore) mutation(ctx context.Context, op, action string, write func() (*model.Document, error)) (*model.Document, error) {
	var out *model.Document
	err := s.run(op, action, func() error {
		d, err := write()
		if err != nil {
			return err
		}
		out = d
		s.mu.RLock()
		patientID := s.patientID
		s.mu.RUnlock()
		return s.load(ctx, patientID)
	})
	return out, err
}

func (s *DocumentStore) Add(ctx context.Context, req *model.CreateDocumentRequest) (*model.Document, error) {
	return s.mutation(ctx, "add", "add document", func() (*model.Document, error) {
		return s.svc.Create(ctx, req)
	})
}

func (s *DocumentStore) Update(ctx context.Context, id int64, req *model.UpdateDocumentRequest) (*model.Document, error) {
	return s.mutation(ctx, "update", "update document", func() (*model.Document, error) {
		return s.svc.Update(ctx, id, req)
	})
}

func (s *DocumentStore) Delete(ctx context.Context, id int64) error {
	_, err := s.mutation(ctx, "delete", "delete document", func() (*model.Document, error) {
		return nil, s.svc.Delete(ctx, id)
	})
	return err
}

func (s *DocumentStore) TogglePin(ctx context.Context, id int64) (*model.Document, error) {
	return s.mutation(ctx, "pin", "pin document", func() (*model.Document, error) {
		return s.svc.TogglePin(ctx, id)
	})
}

func (s *DocumentStore) ByKind(kind model.DocumentKind) []model.Document {
	return s.selectDocuments("kind:"+string(kind), func(d model.Document) bool { return d.Kind == kind })
}

func (s *DocumentStore) Pinned() []model.Document {
	return s.selectDocuments("pinned", func(d model.Document) bool { return d.Pinned })
}

func (s *DocumentStore) selectDocuments(key string, keep func(model.Document) bool) []model.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Document(nil), memoize(&s.core, key, func() []model.Document {
		var out []model.Document
		for _, d := range s.documents {
			if keep(d) {
				out = append(out, d)
			}
		}
		return out
	})...)
}
