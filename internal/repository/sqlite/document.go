package sqlite

import (
	"context"

	"github.com/jwalitptl/practice-local/internal/hooks"
	"github.com/jwalitptl/practice-local/internal/model"
	"github.com/jwalitptl/practice-local/internal/repository"
)

// Documents live in the goals collection.
type documentRepository struct {
	c *Collection
}

func NewDocumentRepository(d *DB) repository.DocumentRepository {
	return &documentRepository{c: d.Collection(hooks.Goals)}
}

func (r *documentRepository) Create(ctx context.Context, document *model.Document) error {
	doc, err := encode(document)
	if err != nil {
		return err
	}
	stored, err := r.c.Add(ctx, doc)
	if err != nil {
		return err
	}
	created, err := decodeOne[model.Document](r.c.Name(), stored)
	if err != nil {
		return err
	}
	*document = *created
	return nil
}

func (r *documentRepository) Get(ctx context.Context, id int64) (*model.Document, error) {
	doc, err := r.c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return decodeOne[model.Document](r.c.Name(), doc)
}

func (r *documentRepository) Update(ctx context.Context, id int64, patch *model.UpdateDocumentRequest) (*model.Document, error) {
	doc, err := encode(patch)
	if err != nil {
		return nil, err
	}
	stored, err := r.c.Update(ctx, id, doc)
	if err != nil {
		return nil, err
	}
	return decodeOne[model.Document](r.c.Name(), stored)
}

func (r *documentRepository) Delete(ctx context.Context, id int64) error {
	return r.c.Delete(ctx, id)
}

func (r *documentRepository) ListByPatient(ctx context.Context, patientID int64) ([]*model.Document, error) {
	docs, err := r.c.Where("patientId").Equals(patientID).OrderBy("createdAt").Reverse().Find(ctx)
	if err != nil {
		return nil, err
	}
	return decodeAll[model.Document](r.c.Name(), docs)
}
