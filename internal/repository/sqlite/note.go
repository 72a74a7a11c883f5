package sqlite

import (
	"context"

	"github.com/jwalitptl/practice-local/internal/hooks"
	"github.com/jwalitptl/practice-local/internal/model"
	"github.com/jwalitptl/practice-local/internal/repository"
)

type noteRepository struct {
	c *Collection
}

func NewNoteRepository(d *DB) repository.NoteRepository {
	return &noteRepository{c: d.Collection(hooks.Notes)}
}

func (r *noteRepository) Create(ctx context.Context, note *model.Note) error {
	doc, err := encode(note)
	if err != nil {
		return err
	}
	stored, err := r.c.Add(ctx, doc)
	if err != nil {
		return err
	}
	created, err := decodeOne[model.Note](r.c.Name(), stored)
	if err != nil {
		return err
	}
	*note = *created
	return nil
}

func (r *noteRepository) Get(ctx context.Context, id int64) (*model.Note, error) {
	doc, err := r.c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return decodeOne[model.Note](r.c.Name(), doc)
}

func (r *noteRepository) Update(ctx context.Context, id int64, patch *model.UpdateNoteRequest) (*model.Note, error) {
	doc, err := encode(patch)
	if err != nil {
		return nil, err
	}
	stored, err := r.c.Update(ctx, id, doc)
	if err != nil {
		return nil, err
	}
	return decodeOne[model.Note](r.c.Name(), stored)
}

func (r *noteRepository) Delete(ctx context.Context, id int64) error {
	return r.c.Delete(ctx, id)
}

func (r *noteRepository) List(ctx context.Context, filters *model.NoteFilters) ([]*model.Note, error) {
	q := r.c.All()
	switch {
	case filters == nil:
	case filters.Personal:
		q = r.c.Where("patientId").Missing()
	case filters.PatientID != nil:
		q = r.c.Where("patientId").Equals(*filters.PatientID)
	}
	docs, err := q.OrderBy("createdAt").Reverse().Find(ctx)
	if err != nil {
		return nil, err
	}
	return decodeAll[model.Note](r.c.Name(), docs)
}

func (r *noteRepository) ListBySession(ctx context.Context, sessionID int64) ([]*model.Note, error) {
	docs, err := r.c.Where("sessionId").Equals(sessionID).OrderBy("createdAt").Reverse().Find(ctx)
	if err != nil {
		return nil, err
	}
	return decodeAll[model.Note](r.c.Name(), docs)
}
