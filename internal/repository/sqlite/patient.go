package sqlite

import (
	"context"

	"github.com/jwalitptl/practice-local/internal/hooks"
	"github.com/jwalitptl/practice-local/internal/model"
	"github.com/jwalitptl/practice-local/internal/repository"
)

type patientRepository struct {
	c *Collection
}

func NewPatientRepository(d *DB) repository.PatientRepository {
	return &patientRepository{c: d.Collection(hooks.Patients)}
}

// Create stores patient and fills in its id, defaults and timestamps.
func (r *patientRepository) Create(ctx context.Context, patient *model.Patient) error {
	doc, err := encode(patient)
	if err != nil {
		return err
	}
	stored, err := r.c.Add(ctx, doc)
	if err != nil {
		return err
	}
	created, err := decodeOne[model.Patient](r.c.Name(), stored)
	if err != nil {
		return err
	}
	*patient = *created
	return nil
}

func (r *patientRepository) Get(ctx context.Context, id int64) (*model.Patient, error) {
	doc, err := r.c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return decodeOne[model.Patient](r.c.Name(), doc)
}

func (r *patientRepository) Update(ctx context.Context, id int64, patch *model.UpdatePatientRequest) (*model.Patient, error) {
	doc, err := encode(patch)
	if err != nil {
		return nil, err
	}
	stored, err := r.c.Update(ctx, id, doc)
	if err != nil {
		return nil, err
	}
	return decodeOne[model.Patient](r.c.Name(), stored)
}

func (r *patientRepository) Delete(ctx context.Context, id int64) error {
	return r.c.Delete(ctx, id)
}

// List returns patients in insertion order. Archived patients are left out
// unless filters ask for them.
func (r *patientRepository) List(ctx context.Context, filters *model.PatientFilters) ([]*model.Patient, error) {
	q := r.c.Where("status").Equals(string(model.PatientStatusActive))
	if filters != nil && filters.ShowArchived {
		q = r.c.All()
	}
	docs, err := q.Find(ctx)
	if err != nil {
		return nil, err
	}
	return decodeAll[model.Patient](r.c.Name(), docs)
}
