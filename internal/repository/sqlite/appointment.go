package sqlite

import (
	"context"
	"sort"

	"github.com/jwalitptl/practice-local/internal/hooks"
	"github.com/jwalitptl/practice-local/internal/model"
	"github.com/jwalitptl/practice-local/internal/repository"
)

type appointmentRepository struct {
	c *Collection
}

func NewAppointmentRepository(d *DB) repository.AppointmentRepository {
	return &appointmentRepository{c: d.Collection(hooks.Appointments)}
}

func (r *appointmentRepository) Create(ctx context.Context, appointment *model.Appointment) error {
	doc, err := encode(appointment)
	if err != nil {
		return err
	}
	stored, err := r.c.Add(ctx, doc)
	if err != nil {
		return err
	}
	created, err := decodeOne[model.Appointment](r.c.Name(), stored)
	if err != nil {
		return err
	}
	*appointment = *created
	return nil
}

func (r *appointmentRepository) Get(ctx context.Context, id int64) (*model.Appointment, error) {
	doc, err := r.c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return decodeOne[model.Appointment](r.c.Name(), doc)
}

func (r *appointmentRepository) Update(ctx context.Context, id int64, patch *model.UpdateAppointmentRequest) (*model.Appointment, error) {
	doc, err := encode(patch)
	if err != nil {
		return nil, err
	}
	stored, err := r.c.Update(ctx, id, doc)
	if err != nil {
		return nil, err
	}
	return decodeOne[model.Appointment](r.c.Name(), stored)
}

func (r *appointmentRepository) Delete(ctx context.Context, id int64) error {
	return r.c.Delete(ctx, id)
}

// List runs one indexed query on the most selective filter and applies the
// rest in memory. Results are ordered by date.
func (r *appointmentRepository) List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	f := model.AppointmentFilters{}
	if filters != nil {
		f = *filters
	}

	var q *Query
	switch {
	case f.PatientID != 0:
		q = r.c.Where("patientId").Equals(f.PatientID)
	case !f.From.IsZero() && !f.To.IsZero():
		q = r.c.Where("date").Between(model.ISO(f.From), model.ISO(f.To))
	case !f.From.IsZero():
		q = r.c.Where("date").Above(model.ISO(f.From))
	case !f.To.IsZero():
		q = r.c.Where("date").Below(model.ISO(f.To))
	case f.Status != "":
		q = r.c.Where("status").Equals(string(f.Status))
	default:
		q = r.c.All()
	}

	docs, err := q.OrderBy("date").Find(ctx)
	if err != nil {
		return nil, err
	}
	all, err := decodeAll[model.Appointment](r.c.Name(), docs)
	if err != nil {
		return nil, err
	}

	out := all[:0]
	for _, a := range all {
		if f.PatientID != 0 && a.PatientID != f.PatientID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if !f.From.IsZero() && a.Date.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !a.Date.Before(f.To) {
			continue
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date.Time) })
	return out, nil
}

func (r *appointmentRepository) ListByPatientIDs(ctx context.Context, patientIDs []int64) ([]*model.Appointment, error) {
	docs, err := r.c.Where("patientId").AnyOf(int64Args(patientIDs)...).OrderBy("date").Find(ctx)
	if err != nil {
		return nil, err
	}
	return decodeAll[model.Appointment](r.c.Name(), docs)
}

func (r *appointmentRepository) DeleteByPatient(ctx context.Context, patientID int64) (int, error) {
	return r.c.Where("patientId").Equals(patientID).Delete(ctx)
}

func (r *appointmentRepository) SetStatus(ctx context.Context, ids []int64, status model.AppointmentStatus) (int, error) {
	return r.c.Where("id").AnyOf(int64Args(ids)...).Modify(ctx, model.JSONMap{"status": string(status)})
}
