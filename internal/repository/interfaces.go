package repository

import (
	"context"

	"github.com/jwalitptl/practice-local/internal/model"
)

// All repository interfaces in one file
type (
	// PatientRepository handles patient records
	PatientRepository interface {
		Create(ctx context.Context, patient *model.Patient) error
		Get(ctx context.Context, id int64) (*model.Patient, error)
		Update(ctx context.Context, id int64, patch *model.UpdatePatientRequest) (*model.Patient, error)
		Delete(ctx context.Context, id int64) error
		List(ctx context.Context, filters *model.PatientFilters) ([]*model.Patient, error)
	}

	AppointmentRepository interface {
		Create(ctx context.Context, appointment *model.Appointment) error
		Get(ctx context.Context, id int64) (*model.Appointment, error)
		Update(ctx context.Context, id int64, patch *model.UpdateAppointmentRequest) (*model.Appointment, error)
		Delete(ctx context.Context, id int64) error
		List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error)
		// ListByPatientIDs fetches the appointments of every listed patient in one query.
		ListByPatientIDs(ctx context.Context, patientIDs []int64) ([]*model.Appointment, error)
		DeleteByPatient(ctx context.Context, patientID int64) (int, error)
		// SetStatus rewrites the status of every listed appointment in one transaction.
		SetStatus(ctx context.Context, ids []int64, status model.AppointmentStatus) (int, error)
	}

	NoteRepository interface {
		Create(ctx context.Context, note *model.Note) error
		Get(ctx context.Context, id int64) (*model.Note, error)
		Update(ctx context.Context, id int64, patch *model.UpdateNoteRequest) (*model.Note, error)
		Delete(ctx context.Context, id int64) error
		List(ctx context.Context, filters *model.NoteFilters) ([]*model.Note, error)
		ListBySession(ctx context.Context, sessionID int64) ([]*model.Note, error)
	}

	DocumentRepository interface {
		Create(ctx context.Context, doc *model.Document) error
		Get(ctx context.Context, id int64) (*model.Document, error)
		Update(ctx context.Context, id int64, patch *model.UpdateDocumentRequest) (*model.Document, error)
		Delete(ctx context.Context, id int64) error
		ListByPatient(ctx context.Context, patientID int64) ([]*model.Document, error)
	}
)
