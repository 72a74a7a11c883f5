package patient

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/jwalitptl/practice-local/internal/model"
	"github.com/jwalitptl/practice-local/internal/repository"
	"github.com/jwalitptl/practice-local/pkg/logger"
	"github.com/jwalitptl/practice-local/pkg/validator"
)

type PatientService interface {
	FetchPatients(ctx context.Context, showArchived bool) ([]model.PatientWithAppointments, error)
	GetPatient(ctx context.Context, id int64) (*model.Patient, error)
	CreatePatient(ctx context.Context, req *model.CreatePatientRequest) (*model.Patient, error)
	UpdatePatient(ctx context.Context, id int64, req *model.UpdatePatientRequest) (*model.Patient, error)
	DeletePatient(ctx context.Context, id int64) error
	ArchivePatient(ctx context.Context, id int64) (*model.Patient, error)
	RestorePatient(ctx context.Context, id int64) (*model.Patient, error)
}

type Service struct {
	repo            repository.PatientRepository
	appointmentRepo repository.AppointmentRepository
	validator       validator.Validator
	log             *logger.Logger
	now             func() time.Time
	locale          language.Tag
}

type Option func(*Service)

// WithClock fixes the instant "now" that splits last from next appointments.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocale sets the collation used to sort by last name.
func WithLocale(tag language.Tag) Option {
	return func(s *Service) { s.locale = tag }
}

func NewService(repo repository.PatientRepository, appointmentRepo repository.AppointmentRepository, v validator.Validator, log *logger.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.Nop()
	}
	s := &Service{
		repo:            repo,
		appointmentRepo: appointmentRepo,
		validator:       v,
		log:             log.Component("patient-service"),
		now:             time.Now,
		locale:          language.English,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchPatients returns patients sorted by last name, each annotated with its
// appointment count and its last and next appointment. All appointments are
// loaded with a single query.
func (s *Service) FetchPatients(ctx context.Context, showArchived bool) ([]model.PatientWithAppointments, error) {
	patients, err := s.repo.List(ctx, &model.PatientFilters{ShowArchived: showArchived})
	if err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}
	if len(patients) == 0 {
		return []model.PatientWithAppointments{}, nil
	}

	ids := make([]int64, 0, len(patients))
	for _, p := range patients {
		ids = append(ids, p.ID)
	}
	appointments, err := s.appointmentRepo.ListByPatientIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}

	byPatient := make(map[int64][]*model.Appointment, len(patients))
	for _, a := range appointments {
		byPatient[a.PatientID] = append(byPatient[a.PatientID], a)
	}

	now := s.now()
	out := make([]model.PatientWithAppointments, 0, len(patients))
	for _, p := range patients {
		out = append(out, annotate(*p, byPatient[p.ID], now))
	}
	SortByLastName(out, s.locale)
	s.log.Debug("patients fetched", "patients", len(out), "appointments", len(appointments))
	return out, nil
}

// SortByLastName sorts patients in place by last name using the collation of tag.
func SortByLastName(patients []model.PatientWithAppointments, tag language.Tag) {
	// collators are not safe for concurrent use
	coll := collate.New(tag, collate.IgnoreCase)
	sort.SliceStable(patients, func(i, j int) bool {
		return coll.CompareString(patients[i].LastName, patients[j].LastName) < 0
	})
}

// annotate derives the appointment summary of one patient. Last is the latest
// appointment not after now, next the soonest strictly after it, so an
// appointment exactly at now counts as last.
func annotate(p model.Patient, appointments []*model.Appointment, now time.Time) model.PatientWithAppointments {
	view := model.PatientWithAppointments{Patient: p, AppointmentCount: len(appointments)}
	var last, next *model.Time
	for _, a := range appointments {
		date := a.Date
		if date.After(now) {
			if next == nil || date.Before(next.Time) {
				next = &date
			}
			continue
		}
		if last == nil || date.After(last.Time) {
			last = &date
		}
	}
	view.LastAppointment = last
	view.NextAppointment = next
	return view
}

func (s *Service) GetPatient(ctx context.Context, id int64) (*model.Patient, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	return p, nil
}

func (s *Service) CreatePatient(ctx context.Context, req *model.CreatePatientRequest) (*model.Patient, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	p := &model.Patient{
		FirstName:        strings.TrimSpace(req.FirstName),
		LastName:         strings.TrimSpace(req.LastName),
		DisplayName:      strings.TrimSpace(req.DisplayName),
		Email:            strings.TrimSpace(req.Email),
		Phone:            strings.TrimSpace(req.Phone),
		BirthDate:        req.BirthDate,
		EmergencyContact: req.EmergencyContact,
		Tags:             req.Tags,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create patient: %w", err)
	}
	s.log.Info("patient created", "patient_id", p.ID)
	return p, nil
}

// UpdatePatient applies a partial patch. Fields absent from req are neither
// validated against required rules nor written.
func (s *Service) UpdatePatient(ctx context.Context, id int64, req *model.UpdatePatientRequest) (*model.Patient, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	patch := *req
	for _, f := range []**string{&patch.FirstName, &patch.LastName, &patch.DisplayName, &patch.Email, &patch.Phone} {
		if *f != nil {
			v := strings.TrimSpace(**f)
			*f = &v
		}
	}
	p, err := s.repo.Update(ctx, id, &patch)
	if err != nil {
		return nil, fmt.Errorf("failed to update patient: %w", err)
	}
	return p, nil
}

// DeletePatient removes the patient's appointments first and the patient
// second. If the first step fails the patient is left in place.
func (s *Service) DeletePatient(ctx context.Context, id int64) error {
	n, err := s.appointmentRepo.DeleteByPatient(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete appointments of patient %d: %w", id, err)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete patient: %w", err)
	}
	s.log.Info("patient deleted", "patient_id", id, "appointments", n)
	return nil
}

func (s *Service) ArchivePatient(ctx context.Context, id int64) (*model.Patient, error) {
	return s.setStatus(ctx, id, model.PatientStatusArchived)
}

func (s *Service) RestorePatient(ctx context.Context, id int64) (*model.Patient, error) {
	return s.setStatus(ctx, id, model.PatientStatusActive)
}

func (s *Service) setStatus(ctx context.Context, id int64, status model.PatientStatus) (*model.Patient, error) {
	p, err := s.repo.Update(ctx, id, &model.UpdatePatientRequest{Status: &status})
	if err != nil {
		return nil, fmt.Errorf("failed to set patient status: %w", err)
	}
	return p, nil
}

// SearchPatients filters an already loaded list. Names, email and tags match
// case-insensitively; phone matches as a raw substring.
func SearchPatients(patients []model.PatientWithAppointments, query string) []model.PatientWithAppointments {
	q := strings.TrimSpace(query)
	if q == "" {
		return patients
	}
	lower := strings.ToLower(q)

	out := make([]model.PatientWithAppointments, 0, len(patients))
	for _, p := range patients {
		if matches(&p.Patient, q, lower) {
			out = append(out, p)
		}
	}
	return out
}

func matches(p *model.Patient, raw, lower string) bool {
	if strings.Contains(strings.ToLower(p.FirstName), lower) ||
		strings.Contains(strings.ToLower(p.LastName), lower) ||
		strings.Contains(strings.ToLower(p.Email), lower) ||
		strings.Contains(p.Phone, raw) {
		return true
	}
	for _, tag := range p.Tags {
		if strings.Contains(strings.ToLower(tag), lower) {
			return true
		}
	}
	return false
}
