package appointment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jwalitptl/practice-local/internal/model"
	"github.com/jwalitptl/practice-local/internal/repository"
	"github.com/jwalitptl/practice-local/pkg/errors"
	"github.com/jwalitptl/practice-local/pkg/logger"
	"github.com/jwalitptl/practice-local/pkg/validator"
)

const DefaultDuration = 50

type AppointmentService interface {
	Fetch(ctx context.Context, filters *model.AppointmentFilters) ([]model.Appointment, error)
	Get(ctx context.Context, id int64) (*model.Appointment, error)
	Create(ctx context.Context, req *model.CreateAppointmentRequest) (*model.Appointment, error)
	Update(ctx context.Context, id int64, req *model.UpdateAppointmentRequest) (*model.Appointment, error)
	Delete(ctx context.Context, id int64) error
	Cancel(ctx context.Context, id int64, reason string) (*model.Appointment, error)
	Reschedule(ctx context.Context, id int64, date time.Time) (*model.Appointment, error)
	MarkReminderSent(ctx context.Context, id int64) (*model.Appointment, error)
	MarkPaid(ctx context.Context, id int64, method, notes string) (*model.Appointment, error)
}

type Service struct {
	repo            repository.AppointmentRepository
	validator       validator.Validator
	log             *logger.Logger
	now             func() time.Time
	defaultDuration int
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithDefaultDuration sets the duration, in minutes, used when a create request leaves it at zero.
func WithDefaultDuration(minutes int) Option {
	return func(s *Service) {
		if minutes > 0 {
			s.defaultDuration = minutes
		}
	}
}

func NewService(repo repository.AppointmentRepository, v validator.Validator, log *logger.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.Nop()
	}
	s := &Service{
		repo:            repo,
		validator:       v,
		log:             log.Component("appointment-service"),
		now:             time.Now,
		defaultDuration: DefaultDuration,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch lists appointments and completes every scheduled appointment whose
// end has passed, with one bulk write. Nothing is written when no
// appointment needs it.
func (s *Service) Fetch(ctx context.Context, filters *model.AppointmentFilters) ([]model.Appointment, error) {
	list, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}

	now := s.now()
	var overdue []int64
	for _, a := range list {
		if a.Status == model.AppointmentStatusScheduled && a.End().Before(now) {
			overdue = append(overdue, a.ID)
		}
	}

	if len(overdue) > 0 {
		n, err := s.repo.SetStatus(ctx, overdue, model.AppointmentStatusCompleted)
		if err != nil {
			return nil, fmt.Errorf("failed to complete past appointments: %w", err)
		}
		s.log.Info("auto-completed past appointments", "count", n)
	}

	done := make(map[int64]bool, len(overdue))
	for _, id := range overdue {
		done[id] = true
	}
	out := make([]model.Appointment, 0, len(list))
	for _, a := range list {
		if done[a.ID] {
			a.Status = model.AppointmentStatusCompleted
		}
		out = append(out, *a)
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*model.Appointment, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return a, nil
}

func (s *Service) Create(ctx context.Context, req *model.CreateAppointmentRequest) (*model.Appointment, error) {
	r := *req
	if r.Duration == 0 {
		r.Duration = s.defaultDuration
	}
	if err := s.validator.Validate(&r); err != nil {
		return nil, err
	}

	a := &model.Appointment{
		PatientID: r.PatientID,
		Date:      model.NewTime(r.Date),
		Duration:  r.Duration,
		Status:    model.AppointmentStatusScheduled,
		Type:      strings.TrimSpace(r.Type),
		Notes:     r.Notes,
		Price:     r.Price,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to create appointment: %w", err)
	}
	s.log.Info("appointment created", "appointment_id", a.ID, "patient_id", a.PatientID)
	return a, nil
}

func (s *Service) Update(ctx context.Context, id int64, req *model.UpdateAppointmentRequest) (*model.Appointment, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	// a zero date encodes as null, which the merge would treat as removal
	if req.Date != nil && req.Date.IsZero() {
		return nil, errors.NewValidation(errors.FieldError{Field: "date", Rule: "required", Message: "is required"})
	}
	a, err := s.repo.Update(ctx, id, req)
	if err != nil {
		return nil, fmt.Errorf("failed to update appointment: %w", err)
	}
	return a, nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete appointment: %w", err)
	}
	return nil
}

// Cancel marks a scheduled or no-show appointment cancelled.
func (s *Service) Cancel(ctx context.Context, id int64, reason string) (*model.Appointment, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch a.Status {
	case model.AppointmentStatusCancelled, model.AppointmentStatusCompleted, model.AppointmentStatusRescheduled:
		return nil, transitionError(a.Status, model.AppointmentStatusCancelled)
	}

	status := model.AppointmentStatusCancelled
	reason = strings.TrimSpace(reason)
	return s.Update(ctx, id, &model.UpdateAppointmentRequest{
		Status:             &status,
		CancelledAt:        model.TimePtr(s.now()),
		CancellationReason: &reason,
	})
}

// Reschedule books a new appointment at date carrying over the old one's
// details, and links both. The old appointment becomes rescheduled.
func (s *Service) Reschedule(ctx context.Context, id int64, date time.Time) (*model.Appointment, error) {
	old, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if old.Status != model.AppointmentStatusScheduled {
		return nil, transitionError(old.Status, model.AppointmentStatusRescheduled)
	}
	if date.IsZero() {
		return nil, errors.NewValidation(errors.FieldError{Field: "date", Rule: "required", Message: "is required"})
	}

	fromID := old.ID
	next := &model.Appointment{
		PatientID:         old.PatientID,
		Date:              model.NewTime(date),
		Duration:          old.Duration,
		Status:            model.AppointmentStatusScheduled,
		Type:              old.Type,
		Notes:             old.Notes,
		Price:             old.Price,
		RescheduledFromID: &fromID,
	}
	if err := s.repo.Create(ctx, next); err != nil {
		return nil, fmt.Errorf("failed to create rescheduled appointment: %w", err)
	}

	status := model.AppointmentStatusRescheduled
	toID := next.ID
	if _, err := s.repo.Update(ctx, id, &model.UpdateAppointmentRequest{Status: &status, RescheduledToID: &toID}); err != nil {
		return nil, fmt.Errorf("failed to mark appointment rescheduled: %w", err)
	}
	s.log.Info("appointment rescheduled", "from", id, "to", next.ID)
	return next, nil
}

func (s *Service) MarkReminderSent(ctx context.Context, id int64) (*model.Appointment, error) {
	sent := true
	return s.Update(ctx, id, &model.UpdateAppointmentRequest{ReminderSent: &sent, ReminderSentAt: model.TimePtr(s.now())})
}

func (s *Service) MarkPaid(ctx context.Context, id int64, method, notes string) (*model.Appointment, error) {
	return s.Update(ctx, id, &model.UpdateAppointmentRequest{PaymentInfo: &model.PaymentInfo{
		IsPaid:        true,
		PaidAt:        model.TimePtr(s.now()),
		PaymentMethod: strings.TrimSpace(method),
		Notes:         notes,
	}})
}

func transitionError(from, to model.AppointmentStatus) error {
	return errors.NewValidation(errors.FieldError{
		Field:   "status",
		Rule:    "transition",
		Message: fmt.Sprintf("cannot change from %s to %s", from, to),
	})
}
