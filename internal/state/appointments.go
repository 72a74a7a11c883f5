package state

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jwalitptl/practice-local/internal/model"
	"github.com/jwalitptl/practice-local/internal/service/appointment"
)

const (
	DefaultReminderWindow = 48 * time.Hour
	DefaultUpcomingLimit  = 10
)

// AppointmentStore caches every appointment, ascending by date. After each
// successful mutation the cache is refetched rather than patched.
type AppointmentStore struct {
	core
	svc            appointment.AppointmentService
	appointments   []model.Appointment
	loc            *time.Location
	reminderWindow time.Duration
	upcomingLimit  int
	stale          bool

	listenersMu sync.Mutex
	listeners   []func()
}

type AppointmentStoreConfig struct {
	ReminderWindow time.Duration
	UpcomingLimit  int
	// Location defines local midnight for Today. Defaults to time.Local.
	Location *time.Location
}

func NewAppointmentStore(svc appointment.AppointmentService, cfg AppointmentStoreConfig, opts Options) *AppointmentStore {
	s := &AppointmentStore{
		svc:            svc,
		loc:            cfg.Location,
		reminderWindow: cfg.ReminderWindow,
		upcomingLimit:  cfg.UpcomingLimit,
		stale:          true,
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.reminderWindow <= 0 {
		s.reminderWindow = DefaultReminderWindow
	}
	if s.upcomingLimit <= 0 {
		s.upcomingLimit = DefaultUpcomingLimit
	}
	s.init("appointments", opts)
	return s
}

// OnChange registers fn to run after every successful mutation.
func (s *AppointmentStore) OnChange(fn func()) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *AppointmentStore) notify() {
	s.listenersMu.Lock()
	listeners := append([]func(){}, s.listeners...)
	s.listenersMu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

// Appointments returns a copy of the cached list.
func (s *AppointmentStore) Appointments() []model.Appointment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAppointments(s.appointments)
}

func (s *AppointmentStore) Fetch(ctx context.Context) error {
	return s.run("fetch", "load appointments", func() error { return s.load(ctx) })
}

func (s *AppointmentStore) load(ctx context.Context) error {
	list, err := s.svc.Fetch(ctx, nil)
	if err != nil {
		return err
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].Date.Before(list[j].Date.Time) })
	s.replace(func() {
		s.appointments = list
		s.stale = false
	})
	return nil
}

// Stale reports whether the cache has not been fetched yet, or storage
// changed underneath it since the last fetch.
func (s *AppointmentStore) Stale() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stale
}

func (s *AppointmentStore) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stale = true
}

// ForgetPatient drops a deleted patient's appointments from the cache, matching
// the cascade already done in storage.
func (s *AppointmentStore) ForgetPatient(patientID int64) {
	s.replace(func() {
		kept := make([]model.Appointment, 0, len(s.appointments))
		for _, a := range s.appointments {
			if a.PatientID != patientID {
				kept = append(kept, a)
			}
		}
		s.appointments = kept
	})
}

// mutation runs write and refetches. The cache is untouched when write fails.
func (s *AppointmentStore) mutation(ctx context.Context, op, action string, write func() (*model.Appointment, error)) (*model.Appointment, error) {
	var out *model.Appointment
	err := s.run(op, action, func() error {
		a, err := write()
		if err != nil {
			return err
		}
		out = a
		return s.load(ctx)
	})
	if out != nil {
		s.notify()
	}
	return out, err
}

func (s *AppointmentStore) Add(ctx context.Context, req *model.CreateAppointmentRequest) (*model.Appointment, error) {
	return s.mutation(ctx, "add", "add appointment", func() (*model.Appointment, error) {
		return s.svc.Create(ctx, req)
	})
}

func (s *AppointmentStore) Update(ctx context.Context, id int64, req *model.UpdateAppointmentRequest) (*model.Appointment, error) {
	return s.mutation(ctx, "update", "update appointment", func() (*model.Appointment, error) {
		return s.svc.Update(ctx, id, req)
	})
}

func (s *AppointmentStore) Delete(ctx context.Context, id int64) error {
	_, err := s.mutation(ctx, "delete", "delete appointment", func() (*model.Appointment, error) {
		if err := s.svc.Delete(ctx, id); err != nil {
			return nil, err
		}
		return &model.Appointment{Base: model.Base{ID: id}}, nil
	})
	return err
}

func (s *AppointmentStore) Cancel(ctx context.Context, id int64, reason string) (*model.Appointment, error) {
	return s.mutation(ctx, "cancel", "cancel appointment", func() (*model.Appointment, error) {
		return s.svc.Cancel(ctx, id, reason)
	})
}

func (s *AppointmentStore) Reschedule(ctx context.Context, id int64, date time.Time) (*model.Appointment, error) {
	return s.mutation(ctx, "reschedule", "reschedule appointment", func() (*model.Appointment, error) {
		return s.svc.Reschedule(ctx, id, date)
	})
}

func (s *AppointmentStore) MarkReminderSent(ctx context.Context, id int64) (*model.Appointment, error) {
	return s.mutation(ctx, "reminder", "mark reminder sent", func() (*model.Appointment, error) {
		return s.svc.MarkReminderSent(ctx, id)
	})
}

func (s *AppointmentStore) MarkPaid(ctx context.Context, id int64, method, notes string) (*model.Appointment, error) {
	return s.mutation(ctx, "pay", "record payment", func() (*model.Appointment, error) {
		return s.svc.MarkPaid(ctx, id, method, notes)
	})
}

// Today lists the appointments between local midnight and the next one, by time.
func (s *AppointmentStore) Today() []model.Appointment {
	now := s.now().In(s.loc)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	end := start.AddDate(0, 0, 1)
	return s.Between(start, end)
}

// Upcoming lists the nearest appointments strictly after now.
func (s *AppointmentStore) Upcoming() []model.Appointment {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.appointments
	lo := afterIndex(list, now)
	hi := lo + s.upcomingLimit
	if hi > len(list) {
		hi = len(list)
	}
	return cloneAppointments(list[lo:hi])
}

// NeedingReminder lists future appointments inside the reminder window whose
// reminder has not been sent. Cancelled and rescheduled ones never need one.
func (s *AppointmentStore) NeedingReminder() []model.Appointment {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	candidates := memoize(&s.core, "reminder-candidates", func() []model.Appointment {
		var out []model.Appointment
		for _, a := range s.appointments {
			if a.ReminderSent || a.Status == model.AppointmentStatusCancelled || a.Status == model.AppointmentStatusRescheduled {
				continue
			}
			out = append(out, a)
		}
		return out
	})
	return cloneAppointments(candidates[afterIndex(candidates, now):afterIndex(candidates, now.Add(s.reminderWindow))])
}

func (s *AppointmentStore) ByPatient(patientID int64) []model.Appointment {
	return s.selectAppointments(fmt.Sprintf("patient:%d", patientID), func(list []model.Appointment) []model.Appointment {
		var out []model.Appointment
		for _, a := range list {
			if a.PatientID == patientID {
				out = append(out, a)
			}
		}
		return out
	})
}

// Between lists appointments with from <= date < to.
func (s *AppointmentStore) Between(from, to time.Time) []model.Appointment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lo, hi := notBeforeIndex(s.appointments, from), notBeforeIndex(s.appointments, to)
	if hi < lo {
		hi = lo
	}
	return cloneAppointments(s.appointments[lo:hi])
}

// Unpaid lists completed appointments without a recorded payment.
func (s *AppointmentStore) Unpaid() []model.Appointment {
	return s.selectAppointments("unpaid", func(list []model.Appointment) []model.Appointment {
		var out []model.Appointment
		for _, a := range list {
			if a.Status == model.AppointmentStatusCompleted && (a.PaymentInfo == nil || !a.PaymentInfo.IsPaid) {
				out = append(out, a)
			}
		}
		return out
	})
}

// RevenueBetween sums the prices of paid appointments with from <= date < to.
func (s *AppointmentStore) RevenueBetween(from, to time.Time) float64 {
	var total float64
	for _, a := range s.Between(from, to) {
		if a.PaymentInfo != nil && a.PaymentInfo.IsPaid && a.Price != nil {
			total += *a.Price
		}
	}
	return total
}

func (s *AppointmentStore) selectAppointments(key string, fn func([]model.Appointment) []model.Appointment) []model.Appointment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAppointments(memoize(&s.core, key, func() []model.Appointment {
		return fn(s.appointments)
	}))
}

// afterIndex is the first position in the date-sorted list with date > t.
func afterIndex(list []model.Appointment, t time.Time) int {
	return sort.Search(len(list), func(i int) bool { return list[i].Date.After(t) })
}

// notBeforeIndex is the first position in the date-sorted list with date >= t.
func notBeforeIndex(list []model.Appointment, t time.Time) int {
	return sort.Search(len(list), func(i int) bool { return !list[i].Date.Before(t) })
}

func cloneAppointments(list []model.Appointment) []model.Appointment {
	out := make([]model.Appointment, len(list))
	copy(out, list)
	for i := range out {
		if out[i].PaymentInfo != nil {
			pi := *out[i].PaymentInfo
			out[i].PaymentInfo = &pi
		}
	}
	return out
}
