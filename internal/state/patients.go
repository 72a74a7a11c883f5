package state

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/text/language"

	"github.com/jwalitptl/practice-local/internal/model"
	"github.com/jwalitptl/practice-local/internal/service/patient"
)

// PatientStore caches the aggregated patient list. Mutations patch the cache
// optimistically and restore the snapshot taken before the write if it fails.
type PatientStore struct {
	core
	svc          patient.PatientService
	locale       language.Tag
	patients     []model.PatientWithAppointments
	showArchived bool
	stale        bool

	listenersMu sync.Mutex
	listeners   []func(PatientChange)
}

const (
	PatientDeleted  = "delete"
	PatientArchived = "archive"
	PatientRestored = "restore"
)

// PatientChange describes a persisted patient write other caches may depend on.
type PatientChange struct {
	Op string
	ID int64
}

// OnChange registers fn to run after a successful delete, archive or restore.
func (s *PatientStore) OnChange(fn func(PatientChange)) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *PatientStore) notify(change PatientChange) {
	s.listenersMu.Lock()
	listeners := append([]func(PatientChange){}, s.listeners...)
	s.listenersMu.Unlock()
	for _, fn := range listeners {
		fn(change)
	}
}

func NewPatientStore(svc patient.PatientService, opts Options) *PatientStore {
	s := &PatientStore{svc: svc, locale: language.English, stale: true}
	s.init("patients", opts)
	return s
}

// Patients returns a copy of the cached list.
func (s *PatientStore) Patients() []model.PatientWithAppointments {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clonePatients(s.patients)
}

// Stale reports whether the cache has not been fetched yet, or was
// invalidated by a change elsewhere since the last fetch.
func (s *PatientStore) Stale() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stale
}

// Invalidate marks the derived appointment fields out of date.
func (s *PatientStore) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stale = true
}

func (s *PatientStore) Fetch(ctx context.Context, showArchived bool) error {
	return s.run("fetch", "load patients", func() error {
		list, err := s.svc.FetchPatients(ctx, showArchived)
		if err != nil {
			return err
		}
		s.replace(func() {
			s.patients = list
			s.showArchived = showArchived
			s.stale = false
		})
		return nil
	})
}

// Refresh refetches with the filter of the last fetch.
func (s *PatientStore) Refresh(ctx context.Context) error {
	s.mu.RLock()
	showArchived := s.showArchived
	s.mu.RUnlock()
	return s.Fetch(ctx, showArchived)
}

func (s *PatientStore) Add(ctx context.Context, req *model.CreatePatientRequest) (*model.Patient, error) {
	var created *model.Patient
	err := s.run("add", "add patient", func() error {
		p, err := s.svc.CreatePatient(ctx, req)
		if err != nil {
			return err
		}
		created = p
		s.replace(func() {
			s.patients = append(clonePatients(s.patients), model.PatientWithAppointments{Patient: *p})
			patient.SortByLastName(s.patients, s.locale)
		})
		return nil
	})
	return created, err
}

func (s *PatientStore) Update(ctx context.Context, id int64, req *model.UpdatePatientRequest) (*model.Patient, error) {
	return s.mutate(ctx, "update", "update patient", id,
		func(p model.Patient) model.Patient { return req.Apply(p) },
		func() (*model.Patient, error) { return s.svc.UpdatePatient(ctx, id, req) })
}

func (s *PatientStore) Archive(ctx context.Context, id int64) (*model.Patient, error) {
	p, err := s.mutate(ctx, "archive", "archive patient", id,
		withStatus(model.PatientStatusArchived),
		func() (*model.Patient, error) { return s.svc.ArchivePatient(ctx, id) })
	if err == nil {
		s.notify(PatientChange{Op: PatientArchived, ID: id})
	}
	return p, err
}

func (s *PatientStore) Restore(ctx context.Context, id int64) (*model.Patient, error) {
	p, err := s.mutate(ctx, "restore", "restore patient", id,
		withStatus(model.PatientStatusActive),
		func() (*model.Patient, error) { return s.svc.RestorePatient(ctx, id) })
	if err == nil {
		s.notify(PatientChange{Op: PatientRestored, ID: id})
	}
	return p, err
}

// Delete removes the patient and, in storage, its appointments.
func (s *PatientStore) Delete(ctx context.Context, id int64) error {
	if err := s.delete(ctx, id); err != nil {
		return err
	}
	s.notify(PatientChange{Op: PatientDeleted, ID: id})
	return nil
}

func (s *PatientStore) delete(ctx context.Context, id int64) error {
	return s.run("delete", "delete patient", func() error {
		snapshot := s.optimistic(func(list []model.PatientWithAppointments) []model.PatientWithAppointments {
			out := list[:0]
			for _, p := range list {
				if p.ID != id {
					out = append(out, p)
				}
			}
			return out
		})
		if err := s.svc.DeletePatient(ctx, id); err != nil {
			s.rollback(snapshot)
			return err
		}
		return nil
	})
}

// mutate applies local to the cached patient, runs write and reconciles the
// cache with what was persisted. A failed write restores the snapshot.
func (s *PatientStore) mutate(ctx context.Context, op, action string, id int64,
	local func(model.Patient) model.Patient, write func() (*model.Patient, error)) (*model.Patient, error) {

	var persisted *model.Patient
	err := s.run(op, action, func() error {
		snapshot := s.optimistic(func(list []model.PatientWithAppointments) []model.PatientWithAppointments {
			for i := range list {
				if list[i].ID == id {
					list[i].Patient = local(list[i].Patient)
				}
			}
			return s.visible(list)
		})

		p, err := write()
		if err != nil {
			s.rollback(snapshot)
			return err
		}
		persisted = p
		s.replace(func() {
			found := false
			for i := range s.patients {
				if s.patients[i].ID == p.ID {
					s.patients[i].Patient = *p
					found = true
				}
			}
			// a restored patient was not in an active-only cache; its
			// appointment summary is unknown until the next fetch
			if !found && (s.showArchived || p.Status != model.PatientStatusArchived) {
				s.patients = append(s.patients, model.PatientWithAppointments{Patient: *p})
				s.stale = true
			}
			patient.SortByLastName(s.patients, s.locale)
		})
		return nil
	})
	return persisted, err
}

// optimistic applies fn to a copy of the cache, installs the result and
// returns the previous list.
func (s *PatientStore) optimistic(fn func([]model.PatientWithAppointments) []model.PatientWithAppointments) []model.PatientWithAppointments {
	var snapshot []model.PatientWithAppointments
	s.replace(func() {
		snapshot = s.patients
		s.patients = fn(clonePatients(s.patients))
	})
	return snapshot
}

func (s *PatientStore) rollback(snapshot []model.PatientWithAppointments) {
	s.replace(func() { s.patients = snapshot })
}

// visible drops archived patients unless the cache was fetched with them.
func (s *PatientStore) visible(list []model.PatientWithAppointments) []model.PatientWithAppointments {
	if s.showArchived {
		return list
	}
	out := list[:0]
	for _, p := range list {
		if p.Status != model.PatientStatusArchived {
			out = append(out, p)
		}
	}
	return out
}

// Search filters the cached list without touching storage.
func (s *PatientStore) Search(query string) []model.PatientWithAppointments {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clonePatients(patient.SearchPatients(s.patients, query))
}

type TagCount struct {
	Tag   string
	Count int
}

// TagCounts counts cached patients per tag, most used first.
func (s *PatientStore) TagCounts() []TagCount {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return memoize(&s.core, "tags", func() []TagCount {
		counts := map[string]int{}
		for _, p := range s.patients {
			for _, tag := range p.Tags {
				counts[tag]++
			}
		}
		out := make([]TagCount, 0, len(counts))
		for tag, n := range counts {
			out = append(out, TagCount{Tag: tag, Count: n})
		}
		sort.Slice(out, func(i, j int) bool {
			if out[i].Count != out[j].Count {
				return out[i].Count > out[j].Count
			}
			return out[i].Tag < out[j].Tag
		})
		return out
	})
}

func withStatus(status model.PatientStatus) func(model.Patient) model.Patient {
	return func(p model.Patient) model.Patient {
		p.Status = status
		return p
	}
}

// clonePatients deep-copies the list so callers and snapshots never alias the cache.
func clonePatients(list []model.PatientWithAppointments) []model.PatientWithAppointments {
	if list == nil {
		return nil
	}
	out := make([]model.PatientWithAppointments, len(list))
	for i, p := range list {
		out[i] = p
		if p.Tags != nil {
			out[i].Tags = append([]string{}, p.Tags...)
		}
		if p.EmergencyContact != nil {
			ec := *p.EmergencyContact
			out[i].EmergencyContact = &ec
		}
	}
	return out
}
