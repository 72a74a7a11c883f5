package state

import (
	"context"
	"fmt"

	"github.com/jwalitptl/practice-local/internal/model"
	"github.com/jwalitptl/practice-local/internal/service/note"
)

// NoteScope selects which notes a NoteStore mirrors.
type NoteScope struct {
	PatientID int64
	SessionID int64
	Personal  bool
}

func (sc NoteScope) String() string {
	switch {
	case sc.Personal:
		return "personal"
	case sc.SessionID > 0:
		return fmt.Sprintf("session:%d", sc.SessionID)
	default:
		return fmt.Sprintf("patient:%d", sc.PatientID)
	}
}

// NoteStore caches the notes of one scope, pinned first. Mutations refetch
// the current scope.
type NoteStore struct {
	core
	svc   note.NoteService
	scope NoteScope
	notes []model.Note
}

func NewNoteStore(svc note.NoteService, opts Options) *NoteStore {
	s := &NoteStore{svc: svc}
	s.init("notes", opts)
	return s
}

func (s *NoteStore) Notes() []model.Note {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Note(nil), s.notes...)
}

func (s *NoteStore) Scope() NoteScope {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scope
}

func (s *NoteStore) FetchForPatient(ctx context.Context, patientID int64) error {
	return s.fetch(ctx, NoteScope{PatientID: patientID})
}

func (s *NoteStore) FetchPersonal(ctx context.Context) error {
	return s.fetch(ctx, NoteScope{Personal: true})
}

func (s *NoteStore) FetchForSession(ctx context.Context, sessionID int64) error {
	return s.fetch(ctx, NoteScope{SessionID: sessionID})
}

func (s *NoteStore) fetch(ctx context.Context, scope NoteScope) error {
	return s.run("fetch", "load notes", func() error { return s.load(ctx, scope) })
}

func (s *NoteStore) load(ctx context.Context, scope NoteScope) error {
	var (
		list []model.Note
		err  error
	)
	switch {
	case scope.Personal:
		list, err = s.svc.FetchPersonal(ctx)
	case scope.SessionID > 0:
		list, err = s.svc.FetchForSession(ctx, scope.SessionID)
	default:
		list, err = s.svc.FetchForPatient(ctx, scope.PatientID)
	}
	if err != nil {
		return err
	}
	s.replace(func() {
		s.scope = scope
		s.notes = list
	})
	return nil
}

func (s *NoteStore) mutation(ctx context.Context, op, action string, write func() (*model.Note, error)) (*model.Note, error) {
	var out *model.Note
	err := s.run(op, action, func() error {
		n, err := write()
		if err != nil {
			return err
		}
		out = n
		return s.load(ctx, s.Scope())
	})
	return out, err
}

func (s *NoteStore) Add(ctx context.Context, req *model.CreateNoteRequest) (*model.Note, error) {
	return s.mutation(ctx, "add", "add note", func() (*model.Note, error) {
		return s.svc.Create(ctx, req)
	})
}

func (s *NoteStore) Update(ctx context.Context, id int64, req *model.UpdateNoteRequest) (*model.Note, error) {
	return s.mutation(ctx, "update", "update note", func() (*model.Note, error) {
		return s.svc.Update(ctx, id, req)
	})
}

func (s *NoteStore) Delete(ctx context.Context, id int64) error {
	_, err := s.mutation(ctx, "delete", "delete note", func() (*model.Note, error) {
		return nil, s.svc.Delete(ctx, id)
	})
	return err
}

func (s *NoteStore) TogglePin(ctx context.Context, id int64) (*model.Note, error) {
	return s.mutation(ctx, "pin", "pin note", func() (*model.Note, error) {
		return s.svc.TogglePin(ctx, id)
	})
}

// Pinned returns the pinned notes of the cached scope.
func (s *NoteStore) Pinned() []model.Note {
	return s.selectNotes("pinned", func(n model.Note) bool { return n.Pinned })
}

// ByType returns the cached notes of one type.
func (s *NoteStore) ByType(t model.NoteType) []model.Note {
	return s.selectNotes("type:"+string(t), func(n model.Note) bool { return n.Type == t })
}

// ForSession narrows the cached notes to one session.
func (s *NoteStore) ForSession(sessionID int64) []model.Note {
	return s.selectNotes(fmt.Sprintf("session:%d", sessionID), func(n model.Note) bool {
		return n.SessionID != nil && *n.SessionID == sessionID
	})
}

func (s *NoteStore) selectNotes(key string, keep func(model.Note) bool) []model.Note {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Note(nil), memoize(&s.core, key, func() []model.Note {
		var out []model.Note
		for _, n := range s.notes {
			if keep(n) {
				out = append(out, n)
			}
		}
		return out
	})...)
}
