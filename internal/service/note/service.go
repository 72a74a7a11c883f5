package note

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jwalitptl/practice-local/internal/model"
	"github.com/jwalitptl/practice-local/internal/repository"
	"github.com/jwalitptl/practice-local/pkg/errors"
	"github.com/jwalitptl/practice-local/pkg/logger"
	"github.com/jwalitptl/practice-local/pkg/validator"
)

type NoteService interface {
	FetchForPatient(ctx context.Context, patientID int64) ([]model.Note, error)
	FetchPersonal(ctx context.Context) ([]model.Note, error)
	FetchForSession(ctx context.Context, sessionID int64) ([]model.Note, error)
	Create(ctx context.Context, req *model.CreateNoteRequest) (*model.Note, error)
	Update(ctx context.Context, id int64, req *model.UpdateNoteRequest) (*model.Note, error)
	Delete(ctx context.Context, id int64) error
	TogglePin(ctx context.Context, id int64) (*model.Note, error)
}

type Service struct {
	repo      repository.NoteRepository
	validator validator.Validator
	log       *logger.Logger
}

func NewService(repo repository.NoteRepository, v validator.Validator, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{repo: repo, validator: v, log: log.Component("note-service")}
}

func (s *Service) FetchForPatient(ctx context.Context, patientID int64) ([]model.Note, error) {
	return s.list(ctx, &model.NoteFilters{PatientID: &patientID})
}

// FetchPersonal returns the notes not attached to any patient.
func (s *Service) FetchPersonal(ctx context.Context) ([]model.Note, error) {
	return s.list(ctx, &model.NoteFilters{Personal: true})
}

func (s *Service) FetchForSession(ctx context.Context, sessionID int64) ([]model.Note, error) {
	notes, err := s.repo.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list session notes: %w", err)
	}
	return Sort(notes), nil
}

func (s *Service) list(ctx context.Context, filters *model.NoteFilters) ([]model.Note, error) {
	notes, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	return Sort(notes), nil
}

// Sort orders notes pinned first, then newest first.
func Sort(notes []*model.Note) []model.Note {
	out := make([]model.Note, 0, len(notes))
	for _, n := range notes {
		out = append(out, *n)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Pinned != out[j].Pinned {
			return out[i].Pinned
		}
		return out[i].CreatedAt.After(out[j].CreatedAt.Time)
	})
	return out
}

func (s *Service) Create(ctx context.Context, req *model.CreateNoteRequest) (*model.Note, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	n := &model.Note{
		PatientID:  req.PatientID,
		SessionID:  req.SessionID,
		Type:       req.Type,
		Title:      strings.TrimSpace(req.Title),
		Content:    req.Content,
		Subjective: req.Subjective,
		Objective:  req.Objective,
		Assessment: req.Assessment,
		Plan:       req.Plan,
		Pinned:     req.Pinned,
	}
	if err := checkShape(n); err != nil {
		return nil, err
	}
	clearOtherShape(n)

	if err := s.repo.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to create note: %w", err)
	}
	return n, nil
}

// Update patches a note. The merged result must still carry the content its
// type requires, and fields belonging to the other type are cleared.
func (s *Service) Update(ctx context.Context, id int64, req *model.UpdateNoteRequest) (*model.Note, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get note: %w", err)
	}
	merged := applyPatch(*current, req)
	if err := checkShape(&merged); err != nil {
		return nil, err
	}

	// fields of the other shape are blanked whether stored or sent in req
	patch := *req
	empty := ""
	blankOut := func(cur string, dst **string) {
		if cur != "" || *dst != nil {
			*dst = &empty
		}
	}
	if merged.Type == model.NoteTypeSOAP {
		blankOut(current.Content, &patch.Content)
	} else {
		blankOut(current.Subjective, &patch.Subjective)
		blankOut(current.Objective, &patch.Objective)
		blankOut(current.Assessment, &patch.Assessment)
		blankOut(current.Plan, &patch.Plan)
	}

	n, err := s.repo.Update(ctx, id, &patch)
	if err != nil {
		return nil, fmt.Errorf("failed to update note: %w", err)
	}
	return n, nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}
	return nil
}

func (s *Service) TogglePin(ctx context.Context, id int64) (*model.Note, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get note: %w", err)
	}
	pinned := !current.Pinned
	n, err := s.repo.Update(ctx, id, &model.UpdateNoteRequest{Pinned: &pinned})
	if err != nil {
		return nil, fmt.Errorf("failed to pin note: %w", err)
	}
	return n, nil
}

// checkShape reports a soap note without any section, or another note
// without content.
func checkShape(n *model.Note) error {
	if n.Type == model.NoteTypeSOAP {
		if blank(n.Subjective) && blank(n.Objective) && blank(n.Assessment) && blank(n.Plan) {
			return errors.NewValidation(errors.FieldError{
				Field: "subjective", Rule: "required_without_all", Message: "at least one SOAP section is required",
			})
		}
		return nil
	}
	if blank(n.Content) {
		return errors.NewValidation(errors.FieldError{Field: "content", Rule: "required", Message: "is required"})
	}
	return nil
}

func clearOtherShape(n *model.Note) {
	if n.Type == model.NoteTypeSOAP {
		n.Content = ""
		return
	}
	n.Subjective, n.Objective, n.Assessment, n.Plan = "", "", "", ""
}

func applyPatch(n model.Note, req *model.UpdateNoteRequest) model.Note {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	if req.Type != nil {
		n.Type = *req.Type
	}
	set(&n.Title, req.Title)
	set(&n.Content, req.Content)
	set(&n.Subjective, req.Subjective)
	set(&n.Objective, req.Objective)
	set(&n.Assessment, req.Assessment)
	set(&n.Plan, req.Plan)
	if req.Pinned != nil {
		n.Pinned = *req.Pinned
	}
	return n
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
