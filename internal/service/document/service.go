package document

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/jwalitptl/practice-local/internal/model"
	"github.com/jwalitptl/practice-local/internal/repository"
	"github.com/jwalitptl/practice-local/pkg/errors"
	"github.com/jwalitptl/practice-local/pkg/logger"
	"github.com/jwalitptl/practice-local/pkg/validator"
)

// MaxFileSize bounds inline file documents.
const MaxFileSize = 10 << 20

type DocumentService interface {
	ListByPatient(ctx context.Context, patientID int64) ([]model.Document, error)
	Get(ctx context.Context, id int64) (*model.Document, error)
	Create(ctx context.Context, req *model.CreateDocumentRequest) (*model.Document, error)
	Update(ctx context.Context, id int64, req *model.UpdateDocumentRequest) (*model.Document, error)
	Delete(ctx context.Context, id int64) error
	TogglePin(ctx context.Context, id int64) (*model.Document, error)
}

type Service struct {
	repo      repository.DocumentRepository
	validator validator.Validator
	log       *logger.Logger
}

func NewService(repo repository.DocumentRepository, v validator.Validator, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{repo: repo, validator: v, log: log.Component("document-service")}
}

func (s *Service) ListByPatient(ctx context.Context, patientID int64) ([]model.Document, error) {
	docs, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return Sort(docs), nil
}

// Sort orders documents pinned first, then newest first.
func Sort(docs []*model.Document) []model.Document {
	out := make([]model.Document, 0, len(docs))
	for _, d := range docs {
		out = append(out, *d)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Pinned != out[j].Pinned {
			return out[i].Pinned
		}
		return out[i].CreatedAt.After(out[j].CreatedAt.Time)
	})
	return out
}

func (s *Service) Get(ctx context.Context, id int64) (*model.Document, error) {
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return d, nil
}

func (s *Service) Create(ctx context.Context, req *model.CreateDocumentRequest) (*model.Document, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	d := &model.Document{
		PatientID:   req.PatientID,
		Kind:        req.Kind,
		Type:        strings.TrimSpace(req.Type),
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Pinned:      req.Pinned,
		TargetDate:  req.TargetDate,
	}

	switch req.Kind {
	case model.DocumentKindFile:
		d.FileData = req.FileData
		d.FileName = req.FileName
		d.FileSize = int64(len(req.FileData))
		d.MimeType = req.MimeType
		if d.MimeType == "" && len(req.FileData) > 0 {
			d.MimeType = http.DetectContentType(req.FileData)
		}
	default:
		d.Content = strings.TrimSpace(req.Content)
	}

	if err := checkPayload(d); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}
	s.log.Info("document created", "document_id", d.ID, "kind", string(d.Kind))
	return d, nil
}

// Update patches a document; the payload of its kind must stay valid.
func (s *Service) Update(ctx context.Context, id int64, req *model.UpdateDocumentRequest) (*model.Document, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	patch := *req
	patch.FileSize = nil
	merged := *current
	if current.Kind == model.DocumentKindFile {
		patch.Content = nil
		if len(req.FileData) > 0 {
			merged.FileData = req.FileData
			if err := checkPayload(&merged); err != nil {
				return nil, err
			}
			size := int64(len(req.FileData))
			patch.FileSize = &size
			if req.MimeType == nil {
				mime := http.DetectContentType(req.FileData)
				patch.MimeType = &mime
			}
		}
	} else {
		patch.FileData, patch.FileName, patch.MimeType = nil, nil, nil
		if req.Content != nil {
			merged.Content = strings.TrimSpace(*req.Content)
			if err := checkPayload(&merged); err != nil {
				return nil, err
			}
			patch.Content = &merged.Content
		}
	}

	d, err := s.repo.Update(ctx, id, &patch)
	if err != nil {
		return nil, fmt.Errorf("failed to update document: %w", err)
	}
	return d, nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

func (s *Service) TogglePin(ctx context.Context, id int64) (*model.Document, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	pinned := !current.Pinned
	d, err := s.repo.Update(ctx, id, &model.UpdateDocumentRequest{Pinned: &pinned})
	if err != nil {
		return nil, fmt.Errorf("failed to pin document: %w", err)
	}
	return d, nil
}

func checkPayload(d *model.Document) error {
	var fields []errors.FieldError
	switch d.Kind {
	case model.DocumentKindFile:
		switch {
		case len(d.FileData) == 0:
			fields = append(fields, errors.FieldError{Field: "fileData", Rule: "required", Message: "is required"})
		case len(d.FileData) > MaxFileSize:
			fields = append(fields, errors.FieldError{Field: "fileData", Rule: "max", Message: "is too large"})
		}
	case model.DocumentKindLink:
		if u, err := url.ParseRequestURI(d.Content); err != nil || u.Scheme == "" || u.Host == "" {
			fields = append(fields, errors.FieldError{Field: "content", Rule: "url", Message: "must be a valid URL"})
		}
	case model.DocumentKindText:
		if d.Content == "" {
			fields = append(fields, errors.FieldError{Field: "content", Rule: "required", Message: "is required"})
		}
	}
	if len(fields) > 0 {
		return errors.NewValidation(fields...)
	}
	return nil
}
