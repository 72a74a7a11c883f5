package model

type DocumentKind string

const (
	DocumentKindFile DocumentKind = "file"
	DocumentKindText DocumentKind = "text"
	DocumentKindLink DocumentKind = "link"
)

// Document is an attachment kept in the goals collection. File documents
// carry the bytes inline; text and link documents carry Content.
type Document struct {
	Base
	PatientID   int64        `json:"patientId"`
	Kind        DocumentKind `json:"kind"`
	Type        string       `json:"type"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Pinned      bool         `json:"pinned"`
	FileData    []byte       `json:"fileData,omitempty"`
	FileName    string       `json:"fileName,omitempty"`
	MimeType    string       `json:"mimeType,omitempty"`
	FileSize    int64        `json:"fileSize,omitempty"`
	Content     string       `json:"content,omitempty"`
	Status      string       `json:"status,omitempty"`
	TargetDate  *Time        `json:"targetDate,omitempty"`
	Progress    int          `json:"progress"`
}

// Complete reports whether the kind-specific payload is present.
func (d *Document) Complete() bool {
	switch d.Kind {
	case DocumentKindFile:
		return len(d.FileData) > 0
	case DocumentKindText, DocumentKindLink:
		return d.Content != ""
	}
	return false
}

type CreateDocumentRequest struct {
	PatientID   int64        `json:"patientId" validate:"required,gt=0"`
	Kind        DocumentKind `json:"kind" validate:"required,oneof=file text link"`
	Type        string       `json:"type" validate:"required,max=100"`
	Title       string       `json:"title" validate:"required,max=200"`
	Description string       `json:"description,omitempty" validate:"max=2000"`
	Pinned      bool         `json:"pinned"`
	FileData    []byte       `json:"fileData,omitempty"`
	FileName    string       `json:"fileName,omitempty" validate:"required_if=Kind file,max=255"`
	MimeType    string       `json:"mimeType,omitempty" validate:"max=255"`
	Content     string       `json:"content,omitempty" validate:"required_unless=Kind file"`
	TargetDate  *Time        `json:"targetDate,omitempty"`
}

type UpdateDocumentRequest struct {
	Type        *string `json:"type,omitempty" validate:"omitnil,min=1,max=100"`
	Title       *string `json:"title,omitempty" validate:"omitnil,min=1,max=200"`
	Description *string `json:"description,omitempty" validate:"omitnil,max=2000"`
	Pinned      *bool   `json:"pinned,omitempty"`
	FileData    []byte  `json:"fileData,omitempty"`
	FileName    *string `json:"fileName,omitempty" validate:"omitnil,min=1,max=255"`
	MimeType    *string `json:"mimeType,omitempty" validate:"omitnil,max=255"`
	FileSize    *int64  `json:"fileSize,omitempty" validate:"omitnil,gte=0"`
	Content     *string `json:"content,omitempty" validate:"omitnil,min=1"`
	Status      *string `json:"status,omitempty" validate:"omitnil,max=50"`
	TargetDate  *Time   `json:"targetDate,omitempty"`
	Progress    *int    `json:"progress,omitempty" validate:"omitnil,gte=0,lte=100"`
}
