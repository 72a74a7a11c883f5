package model

type NoteType string

const (
	NoteTypeGeneral    NoteType = "general"
	NoteTypeSOAP       NoteType = "soap"
	NoteTypeAssessment NoteType = "assessment"
)

// Note content depends on Type: Content for general and assessment notes,
// the four SOAP sections for soap notes.
type Note struct {
	Base
	PatientID  *int64   `json:"patientId,omitempty"`
	SessionID  *int64   `json:"sessionId,omitempty"`
	Type       NoteType `json:"type"`
	Title      string   `json:"title,omitempty"`
	Content    string   `json:"content,omitempty"`
	Subjective string   `json:"subjective,omitempty"`
	Objective  string   `json:"objective,omitempty"`
	Assessment string   `json:"assessment,omitempty"`
	Plan       string   `json:"plan,omitempty"`
	Pinned     bool     `json:"pinned"`
}

// Personal reports whether the note is not attached to a patient.
func (n *Note) Personal() bool {
	return n.PatientID == nil
}

type CreateNoteRequest struct {
	PatientID  *int64   `json:"patientId,omitempty" validate:"omitnil,gt=0"`
	SessionID  *int64   `json:"sessionId,omitempty" validate:"omitnil,gt=0"`
	Type       NoteType `json:"type" validate:"required,oneof=general soap assessment"`
	Title      string   `json:"title,omitempty" validate:"max=200"`
	Content    string   `json:"content,omitempty"`
	Subjective string   `json:"subjective,omitempty"`
	Objective  string   `json:"objective,omitempty"`
	Assessment string   `json:"assessment,omitempty"`
	Plan       string   `json:"plan,omitempty"`
	Pinned     bool     `json:"pinned"`
}

type UpdateNoteRequest struct {
	Type       *NoteType `json:"type,omitempty" validate:"omitnil,oneof=general soap assessment"`
	Title      *string   `json:"title,omitempty" validate:"omitnil,max=200"`
	Content    *string   `json:"content,omitempty"`
	Subjective *string   `json:"subjective,omitempty"`
	Objective  *string   `json:"objective,omitempty"`
	Assessment *string   `json:"assessment,omitempty"`
	Plan       *string   `json:"plan,omitempty"`
	Pinned     *bool     `json:"pinned,omitempty"`
}

type NoteFilters struct {
	PatientID *int64
	// Personal selects notes without a patient; it wins over PatientID.
	Personal bool
}
