package model

import "strings"

type PatientStatus string

const (
	PatientStatusActive   PatientStatus = "active"
	PatientStatusArchived PatientStatus = "archived"
)

type EmergencyContact struct {
	Name         string `json:"name,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Relationship string `json:"relationship,omitempty"`
}

type Patient struct {
	Base
	FirstName        string            `json:"firstName"`
	LastName         string            `json:"lastName"`
	DisplayName      string            `json:"displayName,omitempty"`
	Email            string            `json:"email,omitempty"`
	Phone            string            `json:"phone,omitempty"`
	BirthDate        *Time             `json:"birthDate,omitempty"`
	EmergencyContact *EmergencyContact `json:"emergencyContact,omitempty"`
	Status           PatientStatus     `json:"status"`
	Tags             []string          `json:"tags"`
}

// Name returns the display-name override if set, otherwise "First Last".
func (p *Patient) Name() string {
	if strings.TrimSpace(p.DisplayName) != "" {
		return p.DisplayName
	}
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// PatientWithAppointments is the derived view computed on every fetch. It is never persisted.
type PatientWithAppointments struct {
	Patient
	AppointmentCount int   `json:"appointmentCount"`
	LastAppointment  *Time `json:"lastAppointment,omitempty"`
	NextAppointment  *Time `json:"nextAppointment,omitempty"`
}

type CreatePatientRequest struct {
	FirstName        string            `json:"firstName" validate:"required,notblank,max=100"`
	LastName         string            `json:"lastName" validate:"required,notblank,max=100"`
	DisplayName      string            `json:"displayName,omitempty" validate:"max=200"`
	Email            string            `json:"email,omitempty" validate:"omitempty,email"`
	Phone            string            `json:"phone,omitempty" validate:"max=40"`
	BirthDate        *Time             `json:"birthDate,omitempty"`
	EmergencyContact *EmergencyContact `json:"emergencyContact,omitempty"`
	Tags             []string          `json:"tags,omitempty" validate:"omitempty,dive,required,max=50"`
}

// UpdatePatientRequest is a partial patch: nil fields are left untouched.
type UpdatePatientRequest struct {
	FirstName        *string           `json:"firstName,omitempty" validate:"omitnil,notblank,max=100"`
	LastName         *string           `json:"lastName,omitempty" validate:"omitnil,notblank,max=100"`
	DisplayName      *string           `json:"displayName,omitempty" validate:"omitnil,max=200"`
	Email            *string           `json:"email,omitempty" validate:"omitempty,email"`
	Phone            *string           `json:"phone,omitempty" validate:"omitnil,max=40"`
	BirthDate        *Time             `json:"birthDate,omitempty"`
	EmergencyContact *EmergencyContact `json:"emergencyContact,omitempty"`
	Status           *PatientStatus    `json:"status,omitempty" validate:"omitnil,oneof=active archived"`
	Tags             *[]string         `json:"tags,omitempty" validate:"omitnil,dive,required,max=50"`
}

// Apply returns a copy of p with the patch applied, mirroring what the Record Store persists.
func (r *UpdatePatientRequest) Apply(p Patient) Patient {
	if r.FirstName != nil {
		p.FirstName = *r.FirstName
	}
	if r.LastName != nil {
		p.LastName = *r.LastName
	}
	if r.DisplayName != nil {
		p.DisplayName = *r.DisplayName
	}
	if r.Email != nil {
		p.Email = *r.Email
	}
	if r.Phone != nil {
		p.Phone = *r.Phone
	}
	if r.BirthDate != nil {
		bd := *r.BirthDate
		p.BirthDate = &bd
	}
	if r.EmergencyContact != nil {
		ec := *r.EmergencyContact
		p.EmergencyContact = &ec
	}
	if r.Status != nil {
		p.Status = *r.Status
	}
	if r.Tags != nil {
		p.Tags = append([]string{}, (*r.Tags)...)
	} else if p.Tags != nil {
		p.Tags = append([]string{}, p.Tags...)
	}
	return p
}

type PatientFilters struct {
	ShowArchived bool `json:"showArchived"`
}
