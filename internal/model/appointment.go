package model

import "time"

type AppointmentStatus string

const (
	AppointmentStatusScheduled   AppointmentStatus = "scheduled"
	AppointmentStatusCompleted   AppointmentStatus = "completed"
	AppointmentStatusCancelled   AppointmentStatus = "cancelled"
	AppointmentStatusNoShow      AppointmentStatus = "no_show"
	AppointmentStatusRescheduled AppointmentStatus = "rescheduled"
)

type PaymentInfo struct {
	IsPaid        bool   `json:"isPaid"`
	PaidAt        *Time  `json:"paidAt,omitempty"`
	PaymentMethod string `json:"paymentMethod,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

type Appointment struct {
	Base
	PatientID          int64             `json:"patientId"`
	Date               Time              `json:"date"`
	Duration           int               `json:"duration"`
	Status             AppointmentStatus `json:"status"`
	Type               string            `json:"type,omitempty"`
	Notes              string            `json:"notes,omitempty"`
	Price              *float64          `json:"price"`
	PaymentInfo        *PaymentInfo      `json:"paymentInfo"`
	ReminderSent       bool              `json:"reminderSent"`
	ReminderSentAt     *Time             `json:"reminderSentAt,omitempty"`
	RescheduledFromID  *int64            `json:"rescheduledFromId,omitempty"`
	RescheduledToID    *int64            `json:"rescheduledToId,omitempty"`
	CancelledAt        *Time             `json:"cancelledAt,omitempty"`
	CancellationReason string            `json:"cancellationReason,omitempty"`
}

// End is the instant the appointment's duration elapses.
func (a *Appointment) End() time.Time {
	return a.Date.Add(time.Duration(a.Duration) * time.Minute)
}

type CreateAppointmentRequest struct {
	PatientID int64     `json:"patientId" validate:"required,gt=0"`
	Date      time.Time `json:"date" validate:"required"`
	Duration  int       `json:"duration" validate:"required,gt=0,max=1440"`
	Type      string    `json:"type,omitempty" validate:"max=100"`
	Notes     string    `json:"notes,omitempty" validate:"max=2000"`
	Price     *float64  `json:"price,omitempty" validate:"omitnil,gte=0"`
}

// UpdateAppointmentRequest is a partial patch: nil fields are left untouched.
type UpdateAppointmentRequest struct {
	Date               *Time              `json:"date,omitempty"`
	Duration           *int               `json:"duration,omitempty" validate:"omitnil,gt=0,max=1440"`
	Status             *AppointmentStatus `json:"status,omitempty" validate:"omitnil,oneof=scheduled completed cancelled no_show rescheduled"`
	Type               *string            `json:"type,omitempty" validate:"omitnil,max=100"`
	Notes              *string            `json:"notes,omitempty" validate:"omitnil,max=2000"`
	Price              *float64           `json:"price,omitempty" validate:"omitnil,gte=0"`
	PaymentInfo        *PaymentInfo       `json:"paymentInfo,omitempty"`
	ReminderSent       *bool              `json:"reminderSent,omitempty"`
	ReminderSentAt     *Time              `json:"reminderSentAt,omitempty"`
	RescheduledFromID  *int64             `json:"rescheduledFromId,omitempty"`
	RescheduledToID    *int64             `json:"rescheduledToId,omitempty"`
	CancelledAt        *Time              `json:"cancelledAt,omitempty"`
	CancellationReason *string            `json:"cancellationReason,omitempty" validate:"omitnil,max=500"`
}

type AppointmentFilters struct {
	PatientID int64
	Status    AppointmentStatus
	From      time.Time
	To        time.Time
}
