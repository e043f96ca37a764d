package db

import "time"

// ===========================
// COVERAGE MODELS
// ===========================

// Technician is an on-call responder. Coverage intervals reference it by ID.
type Technician struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email,omitempty"`
}

// CoverageInterval is one on-call schedule entry. StartAt and EndAt are
// local wall-clock readings in the configured timezone; the zone attached to
// the time.Time values by the driver carries no meaning.
type CoverageInterval struct {
	ID           string    `json:"id"`
	TechnicianID string    `json:"technician_id"`
	StartAt      time.Time `json:"start_at"`
	EndAt        time.Time `json:"end_at"`

	// Populated via JOIN
	Technician Technician `json:"technician"`
}

// BusinessHourWindow is the staffed range for one weekday (0=Monday..6=Sunday)
type BusinessHourWindow struct {
	DayOfWeek int       `json:"day_of_week"`
	StartTime TimeOfDay `json:"start_time"`
	EndTime   TimeOfDay `json:"end_time"`
}

// Holiday marks a whole local date as outside coverage
type Holiday struct {
	ID          string `json:"id"`
	Date        Date   `json:"date"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Notified    bool   `json:"notified"`
}

// ===========================
// TICKET MODELS
// ===========================

// Ticket is a ticket pulled from the external ticketing source.
// ExternalID is unique; CreatedAt is the source-reported instant in UTC.
type Ticket struct {
	ID          string    `json:"id"`
	ExternalID  string    `json:"external_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	Priority    string    `json:"priority"`
	Status      string    `json:"status"`
	Client      string    `json:"client"`
	Requester   string    `json:"requester"`
	Notified    bool      `json:"notified"`
	IngestedAt  time.Time `json:"ingested_at"`
}

// NotificationLog records one SMS attempt for a ticket
type NotificationLog struct {
	ID              string    `json:"id"`
	TicketID        string    `json:"ticket_id"`
	TechnicianID    string    `json:"technician_id"`
	Recipient       string    `json:"recipient"`
	Status          string    `json:"status"` // sent, failed, skipped
	FailureCategory string    `json:"failure_category,omitempty"`
	ErrorCode       int       `json:"error_code,omitempty"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	ProviderSID     string    `json:"provider_sid,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

const (
	NotificationStatusSent    = "sent"
	NotificationStatusFailed  = "failed"
	NotificationStatusSkipped = "skipped"
)

// ===========================
// SETTINGS
// ===========================

// SystemSetting is an opaque runtime-tunable key/value pair
type SystemSetting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
