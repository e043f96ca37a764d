package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/phonginreallife/oncall-notifier/db"
	"github.com/phonginreallife/oncall-notifier/internal/coverage"
	"github.com/phonginreallife/oncall-notifier/internal/logger"
)

const DefaultTicketLinkBase = "https://app.atera.com/new/ticket/"

// FormatTicketMessage renders the SMS body for a ticket. holiday may be nil.
func FormatTicketMessage(ticket *db.Ticket, holiday *db.Holiday, linkBase string) string {
	if linkBase == "" {
		linkBase = DefaultTicketLinkBase
	}
	banner := ""
	if holiday != nil {
		banner = fmt.Sprintf(" (Holiday: %s)", holiday.Name)
	}

	var b strings.Builder
	b.WriteString("New On Call Ticket" + banner + "\n")
	b.WriteString("Client: " + orUnknown(ticket.Client) + "\n")
	b.WriteString("User: " + orUnknown(ticket.Requester) + "\n")
	b.WriteString("Subject: " + ticket.Title + "\n")
	b.WriteString("Link: " + linkBase + ticket.ExternalID)
	return b.String()
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}

// SendOutcome is the result of notifying one technician
type SendOutcome struct {
	TechnicianID    string          `json:"technician_id"`
	Recipient       string          `json:"recipient"`
	Status          string          `json:"status"`
	Category        FailureCategory `json:"category,omitempty"`
	ProviderSID     string          `json:"provider_sid,omitempty"`
	AlreadyNotified bool            `json:"already_notified,omitempty"`
	Err             error           `json:"-"`
}

// Accepted reports whether the transport took the message, or the ticket was
// already notified
func (o SendOutcome) Accepted() bool {
	return o.AlreadyNotified || o.Status == db.NotificationStatusSent
}

// DispatchResult summarises notification work for one ticket
type DispatchResult struct {
	Eligible          bool          `json:"eligible"`
	CoveredAtCreation bool          `json:"covered_at_creation"`
	Holiday           *db.Holiday   `json:"holiday,omitempty"`
	Responders        int           `json:"responders"`
	Accepted          int           `json:"accepted"`
	Failed            int           `json:"failed"`
	Skipped           int           `json:"skipped"`
	Notified          bool          `json:"notified"`
	HolidayMarked     bool          `json:"holiday_marked"`
	Outcomes          []SendOutcome `json:"outcomes,omitempty"`
}

// NotificationService sends ticket alerts to on-call technicians
type NotificationService struct {
	Tickets     *TicketService
	OnCall      *OnCallService
	Calendar    *CalendarService
	Sender      SMSSender
	Credentials CredentialsProvider

	linkBase string
	logger   *zap.Logger
	now      func() time.Time
}

func NewNotificationService(tickets *TicketService, onCall *OnCallService, calendar *CalendarService,
	sender SMSSender, credentials CredentialsProvider, linkBase string, log *zap.Logger) *NotificationService {
	if linkBase == "" {
		linkBase = DefaultTicketLinkBase
	}
	return &NotificationService{
		Tickets:     tickets,
		OnCall:      onCall,
		Calendar:    calendar,
		Sender:      sender,
		Credentials: credentials,
		linkBase:    linkBase,
		logger:      logger.OrNop(log),
		now:         time.Now,
	}
}

// DispatchTicket alerts every active responder when the ticket arrived
// outside coverage or today is a holiday. The ticket is marked notified when
// at least one send is accepted. Returned errors are persistence errors;
// transport failures are recorded in the result.
func (s *NotificationService) DispatchTicket(ctx context.Context, q db.Querier, ticket *db.Ticket, cal *coverage.Calendar) (*DispatchResult, error) {
	now := coverage.At(s.now())
	holiday := cal.HolidayOn(now)
	covered := cal.IsCovered(coverage.At(ticket.CreatedAt))

	res := &DispatchResult{
		CoveredAtCreation: covered,
		Holiday:           holiday,
		Notified:          ticket.Notified,
	}
	if holiday == nil && covered {
		s.logger.Debug("Ticket created within business hours, not notifying",
			zap.String("external_id", ticket.ExternalID))
		return res, nil
	}
	res.Eligible = true

	responders, err := s.OnCall.ActiveResponders(ctx, q, now, cal.Location())
	if err != nil {
		return res, err
	}
	res.Responders = len(responders)
	if len(responders) == 0 {
		s.logger.Warn("No technicians on call, ticket left unnotified",
			zap.String("external_id", ticket.ExternalID))
		return res, nil
	}

	for _, tech := range responders {
		outcome, err := s.Notify(ctx, q, tech, ticket, holiday)
		if err != nil {
			return res, err
		}
		res.Outcomes = append(res.Outcomes, outcome)
		switch {
		case outcome.Accepted():
			res.Accepted++
		case outcome.Status == db.NotificationStatusSkipped:
			res.Skipped++
		default:
			res.Failed++
		}
	}

	if res.Accepted == 0 || ticket.Notified {
		return res, nil
	}

	if _, err := s.Tickets.MarkNotified(ctx, q, ticket.ID); err != nil {
		return res, err
	}
	ticket.Notified = true
	res.Notified = true

	if holiday != nil && !holiday.Notified {
		marked, err := s.Calendar.MarkHolidayNotified(ctx, q, holiday.ID)
		if err != nil {
			return res, err
		}
		holiday.Notified = true
		res.HolidayMarked = marked
	}

	s.logger.Info("Ticket notified",
		zap.String("external_id", ticket.ExternalID),
		zap.Int("accepted", res.Accepted),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

// Notify sends the ticket alert to one technician and records the attempt
// through q. A ticket that is already notified is not sent again.
func (s *NotificationService) Notify(ctx context.Context, q db.Querier, tech db.Technician, ticket *db.Ticket, holiday *db.Holiday) (SendOutcome, error) {
	outcome := SendOutcome{TechnicianID: tech.ID, Recipient: tech.Phone}
	if ticket.Notified {
		outcome.AlreadyNotified = true
		return outcome, nil
	}

	if strings.TrimSpace(tech.Phone) == "" {
		s.logger.Warn("Technician has no phone number",
			zap.String("technician_id", tech.ID),
			zap.String("technician", tech.Name),
		)
		outcome.Status = db.NotificationStatusSkipped
		return outcome, s.record(ctx, q, ticket, outcome, "technician has no phone number", 0)
	}

	from := s.Credentials.TwilioCredentials(ctx).PhoneNumber
	if from == "" {
		outcome.Err = ErrSMSNotConfigured
	} else {
		body := FormatTicketMessage(ticket, holiday, s.linkBase)
		outcome.ProviderSID, outcome.Err = s.Sender.Send(ctx, from, tech.Phone, body)
	}

	if outcome.Err == nil {
		outcome.Status = db.NotificationStatusSent
		return outcome, s.record(ctx, q, ticket, outcome, "", 0)
	}

	outcome.Status = db.NotificationStatusFailed
	outcome.Category = ClassifySendError(outcome.Err)
	code := 0
	var sendErr *SendError
	if errors.As(outcome.Err, &sendErr) {
		code = sendErr.Code
	}
	s.logSendFailure(tech, ticket, outcome, code)
	return outcome, s.record(ctx, q, ticket, outcome, outcome.Err.Error(), code)
}

func (s *NotificationService) logSendFailure(tech db.Technician, ticket *db.Ticket, outcome SendOutcome, code int) {
	fields := []zap.Field{
		zap.String("technician_id", tech.ID),
		zap.String("technician", tech.Name),
		zap.String("recipient", tech.Phone),
		zap.String("external_id", ticket.ExternalID),
		zap.String("category", string(outcome.Category)),
		zap.Int("code", code),
		zap.Error(outcome.Err),
	}

	switch outcome.Category {
	case FailureInvalidDestination:
		s.logger.Error("Invalid phone number format", fields...)
	case FailurePermission:
		s.logger.Error("Not permitted to message this number", fields...)
	case FailureMessageTooLong:
		s.logger.Error("SMS body too long", fields...)
	case FailureAuthentication:
		s.logger.Error("SMS provider authentication failed, check credentials", fields...)
	case FailureNotConfigured:
		s.logger.Error("SMS is not configured", fields...)
	default:
		s.logger.Error("Failed to send SMS", fields...)
	}
}

func (s *NotificationService) record(ctx context.Context, q db.Querier, ticket *db.Ticket, outcome SendOutcome, message string, code int) error {
	return s.Tickets.LogNotification(ctx, q, db.NotificationLog{
		ID:              uuid.New().String(),
		TicketID:        ticket.ID,
		TechnicianID:    outcome.TechnicianID,
		Recipient:       outcome.Recipient,
		Status:          outcome.Status,
		FailureCategory: string(outcome.Category),
		ErrorCode:       code,
		ErrorMessage:    message,
		ProviderSID:     outcome.ProviderSID,
		CreatedAt:       s.now(),
	})
}
