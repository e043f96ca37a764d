package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/phonginreallife/oncall-notifier/db"
)

// TicketService persists ingested tickets and their notification logs
type TicketService struct {
	PG *sql.DB
}

func NewTicketService(pg *sql.DB) *TicketService {
	return &TicketService{PG: pg}
}

const ticketColumns = `id, external_id, title, description, created_at, priority, status, client, requester, notified, ingested_at`

func scanTicket(scan func(dest ...interface{}) error) (db.Ticket, error) {
	var (
		t          db.Ticket
		createdAt  db.Timestamp
		ingestedAt db.Timestamp
	)
	err := scan(&t.ID, &t.ExternalID, &t.Title, &t.Description, &createdAt,
		&t.Priority, &t.Status, &t.Client, &t.Requester, &t.Notified, &ingestedAt)
	if err != nil {
		return t, err
	}
	t.CreatedAt = createdAt.Time.UTC()
	t.IngestedAt = ingestedAt.Time.UTC()
	return t, nil
}

// Exists reports whether a ticket with externalID was already ingested
func (s *TicketService) Exists(ctx context.Context, q db.Querier, externalID string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM tickets WHERE external_id = $1`, externalID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check ticket %s: %w", externalID, err)
	}
	return true, nil
}

func (s *TicketService) Create(ctx context.Context, q db.Querier, t db.Ticket) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO tickets (id, external_id, title, description, created_at, priority, status, client, requester, notified, ingested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, t.ID, t.ExternalID, t.Title, t.Description, t.CreatedAt.UTC(), t.Priority, t.Status,
		t.Client, t.Requester, t.Notified, t.IngestedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create ticket %s: %w", t.ExternalID, err)
	}
	return nil
}

// MarkNotified flips notified false->true. It reports whether this call
// changed it.
func (s *TicketService) MarkNotified(ctx context.Context, q db.Querier, ticketID string) (bool, error) {
	res, err := q.ExecContext(ctx, `UPDATE tickets SET notified = $1 WHERE id = $2 AND notified = $3`, true, ticketID, false)
	if err != nil {
		return false, fmt.Errorf("failed to mark ticket notified: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, nil
	}
	return n > 0, nil
}

func (s *TicketService) GetByExternalID(ctx context.Context, q db.Querier, externalID string) (db.Ticket, error) {
	row := q.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE external_id = $1`, externalID)
	t, err := scanTicket(row.Scan)
	if err != nil {
		return t, fmt.Errorf("failed to get ticket %s: %w", externalID, err)
	}
	return t, nil
}

// ListRecent returns the newest tickets first
func (s *TicketService) ListRecent(ctx context.Context, limit int) ([]db.Ticket, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.PG.QueryContext(ctx, `SELECT `+ticketColumns+` FROM tickets ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	defer rows.Close()

	tickets := []db.Ticket{}
	for rows.Next() {
		t, err := scanTicket(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ticket: %w", err)
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

// LogNotification records one SMS attempt
func (s *TicketService) LogNotification(ctx context.Context, q db.Querier, entry db.NotificationLog) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO notification_logs (id, ticket_id, technician_id, recipient, status, failure_category,
		                               error_code, error_message, provider_sid, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, entry.ID, entry.TicketID, entry.TechnicianID, entry.Recipient, entry.Status, entry.FailureCategory,
		entry.ErrorCode, entry.ErrorMessage, entry.ProviderSID, entry.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to log notification for ticket %s: %w", entry.TicketID, err)
	}
	return nil
}

// ListNotificationLogs returns the attempts for a ticket in insertion order
func (s *TicketService) ListNotificationLogs(ctx context.Context, ticketID string) ([]db.NotificationLog, error) {
	rows, err := s.PG.QueryContext(ctx, `
		SELECT id, ticket_id, technician_id, recipient, status, failure_category,
		       error_code, error_message, provider_sid, created_at
		FROM notification_logs
		WHERE ticket_id = $1
		ORDER BY created_at, id
	`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notification logs: %w", err)
	}
	defer rows.Close()

	var logs []db.NotificationLog
	for rows.Next() {
		var (
			entry     db.NotificationLog
			createdAt db.Timestamp
		)
		if err := rows.Scan(&entry.ID, &entry.TicketID, &entry.TechnicianID, &entry.Recipient, &entry.Status,
			&entry.FailureCategory, &entry.ErrorCode, &entry.ErrorMessage, &entry.ProviderSID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification log: %w", err)
		}
		entry.CreatedAt = createdAt.Time
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}
