package services

import (
	"context"
	"database/sql"
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

// Outcome of a cycle or of one ticket within it
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeSkipped Outcome = "skipped" // recoverable, retried next cycle
	OutcomeFailed  Outcome = "failed"
)

// Per-ticket states
const (
	TicketCreated   = "created"
	TicketDuplicate = "duplicate"
	TicketFailed    = "failed"
)

// TicketResult is what happened to one source record
type TicketResult struct {
	ExternalID string          `json:"external_id"`
	State      string          `json:"state"`
	Degraded   bool            `json:"degraded,omitempty"` // creation time fell back to now
	Dispatch   *DispatchResult `json:"dispatch,omitempty"`
	Err        error           `json:"-"`
}

// CycleResult is the outcome of one ingest-and-dispatch pass
type CycleResult struct {
	CycleID    string         `json:"cycle_id"`
	Outcome    Outcome        `json:"outcome"`
	StartedAt  time.Time      `json:"started_at"`
	Duration   time.Duration  `json:"duration"`
	LastCheck  string         `json:"last_check"`
	Fetched    int            `json:"fetched"`
	Introduced []db.Ticket    `json:"introduced"`
	Notified   int            `json:"notified"`
	Tickets    []TicketResult `json:"tickets,omitempty"`
	Err        error          `json:"-"`
}

func (r *CycleResult) Message() string {
	switch r.Outcome {
	case OutcomeOK:
		return fmt.Sprintf("Fetched %d tickets, %d new, %d notified", r.Fetched, len(r.Introduced), r.Notified)
	case OutcomeSkipped:
		return fmt.Sprintf("Cycle skipped: %v", r.Err)
	default:
		return fmt.Sprintf("Cycle failed: %v", r.Err)
	}
}

// TicketIngestor pulls open tickets, stores the new ones and dispatches
// alerts for them in one transaction per cycle.
type TicketIngestor struct {
	PG           *sql.DB
	Source       TicketSource
	Settings     *SettingsService
	Tickets      *TicketService
	Calendar     *CalendarService
	Notification *NotificationService

	logger *zap.Logger
	now    func() time.Time
}

func NewTicketIngestor(pg *sql.DB, source TicketSource, settings *SettingsService, tickets *TicketService,
	calendar *CalendarService, notification *NotificationService, log *zap.Logger) *TicketIngestor {
	return &TicketIngestor{
		PG:           pg,
		Source:       source,
		Settings:     settings,
		Tickets:      tickets,
		Calendar:     calendar,
		Notification: notification,
		logger:       logger.OrNop(log),
		now:          time.Now,
	}
}

// Ingest runs one cycle. It never returns nil. Introduced is empty unless
// the cycle committed.
func (s *TicketIngestor) Ingest(ctx context.Context) *CycleResult {
	started := s.now()
	res := &CycleResult{
		CycleID:    uuid.New().String(),
		StartedAt:  started,
		Introduced: []db.Ticket{},
	}
	log := s.logger.With(zap.String("cycle_id", res.CycleID))
	defer func() { res.Duration = s.now().Sub(started) }()

	// Recorded before the fetch so failed cycles still show the attempt
	stamp, err := s.Settings.RecordTicketCheck(ctx, started)
	res.LastCheck = stamp
	if err != nil {
		log.Warn("Failed to record last ticket check", zap.Error(err))
	}

	apiKey := s.Settings.AteraAPIKey(ctx)
	if apiKey == "" {
		log.Error("Ticket source API key not configured")
		return s.skip(res, ErrMissingAPIKey)
	}

	items, err := s.Source.FetchOpenTickets(ctx, apiKey)
	if err != nil {
		log.Error("Failed to fetch tickets", zap.Error(err))
		return s.skip(res, err)
	}
	res.Fetched = len(items)

	loc := s.Settings.Location(ctx)

	// The cycle pins one connection so a failed commit can be cleared on it
	conn, err := s.PG.Conn(ctx)
	if err != nil {
		log.Error("Failed to acquire database connection", zap.Error(err))
		return s.skip(res, fmt.Errorf("failed to acquire connection: %w", err))
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		log.Error("Failed to begin cycle transaction", zap.Error(err))
		return s.skip(res, fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	cal, err := s.Calendar.Load(ctx, tx, loc)
	if err != nil {
		log.Error("Failed to load calendar", zap.Error(err))
		return s.skip(res, err)
	}

	var introduced []db.Ticket
	notified := 0
	for i, item := range items {
		tr, ticket := s.processTicket(ctx, tx, i, item, cal, log)
		res.Tickets = append(res.Tickets, tr)
		if ticket != nil {
			introduced = append(introduced, *ticket)
			if ticket.Notified {
				notified++
			}
		}
	}

	if err := tx.Commit(); err != nil {
		// SQLite leaves the transaction open when COMMIT fails on a deferred
		// constraint; Postgres has already ended it and only warns here.
		if _, rbErr := conn.ExecContext(context.WithoutCancel(ctx), "ROLLBACK"); rbErr != nil {
			log.Debug("No transaction left to roll back", zap.Error(rbErr))
		}
		log.Error("Failed to commit cycle, rolled back", zap.Error(err))
		res.Outcome = OutcomeFailed
		res.Err = fmt.Errorf("failed to commit cycle: %w", err)
		res.Notified = 0
		return res
	}

	res.Outcome = OutcomeOK
	if introduced != nil {
		res.Introduced = introduced
	}
	res.Notified = notified
	log.Info("Ticket cycle committed",
		zap.Int("fetched", res.Fetched),
		zap.Int("introduced", len(res.Introduced)),
		zap.Int("notified", res.Notified),
	)
	return res
}

func (s *TicketIngestor) skip(res *CycleResult, err error) *CycleResult {
	res.Outcome = OutcomeSkipped
	res.Err = err
	return res
}

// processTicket stores and dispatches one record inside its own savepoint.
// On failure only this record's writes are rolled back.
func (s *TicketIngestor) processTicket(ctx context.Context, tx *sql.Tx, index int, item AteraTicket,
	cal *coverage.Calendar, log *zap.Logger) (TicketResult, *db.Ticket) {
	tr := TicketResult{ExternalID: string(item.TicketID)}
	if tr.ExternalID == "" {
		log.Warn("Skipping ticket without identifier", zap.Int("index", index))
		tr.State = TicketFailed
		tr.Err = errors.New("ticket has no identifier")
		return tr, nil
	}
	log = log.With(zap.String("external_id", tr.ExternalID))

	savepoint := fmt.Sprintf("ticket_%d", index)
	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+savepoint); err != nil {
		log.Error("Failed to open ticket savepoint", zap.Error(err))
		tr.State = TicketFailed
		tr.Err = err
		return tr, nil
	}

	ticket, err := s.storeAndDispatch(ctx, tx, item, cal, &tr, log)
	if err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+savepoint); rbErr != nil {
			log.Error("Failed to roll back ticket savepoint", zap.Error(rbErr))
		}
		_, _ = tx.ExecContext(ctx, "RELEASE SAVEPOINT "+savepoint)
		log.Error("Failed to process ticket", zap.Error(err))
		tr.State = TicketFailed
		tr.Err = err
		return tr, nil
	}

	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+savepoint); err != nil {
		log.Error("Failed to release ticket savepoint", zap.Error(err))
		tr.State = TicketFailed
		tr.Err = err
		return tr, nil
	}
	return tr, ticket
}

func (s *TicketIngestor) storeAndDispatch(ctx context.Context, tx *sql.Tx, item AteraTicket,
	cal *coverage.Calendar, tr *TicketResult, log *zap.Logger) (*db.Ticket, error) {
	exists, err := s.Tickets.Exists(ctx, tx, tr.ExternalID)
	if err != nil {
		return nil, err
	}
	if exists {
		tr.State = TicketDuplicate
		return nil, nil
	}

	ticket, parseErr := normalizeTicket(item, s.now())
	if parseErr != nil {
		tr.Degraded = true
		log.Warn("Unusable ticket creation time, using current time",
			zap.String("raw", item.TicketCreatedDate),
			zap.Error(parseErr),
		)
	}

	if err := s.Tickets.Create(ctx, tx, ticket); err != nil {
		return nil, err
	}
	tr.State = TicketCreated

	dispatch, err := s.Notification.DispatchTicket(ctx, tx, &ticket, cal)
	tr.Dispatch = dispatch
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

// normalizeTicket maps a source record to a new Ticket. When the creation
// time is missing or malformed the ticket is stamped with now and the parse
// error is returned alongside it.
func normalizeTicket(item AteraTicket, now time.Time) (db.Ticket, error) {
	ticket := db.Ticket{
		ID:          uuid.New().String(),
		ExternalID:  string(item.TicketID),
		Title:       firstNonEmpty(item.TicketTitle, "No Title"),
		Description: item.FirstComment,
		Priority:    firstNonEmpty(item.TicketPriority, "Unknown"),
		Status:      firstNonEmpty(item.TicketStatus, "Unknown"),
		Client:      firstNonEmpty(item.CustomerName, "Unknown"),
		Requester:   firstNonEmpty(strings.TrimSpace(item.EndUserFirstName+" "+item.EndUserLastName), "Unknown"),
		IngestedAt:  now.UTC(),
	}

	createdAt, err := ParseSourceTimestamp(item.TicketCreatedDate)
	if err != nil {
		ticket.CreatedAt = now.UTC()
		return ticket, err
	}
	ticket.CreatedAt = createdAt
	return ticket, nil
}

// ParseSourceTimestamp parses the ISO-8601 creation time reported by the
// ticket source. Timestamps without an offset are UTC.
func ParseSourceTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("creation time is missing")
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02T15:04:05.999999999", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid creation time %q", raw)
	}
	return t.UTC(), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
