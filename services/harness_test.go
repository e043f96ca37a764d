package services

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/phonginreallife/oncall-notifier/db"
)

// newTestDB opens a migrated SQLite database in a temp dir
func newTestDB(tb testing.TB) *sql.DB {
	tb.Helper()
	ctx := context.Background()

	pg, dialect, err := db.Open(ctx, "sqlite://"+filepath.Join(tb.TempDir(), "oncall.db"))
	require.NoError(tb, err)
	tb.Cleanup(func() { pg.Close() })

	require.NoError(tb, db.Migrate(ctx, pg, dialect))
	return pg
}

func seedTechnician(tb testing.TB, pg *sql.DB, id, name, phone string) {
	tb.Helper()
	_, err := pg.Exec(`INSERT INTO technicians (id, name, phone, email) VALUES ($1, $2, $3, $4)`, id, name, phone, "")
	require.NoError(tb, err)
}

func seedInterval(tb testing.TB, pg *sql.DB, id, techID string, start, end time.Time) {
	tb.Helper()
	_, err := pg.Exec(`INSERT INTO coverage_intervals (id, technician_id, start_at, end_at) VALUES ($1, $2, $3, $4)`,
		id, techID, start, end)
	require.NoError(tb, err)
}

func seedWindow(tb testing.TB, pg *sql.DB, weekday int, start, end string) {
	tb.Helper()
	_, err := pg.Exec(`INSERT INTO business_hours (day_of_week, start_time, end_time) VALUES ($1, $2, $3)`, weekday, start, end)
	require.NoError(tb, err)
}

func seedHoliday(tb testing.TB, pg *sql.DB, id, date, name string) {
	tb.Helper()
	_, err := pg.Exec(`INSERT INTO holidays (id, date, name, description, notified) VALUES ($1, $2, $3, $4, $5)`,
		id, date, name, "", false)
	require.NoError(tb, err)
}

type fakeSource struct {
	mu    sync.Mutex
	items []AteraTicket
	err   error
	calls int
	keys  []string
}

func (f *fakeSource) FetchOpenTickets(_ context.Context, apiKey string) ([]AteraTicket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.keys = append(f.keys, apiKey)
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

type sentSMS struct {
	From, To, Body string
}

type fakeSender struct {
	mu     sync.Mutex
	sent   []sentSMS
	failTo map[string]error
}

func (f *fakeSender) Send(_ context.Context, from, to, body string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failTo[to]; ok {
		return "", err
	}
	f.sent = append(f.sent, sentSMS{From: from, To: to, Body: body})
	return "SM" + to, nil
}

func (f *fakeSender) messages() []sentSMS {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentSMS(nil), f.sent...)
}

type testEnv struct {
	pg       *sql.DB
	source   *fakeSource
	sender   *fakeSender
	settings *SettingsService
	tickets  *TicketService
	ingestor *TicketIngestor
}

// newTestEnv wires the cycle against SQLite with a fixed clock
func newTestEnv(tb testing.TB, now time.Time) *testEnv {
	tb.Helper()
	pg := newTestDB(tb)
	log := zap.NewNop()
	clock := func() time.Time { return now }

	settings := NewSettingsService(pg, log, map[string]string{
		"atera_api_key":       "atera-test-key",
		"twilio_phone_number": "+15550000000",
	})
	settings.now = clock

	calendar := NewCalendarService()
	tickets := NewTicketService(pg)
	onCall := NewOnCallService(pg, settings, calendar)
	onCall.now = clock

	source := &fakeSource{}
	sender := &fakeSender{failTo: map[string]error{}}

	notification := NewNotificationService(tickets, onCall, calendar, sender, settings, "", log)
	notification.now = clock

	ingestor := NewTicketIngestor(pg, source, settings, tickets, calendar, notification, log)
	ingestor.now = clock

	return &testEnv{
		pg:       pg,
		source:   source,
		sender:   sender,
		settings: settings,
		tickets:  tickets,
		ingestor: ingestor,
	}
}

func (e *testEnv) ticket(tb testing.TB, externalID string) db.Ticket {
	tb.Helper()
	t, err := e.tickets.GetByExternalID(context.Background(), e.pg, externalID)
	require.NoError(tb, err)
	return t
}

func (e *testEnv) holidayNotified(tb testing.TB, id string) bool {
	tb.Helper()
	var notified bool
	require.NoError(tb, e.pg.QueryRow(`SELECT notified FROM holidays WHERE id = $1`, id).Scan(&notified))
	return notified
}

func (e *testEnv) countTickets(tb testing.TB) int {
	tb.Helper()
	var n int
	require.NoError(tb, e.pg.QueryRow(`SELECT COUNT(*) FROM tickets`).Scan(&n))
	return n
}
