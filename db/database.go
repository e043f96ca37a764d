package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect identifies the SQL backend behind a *sql.DB
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Querier is satisfied by both *sql.DB and *sql.Tx
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// ParseDatabaseURL resolves the driver name and DSN for a database URL.
// postgres:// and postgresql:// go to lib/pq. sqlite://path, file:path and
// bare paths go to modernc sqlite.
func ParseDatabaseURL(databaseURL string) (Dialect, string, error) {
	databaseURL = strings.TrimSpace(databaseURL)
	if databaseURL == "" {
		return "", "", fmt.Errorf("database url is empty")
	}

	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return DialectPostgres, postgresDSN(databaseURL), nil
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return DialectSQLite, sqliteDSN(strings.TrimPrefix(databaseURL, "sqlite://")), nil
	case strings.HasPrefix(databaseURL, "file:"):
		return DialectSQLite, sqliteDSN(strings.TrimPrefix(databaseURL, "file:")), nil
	case strings.Contains(databaseURL, "://"):
		return "", "", fmt.Errorf("unsupported database url scheme: %s", databaseURL)
	default:
		return DialectSQLite, sqliteDSN(databaseURL), nil
	}
}

// postgresDSN pins every pooled session to UTC. lib/pq forwards unknown
// URL parameters as session settings.
func postgresDSN(databaseURL string) string {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return databaseURL
	}
	q := u.Query()
	if q.Get("timezone") == "" {
		q.Set("timezone", "UTC")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func sqliteDSN(path string) string {
	path, rawQuery, _ := strings.Cut(path, "?")
	q, err := url.ParseQuery(rawQuery)
	if err != nil {
		q = url.Values{}
	}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "foreign_keys(1)")
	if q.Get("_time_format") == "" {
		q.Set("_time_format", "sqlite")
	}
	return "file:" + path + "?" + q.Encode()
}

// Open connects to the database named by databaseURL and verifies the
// connection.
func Open(ctx context.Context, databaseURL string) (*sql.DB, Dialect, error) {
	dialect, dsn, err := ParseDatabaseURL(databaseURL)
	if err != nil {
		return nil, "", err
	}

	pg, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open %s database: %w", dialect, err)
	}

	if err := pg.PingContext(ctx); err != nil {
		pg.Close()
		return nil, "", fmt.Errorf("failed to ping %s database: %w", dialect, err)
	}

	return pg, dialect, nil
}

// WithTransaction runs fn inside a transaction, committing on success and
// rolling back on error or panic.
func WithTransaction(ctx context.Context, pg *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := pg.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
