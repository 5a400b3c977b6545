package infra

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// Row is the single-row result contract returned by QueryRow.
type Row interface {
	Scan(dest ...any) error
}

// Rows is the multi-row result contract returned by Query.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// SQLExecutor defines the contract required by repositories for executing SQL queries.
type SQLExecutor interface {
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRow(ctx context.Context, query string, args ...any) Row
	Query(ctx context.Context, query string, args ...any) (Rows, error)
}

// TxRunner is an executor that can open a transactional scope.
type TxRunner interface {
	SQLExecutor
	WithTx(ctx context.Context, fn func(tx SQLExecutor) error) error
}

var markerRegexp = regexp.MustCompile(`^--sql [0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLRunner executes marker-tagged queries written with `?` placeholders,
// rewriting them for the connected dialect and logging each statement.
type SQLRunner struct {
	DB      *sql.DB
	Dialect Dialect
	Logger  zerolog.Logger
}

func NewSQLRunner(db *sql.DB, dialect Dialect, logger zerolog.Logger) *SQLRunner {
	return &SQLRunner{DB: db, Dialect: dialect, Logger: logger}
}

func (r *SQLRunner) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return r.executor(r.DB).Exec(ctx, query, args...)
}

func (r *SQLRunner) QueryRow(ctx context.Context, query string, args ...any) Row {
	return r.executor(r.DB).QueryRow(ctx, query, args...)
}

func (r *SQLRunner) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	return r.executor(r.DB).Query(ctx, query, args...)
}

// WithTx runs fn inside a transaction that is committed when fn returns nil
// and rolled back otherwise, including on panic.
func (r *SQLRunner) WithTx(ctx context.Context, fn func(tx SQLExecutor) error) (err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				r.Logger.Error().Err(rbErr).Msg("sql rollback failed")
			}
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			err = fmt.Errorf("commit tx: %w", cerr)
		}
	}()
	return fn(r.executor(tx))
}

func (r *SQLRunner) executor(q queryer) boundExecutor {
	return boundExecutor{q: q, dialect: r.Dialect, logger: r.Logger}
}

type boundExecutor struct {
	q       queryer
	dialect Dialect
	logger  zerolog.Logger
}

func (b boundExecutor) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	marker, trimmed, err := b.prepare(query)
	if err != nil {
		return nil, err
	}
	b.logger.Debug().Msgf("sql[%s] exec", marker)
	res, err := b.q.ExecContext(ctx, trimmed, args...)
	if err != nil {
		b.logger.Error().Err(err).Msgf("sql[%s] error", marker)
		return nil, err
	}
	return res, nil
}

func (b boundExecutor) QueryRow(ctx context.Context, query string, args ...any) Row {
	marker, trimmed, err := b.prepare(query)
	if err != nil {
		return errorRow{err: err}
	}
	b.logger.Debug().Msgf("sql[%s] query_row", marker)
	row := b.q.QueryRowContext(ctx, trimmed, args...)
	return loggingRow{row: row, logger: b.logger, marker: marker}
}

func (b boundExecutor) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	marker, trimmed, err := b.prepare(query)
	if err != nil {
		return nil, err
	}
	b.logger.Debug().Msgf("sql[%s] query", marker)
	rows, err := b.q.QueryContext(ctx, trimmed, args...)
	if err != nil {
		b.logger.Error().Err(err).Msgf("sql[%s] error", marker)
		return nil, err
	}
	return loggingRows{Rows: rows, logger: b.logger, marker: marker}, nil
}

func (b boundExecutor) prepare(query string) (string, string, error) {
	marker, trimmed, err := extractMarker(query)
	if err != nil {
		return "", "", err
	}
	if b.dialect == DialectPostgres {
		trimmed = Rebind(trimmed)
	}
	return marker, trimmed, nil
}

type loggingRow struct {
	row    *sql.Row
	logger zerolog.Logger
	marker string
}

func (l loggingRow) Scan(dest ...any) error {
	err := l.row.Scan(dest...)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		l.logger.Error().Err(err).Msgf("sql[%s] scan error", l.marker)
	}
	return err
}

type loggingRows struct {
	*sql.Rows
	logger zerolog.Logger
	marker string
}

func (l loggingRows) Close() error {
	l.logger.Debug().Msgf("sql[%s] rows close", l.marker)
	return l.Rows.Close()
}

type errorRow struct {
	err error
}

func (e errorRow) Scan(dest ...any) error {
	return e.err
}

// IsNoRows reports whether err signals an empty single-row result.
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func extractMarker(query string) (string, string, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return "", "", errors.New("empty query")
	}
	lines := strings.Split(trimmed, "\n")
	markerLine := strings.TrimSpace(lines[0])
	if !markerRegexp.MatchString(markerLine) {
		return "", "", errors.New("sql marker missing or invalid")
	}
	return strings.TrimSpace(strings.TrimPrefix(markerLine, "--sql ")), strings.Join(lines[1:], "\n"), nil
}

// Rebind rewrites `?` placeholders into the `$n` form Postgres expects.
// Question marks inside single-quoted literals are left alone.
func Rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

var (
	_ SQLExecutor = (*SQLRunner)(nil)
	_ TxRunner    = (*SQLRunner)(nil)
)
