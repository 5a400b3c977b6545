package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upVideoJobColumns, downVideoJobColumns)
}

// jobColumns are the nullable columns added after the first release. Databases
// created by earlier builds may already carry some of them, so each one is
// added only when missing.
var jobColumns = []struct {
	name string
	typ  string
}{
	{"seconds", "INTEGER"},
	{"size", "VARCHAR(16)"},
	{"content_variant", "VARCHAR(64)"},
	{"content_token", "TEXT"},
	{"content_token_expires_at", "TIMESTAMP"},
	{"content_ready_at", "TIMESTAMP"},
}

func upVideoJobColumns(ctx context.Context, tx *sql.Tx) error {
	existing, err := tableColumns(ctx, tx, "video_jobs")
	if err != nil {
		return err
	}
	for _, col := range jobColumns {
		if _, ok := existing[col.name]; ok {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE video_jobs ADD COLUMN %s %s", col.name, col.typ)
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("add column %s: %w", col.name, err)
		}
	}
	if _, err := tx.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS ix_video_jobs_status ON video_jobs (status)"); err != nil {
		return fmt.Errorf("create status index: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS ix_video_jobs_created_at ON video_jobs (created_at)"); err != nil {
		return fmt.Errorf("create created_at index: %w", err)
	}
	return nil
}

func downVideoJobColumns(ctx context.Context, tx *sql.Tx) error {
	for _, stmt := range []string{
		"DROP INDEX IF EXISTS ix_video_jobs_created_at",
		"DROP INDEX IF EXISTS ix_video_jobs_status",
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	for i := len(jobColumns) - 1; i >= 2; i-- {
		stmt := fmt.Sprintf("ALTER TABLE video_jobs DROP COLUMN %s", jobColumns[i].name)
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("drop column %s: %w", jobColumns[i].name, err)
		}
	}
	return nil
}

// tableColumns reads column names from an empty result set, which works the
// same way on every driver without touching engine specific catalogs.
func tableColumns(ctx context.Context, tx *sql.Tx, table string) (map[string]struct{}, error) {
	rows, err := tx.QueryContext(ctx, "SELECT * FROM "+table+" WHERE 1 = 0")
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", table, err)
	}
	defer rows.Close()
	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("inspect %s columns: %w", table, err)
	}
	out := make(map[string]struct{}, len(names))
	for _, name := range names {
		out[strings.ToLower(name)] = struct{}{}
	}
	return out, nil
}
