package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// ReplaceConfig defines the parameters for a replace-for-key operation.
type ReplaceConfig struct {
	Table     string   // target table (e.g., "portfolio.topics")
	KeyColumn string   // column identifying the row set (e.g., "catalog_id")
	Columns   []string // all columns being inserted
}

// ReplaceForKey deletes every row matching the key and bulk-inserts the
// fresh set via COPY, all inside one transaction so a crash cannot leave
// the key half-written.
func ReplaceForKey(ctx context.Context, pool Pool, cfg ReplaceConfig, key any, rows [][]any) error {
	if len(cfg.Columns) == 0 {
		return eris.New("db: replace: no columns specified")
	}
	if cfg.KeyColumn == "" {
		return eris.New("db: replace: no key column specified")
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "db: replace: begin tx")
	}
	defer tx.Rollback(ctx)

	deleteSQL := fmt.Sprintf("DELETE FROM %s WHERE %s = $1",
		sanitizeTable(cfg.Table),
		pgx.Identifier{cfg.KeyColumn}.Sanitize(),
	)
	if _, err := tx.Exec(ctx, deleteSQL, key); err != nil {
		return eris.Wrapf(err, "db: replace: delete from %s", cfg.Table)
	}

	if len(rows) > 0 {
		if _, err := tx.CopyFrom(ctx, tableIdentifier(cfg.Table), cfg.Columns, pgx.CopyFromRows(rows)); err != nil {
			return eris.Wrapf(err, "db: replace: COPY into %s", cfg.Table)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "db: replace: commit tx")
	}
	return nil
}

// sanitizeTable handles schema-qualified table names like "portfolio.topics".
func sanitizeTable(table string) string {
	return tableIdentifier(table).Sanitize()
}

func tableIdentifier(table string) pgx.Identifier {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}
	}
	return pgx.Identifier{table}
}
