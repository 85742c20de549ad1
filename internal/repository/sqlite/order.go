package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sakif/linkbio/internal/apperror"
)

// Positions are dense and zero-based per owner. Links and social icons
// share the same ordering rules, so the mechanics live here.

// queryIDs runs a single-column id query inside tx. Rows are fully drained
// and closed before returning so the caller can issue the next statement.
func queryIDs(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]string, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// applyOrder computes the final order for a reorder request.
//
// Every requested id must be in current (else NOT_FOUND naming the first
// offender), and no id may repeat (VALIDATION). Requested ids come first,
// in request order; current ids that were not mentioned follow in their
// existing relative order.
func applyOrder(current, requested []string, resource string) ([]string, error) {
	known := make(map[string]bool, len(current))
	for _, id := range current {
		known[id] = true
	}

	seen := make(map[string]bool, len(requested))
	for _, id := range requested {
		if seen[id] {
			return nil, apperror.ValidationFailed("ids", fmt.Sprintf("duplicate id %s in reorder request", id))
		}
		seen[id] = true
		if !known[id] {
			return nil, apperror.NotFound(resource, id)
		}
	}

	out := make([]string, 0, len(current))
	out = append(out, requested...)
	for _, id := range current {
		if !seen[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

// writePositions stores index i as the position of ids[i]. table is a
// constant from this package.
func writePositions(ctx context.Context, tx *sql.Tx, table string, ids []string, nowMillis int64) error {
	stmt, err := tx.PrepareContext(ctx,
		`UPDATE `+table+` SET position = ?, updated_at = ? WHERE id = ? AND position != ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, id := range ids {
		if _, err := stmt.ExecContext(ctx, i, nowMillis, id, i); err != nil {
			return err
		}
	}
	return nil
}
