package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/linkbio/internal/apperror"
	"github.com/sakif/linkbio/internal/model"
	"github.com/sakif/linkbio/internal/repository"
)

// compile-time check that *DB implements repository.LinkRepository
var _ repository.LinkRepository = (*DB)(nil)

const linkColumns = `id, user_id, title, url, type, thumbnail, position, is_active, clicks,
	scheduled_start, scheduled_end, deleted_at, created_at, updated_at`

const liveLinkIDs = `SELECT id FROM links WHERE user_id = ? AND deleted_at IS NULL
	ORDER BY position, created_at, id`

// CreateLink inserts a live link at the end of the owner's list.
// The position count and insert share one transaction.
func (db *DB) CreateLink(ctx context.Context, link *model.Link) error {
	now := time.Now().UTC()
	link.ID = xid.New().String()
	link.Clicks = 0
	link.Status = model.Live()
	link.CreatedAt = now
	link.UpdatedAt = now

	return db.withTx(ctx, func(tx *sql.Tx) error {
		var count int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM links WHERE user_id = ? AND deleted_at IS NULL`, link.UserID,
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("sqlite: counting links for %s: %w", link.UserID, err)
		}
		link.Position = count

		_, err = tx.ExecContext(ctx,
			`INSERT INTO links (`+linkColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?)`,
			link.ID,
			link.UserID,
			link.Title,
			link.URL,
			string(link.Type),
			link.Thumbnail,
			link.Position,
			link.IsActive,
			link.Clicks,
			nullMillis(link.Schedule.Start),
			nullMillis(link.Schedule.End),
			toMillis(link.CreatedAt),
			toMillis(link.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("sqlite: inserting link: %w", err)
		}
		return nil
	})
}

// GetLink returns a link (live or deleted) owned by userID.
func (db *DB) GetLink(ctx context.Context, userID, id string) (*model.Link, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+linkColumns+` FROM links WHERE id = ? AND user_id = ?`, id, userID)

	l, err := scanLink(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("link", id)
		}
		return nil, fmt.Errorf("sqlite: getting link %s: %w", id, err)
	}
	return l, nil
}

func (db *DB) ListLinks(ctx context.Context, userID string) ([]model.Link, error) {
	return db.queryLinks(ctx,
		`SELECT `+linkColumns+` FROM links WHERE user_id = ? AND deleted_at IS NULL
		 ORDER BY position, created_at, id`, userID)
}

// ListDeletedLinks returns soft-deleted links, most recently deleted first.
func (db *DB) ListDeletedLinks(ctx context.Context, userID string) ([]model.Link, error) {
	return db.queryLinks(ctx,
		`SELECT `+linkColumns+` FROM links WHERE user_id = ? AND deleted_at IS NOT NULL
		 ORDER BY deleted_at DESC, id`, userID)
}

func (db *DB) queryLinks(ctx context.Context, query string, args ...any) ([]model.Link, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing links: %w", err)
	}
	defer rows.Close()

	// Always a non-nil slice so the JSON is [] rather than null.
	links := []model.Link{}
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning link: %w", err)
		}
		links = append(links, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating links: %w", err)
	}
	return links, nil
}

// UpdateLink writes the editable fields of a live link. Position, clicks
// and lifecycle have their own operations.
func (db *DB) UpdateLink(ctx context.Context, link *model.Link) error {
	link.UpdatedAt = time.Now().UTC()

	res, err := db.conn.ExecContext(ctx,
		`UPDATE links SET title = ?, url = ?, type = ?, thumbnail = ?, is_active = ?,
		 scheduled_start = ?, scheduled_end = ?, updated_at = ?
		 WHERE id = ? AND user_id = ? AND deleted_at IS NULL`,
		link.Title,
		link.URL,
		string(link.Type),
		link.Thumbnail,
		link.IsActive,
		nullMillis(link.Schedule.Start),
		nullMillis(link.Schedule.End),
		toMillis(link.UpdatedAt),
		link.ID,
		link.UserID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating link %s: %w", link.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("link", link.ID)
	}
	return nil
}

// SoftDeleteLink marks a live link deleted and closes the gap it leaves.
// The deleted row keeps its old position as a restore hint.
func (db *DB) SoftDeleteLink(ctx context.Context, userID, id string, at time.Time) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE links SET deleted_at = ?, updated_at = ?
			 WHERE id = ? AND user_id = ? AND deleted_at IS NULL`,
			toMillis(at), toMillis(at), id, userID)
		if err != nil {
			return fmt.Errorf("sqlite: soft-deleting link %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperror.NotFound("link", id)
		}
		return renumberLinks(ctx, tx, userID)
	})
}

// RestoreLink brings a soft-deleted link back at min(old position, live
// count), shifting the live links at or after that slot down by one. A link
// past its recovery window at now is left deleted.
func (db *DB) RestoreLink(ctx context.Context, userID, id string, now time.Time) (*model.Link, error) {
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var (
			oldPos    int
			deletedAt sql.NullInt64
		)
		err := tx.QueryRowContext(ctx,
			`SELECT position, deleted_at FROM links WHERE id = ? AND user_id = ?`, id, userID,
		).Scan(&oldPos, &deletedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return apperror.NotFound("link", id)
		}
		if err != nil {
			return fmt.Errorf("sqlite: loading link %s: %w", id, err)
		}
		if !deletedAt.Valid {
			return apperror.ValidationFailed("id", "link is not deleted")
		}
		if !model.DeletedOn(fromMillis(deletedAt.Int64)).Recoverable(now) {
			return apperror.ValidationFailed("id", "recovery window expired")
		}

		var live int
		err = tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM links WHERE user_id = ? AND deleted_at IS NULL`, userID,
		).Scan(&live)
		if err != nil {
			return fmt.Errorf("sqlite: counting links for %s: %w", userID, err)
		}
		pos := min(oldPos, live)
		updatedAt := toMillis(now)

		_, err = tx.ExecContext(ctx,
			`UPDATE links SET position = position + 1, updated_at = ?
			 WHERE user_id = ? AND deleted_at IS NULL AND position >= ?`,
			updatedAt, userID, pos)
		if err != nil {
			return fmt.Errorf("sqlite: shifting links for %s: %w", userID, err)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE links SET deleted_at = NULL, position = ?, updated_at = ? WHERE id = ?`,
			pos, updatedAt, id)
		if err != nil {
			return fmt.Errorf("sqlite: restoring link %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return db.GetLink(ctx, userID, id)
}

// DeleteLinkPermanently removes the row. Analytics events that reference
// it are left untouched. Deleting a live link renumbers the rest.
func (db *DB) DeleteLinkPermanently(ctx context.Context, userID, id string) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		var deletedAt sql.NullInt64
		err := tx.QueryRowContext(ctx,
			`SELECT deleted_at FROM links WHERE id = ? AND user_id = ?`, id, userID,
		).Scan(&deletedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return apperror.NotFound("link", id)
		}
		if err != nil {
			return fmt.Errorf("sqlite: loading link %s: %w", id, err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM links WHERE id = ?`, id); err != nil {
			return fmt.Errorf("sqlite: deleting link %s: %w", id, err)
		}
		if deletedAt.Valid {
			return nil
		}
		return renumberLinks(ctx, tx, userID)
	})
}

// PurgeDeletedBefore permanently removes links soft-deleted before cutoff.
func (db *DB) PurgeDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM links WHERE deleted_at IS NOT NULL AND deleted_at < ?`, toMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("sqlite: purging deleted links: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: purging deleted links: %w", err)
	}
	return n, nil
}

// ReorderLinks applies a reorder request atomically. See applyOrder for
// the rules; nothing is written when any id is rejected.
func (db *DB) ReorderLinks(ctx context.Context, userID string, ids []string) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		current, err := queryIDs(ctx, tx, liveLinkIDs, userID)
		if err != nil {
			return fmt.Errorf("sqlite: loading links for %s: %w", userID, err)
		}
		order, err := applyOrder(current, ids, "link")
		if err != nil {
			return err
		}
		if err := writePositions(ctx, tx, "links", order, toMillis(time.Now())); err != nil {
			return fmt.Errorf("sqlite: reordering links for %s: %w", userID, err)
		}
		return nil
	})
}

// renumberLinks rewrites live positions to 0..n-1 keeping their order.
func renumberLinks(ctx context.Context, tx *sql.Tx, userID string) error {
	ids, err := queryIDs(ctx, tx, liveLinkIDs, userID)
	if err != nil {
		return fmt.Errorf("sqlite: loading links for %s: %w", userID, err)
	}
	if err := writePositions(ctx, tx, "links", ids, toMillis(time.Now())); err != nil {
		return fmt.Errorf("sqlite: renumbering links for %s: %w", userID, err)
	}
	return nil
}

func scanLink(row rowScanner) (*model.Link, error) {
	var (
		l         model.Link
		linkType  string
		start     sql.NullInt64
		end       sql.NullInt64
		deletedAt sql.NullInt64
		created   int64
		updated   int64
	)
	err := row.Scan(
		&l.ID,
		&l.UserID,
		&l.Title,
		&l.URL,
		&linkType,
		&l.Thumbnail,
		&l.Position,
		&l.IsActive,
		&l.Clicks,
		&start,
		&end,
		&deletedAt,
		&created,
		&updated,
	)
	if err != nil {
		return nil, err
	}

	l.Type = model.LinkType(linkType)
	l.Schedule = model.Schedule{Start: timePtr(start), End: timePtr(end)}
	if deletedAt.Valid {
		l.Status = model.DeletedOn(fromMillis(deletedAt.Int64))
	}
	l.CreatedAt = fromMillis(created)
	l.UpdatedAt = fromMillis(updated)
	return &l, nil
}
