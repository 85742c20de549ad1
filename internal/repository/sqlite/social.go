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

// compile-time check that *DB implements repository.SocialIconRepository
var _ repository.SocialIconRepository = (*DB)(nil)

const iconColumns = `id, user_id, platform, url, position, created_at, updated_at`

const iconIDs = `SELECT id FROM social_icons WHERE user_id = ? ORDER BY position, created_at, id`

func (db *DB) CreateIcon(ctx context.Context, icon *model.SocialIcon) error {
	now := time.Now().UTC()
	icon.ID = xid.New().String()
	icon.CreatedAt = now
	icon.UpdatedAt = now

	return db.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM social_icons WHERE user_id = ?`, icon.UserID,
		).Scan(&icon.Position)
		if err != nil {
			return fmt.Errorf("sqlite: counting icons for %s: %w", icon.UserID, err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO social_icons (`+iconColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			icon.ID,
			icon.UserID,
			icon.Platform,
			icon.URL,
			icon.Position,
			toMillis(icon.CreatedAt),
			toMillis(icon.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("sqlite: inserting icon: %w", err)
		}
		return nil
	})
}

func (db *DB) GetIcon(ctx context.Context, userID, id string) (*model.SocialIcon, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+iconColumns+` FROM social_icons WHERE id = ? AND user_id = ?`, id, userID)

	icon, err := scanIcon(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("social icon", id)
		}
		return nil, fmt.Errorf("sqlite: getting icon %s: %w", id, err)
	}
	return icon, nil
}

func (db *DB) ListIcons(ctx context.Context, userID string) ([]model.SocialIcon, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+iconColumns+` FROM social_icons WHERE user_id = ?
		 ORDER BY position, created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing icons: %w", err)
	}
	defer rows.Close()

	icons := []model.SocialIcon{}
	for rows.Next() {
		icon, err := scanIcon(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning icon: %w", err)
		}
		icons = append(icons, *icon)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating icons: %w", err)
	}
	return icons, nil
}

func (db *DB) UpdateIcon(ctx context.Context, icon *model.SocialIcon) error {
	icon.UpdatedAt = time.Now().UTC()

	res, err := db.conn.ExecContext(ctx,
		`UPDATE social_icons SET platform = ?, url = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		icon.Platform, icon.URL, toMillis(icon.UpdatedAt), icon.ID, icon.UserID)
	if err != nil {
		return fmt.Errorf("sqlite: updating icon %s: %w", icon.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("social icon", icon.ID)
	}
	return nil
}

// DeleteIcon removes an icon and closes the gap in positions.
func (db *DB) DeleteIcon(ctx context.Context, userID, id string) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM social_icons WHERE id = ? AND user_id = ?`, id, userID)
		if err != nil {
			return fmt.Errorf("sqlite: deleting icon %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperror.NotFound("social icon", id)
		}

		ids, err := queryIDs(ctx, tx, iconIDs, userID)
		if err != nil {
			return fmt.Errorf("sqlite: loading icons for %s: %w", userID, err)
		}
		if err := writePositions(ctx, tx, "social_icons", ids, toMillis(time.Now())); err != nil {
			return fmt.Errorf("sqlite: renumbering icons for %s: %w", userID, err)
		}
		return nil
	})
}

func (db *DB) ReorderIcons(ctx context.Context, userID string, ids []string) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		current, err := queryIDs(ctx, tx, iconIDs, userID)
		if err != nil {
			return fmt.Errorf("sqlite: loading icons for %s: %w", userID, err)
		}
		order, err := applyOrder(current, ids, "social icon")
		if err != nil {
			return err
		}
		if err := writePositions(ctx, tx, "social_icons", order, toMillis(time.Now())); err != nil {
			return fmt.Errorf("sqlite: reordering icons for %s: %w", userID, err)
		}
		return nil
	})
}

func scanIcon(row rowScanner) (*model.SocialIcon, error) {
	var (
		icon    model.SocialIcon
		created int64
		updated int64
	)
	if err := row.Scan(&icon.ID, &icon.UserID, &icon.Platform, &icon.URL, &icon.Position, &created, &updated); err != nil {
		return nil, err
	}
	icon.CreatedAt = fromMillis(created)
	icon.UpdatedAt = fromMillis(updated)
	return &icon, nil
}
