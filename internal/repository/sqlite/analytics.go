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

// compile-time check that *DB implements repository.AnalyticsRepository
var _ repository.AnalyticsRepository = (*DB)(nil)

// windowClause filters on created_at; pair it with windowArgs.
const windowClause = ` AND created_at >= ? AND created_at <= ?`

func windowArgs(w repository.Window) []any {
	var from int64
	if !w.From.IsZero() {
		from = toMillis(w.From)
	}
	return []any{from, toMillis(w.To)}
}

// RecordView inserts a page view unless the same client already viewed the
// same profile at or after dedupSince. The check and the insert share a
// transaction; two truly simultaneous first views may still both land.
func (db *DB) RecordView(ctx context.Context, event *model.AnalyticsEvent, dedupSince time.Time) (bool, error) {
	recorded := false
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var exists bool
		err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (
				SELECT 1 FROM analytics_events
				WHERE user_id = ? AND kind = ? AND client_key = ? AND created_at >= ?
			 )`,
			event.UserID, string(model.EventPageView), event.ClientKey, toMillis(dedupSince),
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("sqlite: checking recent views: %w", err)
		}
		if exists {
			return nil
		}

		event.Kind = model.EventPageView
		event.LinkID = ""
		if err := insertEvent(ctx, tx, event); err != nil {
			return err
		}
		recorded = true
		return nil
	})
	return recorded, err
}

// RecordClick records a click on a live link: one event row plus one
// increment of links.clicks, committed together or not at all.
func (db *DB) RecordClick(ctx context.Context, event *model.AnalyticsEvent) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		var owner string
		err := tx.QueryRowContext(ctx,
			`SELECT user_id FROM links WHERE id = ? AND deleted_at IS NULL`, event.LinkID,
		).Scan(&owner)
		if errors.Is(err, sql.ErrNoRows) {
			return apperror.NotFound("link", event.LinkID)
		}
		if err != nil {
			return fmt.Errorf("sqlite: loading link %s: %w", event.LinkID, err)
		}

		event.UserID = owner
		event.Kind = model.EventLinkClick
		if err := insertEvent(ctx, tx, event); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE links SET clicks = clicks + 1 WHERE id = ? AND deleted_at IS NULL`, event.LinkID)
		if err != nil {
			return fmt.Errorf("sqlite: incrementing clicks for %s: %w", event.LinkID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperror.NotFound("link", event.LinkID)
		}
		return nil
	})
}

func insertEvent(ctx context.Context, tx *sql.Tx, e *model.AnalyticsEvent) error {
	e.ID = xid.New().String()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO analytics_events
		 (id, user_id, link_id, kind, referrer, referrer_category, device, user_agent, client_key, country, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		e.UserID,
		nullString(e.LinkID),
		string(e.Kind),
		e.Referrer,
		string(e.ReferrerCategory),
		string(e.Device),
		e.UserAgent,
		e.ClientKey,
		e.Country,
		toMillis(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting %s event: %w", e.Kind, err)
	}
	return nil
}

func (db *DB) CountEvents(ctx context.Context, userID string, w repository.Window) (views, clicks int64, err error) {
	args := append([]any{string(model.EventPageView), string(model.EventLinkClick), userID}, windowArgs(w)...)
	err = db.conn.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(kind = ?), 0), COALESCE(SUM(kind = ?), 0)
		 FROM analytics_events WHERE user_id = ?`+windowClause,
		args...,
	).Scan(&views, &clicks)
	if err != nil {
		return 0, 0, fmt.Errorf("sqlite: counting events for %s: %w", userID, err)
	}
	return views, clicks, nil
}

// Breakdown counts page views per distinct value of dim. Empty values
// (no country header, for instance) are left out.
func (db *DB) Breakdown(ctx context.Context, userID string, dim repository.Dimension, w repository.Window) ([]model.CountEntry, error) {
	var column string
	switch dim {
	case repository.ByReferrerCategory, repository.ByCountry, repository.ByDevice:
		column = string(dim)
	default:
		return nil, fmt.Errorf("sqlite: unknown breakdown dimension %q", dim)
	}

	args := append([]any{userID, string(model.EventPageView)}, windowArgs(w)...)
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+column+`, COUNT(*) AS n FROM analytics_events
		 WHERE user_id = ? AND kind = ?`+windowClause+` AND `+column+` != ''
		 GROUP BY `+column+` ORDER BY n DESC, `+column+` ASC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: breakdown by %s: %w", column, err)
	}
	defer rows.Close()

	entries := []model.CountEntry{}
	for rows.Next() {
		var e model.CountEntry
		if err := rows.Scan(&e.Key, &e.Count); err != nil {
			return nil, fmt.Errorf("sqlite: scanning breakdown: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating breakdown: %w", err)
	}
	return entries, nil
}

// DailyCounts buckets events by UTC calendar day. Days without events are
// absent; the service fills the gaps.
func (db *DB) DailyCounts(ctx context.Context, userID string, w repository.Window) ([]model.DailyPoint, error) {
	args := append([]any{string(model.EventPageView), string(model.EventLinkClick), userID}, windowArgs(w)...)
	rows, err := db.conn.QueryContext(ctx,
		`SELECT strftime('%Y-%m-%d', created_at / 1000, 'unixepoch') AS day,
		        SUM(kind = ?), SUM(kind = ?)
		 FROM analytics_events WHERE user_id = ?`+windowClause+`
		 GROUP BY day ORDER BY day`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: daily counts for %s: %w", userID, err)
	}
	defer rows.Close()

	var points []model.DailyPoint
	for rows.Next() {
		var p model.DailyPoint
		if err := rows.Scan(&p.Date, &p.Views, &p.Clicks); err != nil {
			return nil, fmt.Errorf("sqlite: scanning daily counts: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating daily counts: %w", err)
	}
	return points, nil
}

// LinkClicks counts click events per link id inside the window.
func (db *DB) LinkClicks(ctx context.Context, userID string, w repository.Window) (map[string]int64, error) {
	args := append([]any{userID, string(model.EventLinkClick)}, windowArgs(w)...)
	rows, err := db.conn.QueryContext(ctx,
		`SELECT link_id, COUNT(*) FROM analytics_events
		 WHERE user_id = ? AND kind = ? AND link_id IS NOT NULL`+windowClause+`
		 GROUP BY link_id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: link clicks for %s: %w", userID, err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var (
			id string
			n  int64
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("sqlite: scanning link clicks: %w", err)
		}
		counts[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating link clicks: %w", err)
	}
	return counts, nil
}

// FirstEventAt returns the timestamp of the owner's oldest event.
func (db *DB) FirstEventAt(ctx context.Context, userID string) (time.Time, bool, error) {
	var first sql.NullInt64
	err := db.conn.QueryRowContext(ctx,
		`SELECT MIN(created_at) FROM analytics_events WHERE user_id = ?`, userID,
	).Scan(&first)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("sqlite: first event for %s: %w", userID, err)
	}
	if !first.Valid {
		return time.Time{}, false, nil
	}
	return fromMillis(first.Int64), true, nil
}
