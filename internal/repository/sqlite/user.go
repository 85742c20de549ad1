package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/linkbio/internal/apperror"
	"github.com/sakif/linkbio/internal/model"
	"github.com/sakif/linkbio/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, handle, email, password_hash, github_id, title, description,
	avatar_url, theme, button_style, font, background, settings, plan, created_at, updated_at`

// CreateUser inserts a new user. ID and timestamps are filled in here;
// Settings defaults are applied when the caller left them empty.
// A taken handle, email or GitHub account comes back as apperror.ErrConflict.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.Handle = model.NormalizeHandle(user.Handle)
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Plan == "" {
		user.Plan = model.PlanFree
	}
	if user.Theme == "" {
		user.Theme = "default"
	}
	if user.ButtonStyle == "" {
		user.ButtonStyle = "rounded"
	}
	if user.Settings.SocialIconPosition == "" {
		user.Settings = model.DefaultSettings()
	}

	settings, err := json.Marshal(user.Settings)
	if err != nil {
		return fmt.Errorf("sqlite: encoding settings: %w", err)
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Handle,
		nullString(user.Email),
		user.PasswordHash,
		nullInt(user.GitHubID),
		user.Title,
		user.Description,
		user.AvatarURL,
		user.Theme,
		user.ButtonStyle,
		user.Font,
		user.Background,
		string(settings),
		string(user.Plan),
		toMillis(user.CreatedAt),
		toMillis(user.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", user.Handle)
		}
		return fmt.Errorf("sqlite: inserting user %s: %w", user.Handle, err)
	}
	return nil
}

func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return db.getUser(ctx, "id", id, id)
}

// GetUserByHandle looks a user up case-insensitively.
func (db *DB) GetUserByHandle(ctx context.Context, handle string) (*model.User, error) {
	handle = model.NormalizeHandle(handle)
	u, err := db.getUser(ctx, "handle", handle, handle)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, apperror.HandleNotFound(handle)
	}
	return u, err
}

func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return db.getUser(ctx, "email", email, email)
}

func (db *DB) GetUserByGitHubID(ctx context.Context, githubID int64) (*model.User, error) {
	return db.getUser(ctx, "github_id", githubID, fmt.Sprint(githubID))
}

// getUser is the shared single-row lookup. column is always a constant
// from this file, never user input.
func (db *DB) getUser(ctx context.Context, column string, value any, label string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+column+` = ?`, value)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", label)
		}
		return nil, fmt.Errorf("sqlite: getting user by %s: %w", column, err)
	}
	return u, nil
}

func (db *DB) HandleExists(ctx context.Context, handle string) (bool, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE handle = ?`, model.NormalizeHandle(handle),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking handle: %w", err)
	}
	return n > 0, nil
}

// UpdateProfile writes every display, appearance and settings field.
// Identity fields (handle, email, password, github_id) are not touched.
func (db *DB) UpdateProfile(ctx context.Context, user *model.User) error {
	settings, err := json.Marshal(user.Settings)
	if err != nil {
		return fmt.Errorf("sqlite: encoding settings: %w", err)
	}
	user.UpdatedAt = time.Now().UTC()

	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET title = ?, description = ?, avatar_url = ?, theme = ?,
		 button_style = ?, font = ?, background = ?, settings = ?, plan = ?, updated_at = ?
		 WHERE id = ?`,
		user.Title,
		user.Description,
		user.AvatarURL,
		user.Theme,
		user.ButtonStyle,
		user.Font,
		user.Background,
		string(settings),
		string(user.Plan),
		toMillis(user.UpdatedAt),
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("user", user.ID)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u        model.User
		email    sql.NullString
		githubID sql.NullInt64
		settings string
		plan     string
		created  int64
		updated  int64
	)
	err := row.Scan(
		&u.ID,
		&u.Handle,
		&email,
		&u.PasswordHash,
		&githubID,
		&u.Title,
		&u.Description,
		&u.AvatarURL,
		&u.Theme,
		&u.ButtonStyle,
		&u.Font,
		&u.Background,
		&settings,
		&plan,
		&created,
		&updated,
	)
	if err != nil {
		return nil, err
	}

	u.Email = email.String
	u.GitHubID = githubID.Int64
	u.Plan = model.Plan(plan)
	u.CreatedAt = fromMillis(created)
	u.UpdatedAt = fromMillis(updated)

	u.Settings = model.DefaultSettings()
	if err := json.Unmarshal([]byte(settings), &u.Settings); err != nil {
		return nil, fmt.Errorf("decoding settings for user %s: %w", u.ID, err)
	}
	return &u, nil
}
