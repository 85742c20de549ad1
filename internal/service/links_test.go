package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/linkbio/internal/apperror"
	"github.com/sakif/linkbio/internal/metrics"
	"github.com/sakif/linkbio/internal/model"
	sqliteRepo "github.com/sakif/linkbio/internal/repository/sqlite"
)

func newTestLinkService(t *testing.T) (*LinkService, *sqliteRepo.DB, *clock) {
	t.Helper()
	db := newTestStore(t)
	c := &clock{t: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	svc := NewLinkService(db, metrics.New(), testLogger())
	svc.now = c.Now
	return svc, db, c
}

func mustCreate(t *testing.T, svc *LinkService, userID, title string) *model.Link {
	t.Helper()
	l, err := svc.Create(context.Background(), userID, LinkInput{Title: title, URL: "example.com/" + title})
	require.NoError(t, err)
	return l
}

func titlesOf(links []model.Link) []string {
	out := make([]string, len(links))
	for i, l := range links {
		out[i] = l.Title
	}
	return out
}

func ptr[T any](v T) *T { return &v }

// =========================================================================
// CREATE / UPDATE
// =========================================================================

func TestLinkCreate_Defaults(t *testing.T) {
	svc, db, _ := newTestLinkService(t)
	u := createUser(t, db, "alice")

	l, err := svc.Create(context.Background(), u.ID, LinkInput{Title: "  Blog  ", URL: "alice.dev"})
	require.NoError(t, err)

	assert.Equal(t, "Blog", l.Title)
	assert.Equal(t, "https://alice.dev", l.URL)
	assert.Equal(t, model.LinkClassic, l.Type)
	assert.True(t, l.IsActive)
	assert.Equal(t, 0, l.Position)
	assert.False(t, l.Status.IsDeleted())
}

func TestLinkCreate_Validation(t *testing.T) {
	svc, db, _ := newTestLinkService(t)
	u := createUser(t, db, "alice")
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	before := start.Add(-time.Hour)

	tests := []struct {
		name  string
		in    LinkInput
		field string
	}{
		{"missing url", LinkInput{Title: "x"}, "url"},
		{"javascript url", LinkInput{Title: "x", URL: "javascript:alert(1)"}, "url"},
		{"ftp url", LinkInput{Title: "x", URL: "ftp://files.example"}, "url"},
		{"unknown type", LinkInput{Title: "x", URL: "a.com", Type: "carousel"}, "type"},
		{"header without title", LinkInput{Type: model.LinkHeader}, "title"},
		{"title too long", LinkInput{Title: string(make([]byte, 101)), URL: "a.com"}, "title"},
		{"inverted schedule", LinkInput{Title: "x", URL: "a.com", Schedule: &model.Schedule{Start: &start, End: &before}}, "schedule"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), u.ID, tt.in)
			var appErr *apperror.AppError
			require.ErrorAs(t, err, &appErr)
			assert.ErrorIs(t, err, apperror.ErrValidation)
			assert.Equal(t, tt.field, appErr.Field)
		})
	}
}

func TestLinkCreate_HeaderAndContactURLs(t *testing.T) {
	svc, db, _ := newTestLinkService(t)
	u := createUser(t, db, "alice")
	ctx := context.Background()

	h, err := svc.Create(ctx, u.ID, LinkInput{Title: "Music", Type: model.LinkHeader, URL: "ignored.com"})
	require.NoError(t, err)
	assert.Empty(t, h.URL)

	m, err := svc.Create(ctx, u.ID, LinkInput{Title: "Mail", URL: "mailto:alice@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "mailto:alice@example.com", m.URL)
	assert.Equal(t, 1, m.Position)
}

func TestLinkUpdate_Partial(t *testing.T) {
	svc, db, _ := newTestLinkService(t)
	u := createUser(t, db, "alice")
	l := mustCreate(t, svc, u.ID, "A")
	end := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)

	got, err := svc.Update(context.Background(), u.ID, l.ID, LinkPatch{
		IsActive: ptr(false),
		Schedule: &model.Schedule{End: &end},
	})
	require.NoError(t, err)
	assert.Equal(t, "A", got.Title, "untouched field kept")
	assert.False(t, got.IsActive)

	stored, err := db.GetLink(context.Background(), u.ID, l.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
	require.NotNil(t, stored.Schedule.End)
	assert.True(t, stored.Schedule.End.Equal(end))

	// An empty schedule clears the window.
	got, err = svc.Update(context.Background(), u.ID, l.ID, LinkPatch{Schedule: &model.Schedule{}})
	require.NoError(t, err)
	assert.Nil(t, got.Schedule.End)
}

func TestLinkUpdate_NotOwnedOrDeleted(t *testing.T) {
	svc, db, _ := newTestLinkService(t)
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")
	l := mustCreate(t, svc, alice.ID, "A")
	ctx := context.Background()

	_, err := svc.Update(ctx, bob.ID, l.ID, LinkPatch{Title: ptr("pwned")})
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	require.NoError(t, svc.Delete(ctx, alice.ID, l.ID))
	_, err = svc.Update(ctx, alice.ID, l.ID, LinkPatch{Title: ptr("zombie")})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

// =========================================================================
// SOFT DELETE / RESTORE
// =========================================================================

func TestSoftDeleteAndRestore(t *testing.T) {
	svc, db, c := newTestLinkService(t)
	u := createUser(t, db, "alice")
	ctx := context.Background()
	mustCreate(t, svc, u.ID, "A")
	b := mustCreate(t, svc, u.ID, "B")
	mustCreate(t, svc, u.ID, "C")

	require.NoError(t, svc.Delete(ctx, u.ID, b.ID))
	live, err := svc.List(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C"}, titlesOf(live))
	assert.Equal(t, 1, live[1].Position, "positions stay dense")

	deleted, err := svc.ListDeleted(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	at, ok := deleted[0].Status.DeletedAt()
	assert.True(t, ok)
	assert.True(t, at.Equal(c.Now()))

	c.Advance(29 * 24 * time.Hour)
	restored, err := svc.Restore(ctx, u.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, restored.Position)

	live, _ = svc.List(ctx, u.ID)
	assert.Equal(t, []string{"A", "B", "C"}, titlesOf(live))

	_, err = svc.Restore(ctx, u.ID, b.ID)
	assert.ErrorIs(t, err, apperror.ErrValidation, "restoring a live link")
}

func TestRestore_AfterWindowExpires(t *testing.T) {
	svc, db, c := newTestLinkService(t)
	u := createUser(t, db, "alice")
	ctx := context.Background()
	l := mustCreate(t, svc, u.ID, "A")

	require.NoError(t, svc.Delete(ctx, u.ID, l.ID))
	c.Advance(model.RecoveryWindow + time.Minute)

	_, err := svc.Restore(ctx, u.ID, l.ID)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "recovery window expired", appErr.Message)

	deleted, err := svc.ListDeleted(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, deleted, "expired links are no longer listed")
}

func TestPurgeExpired(t *testing.T) {
	svc, db, c := newTestLinkService(t)
	u := createUser(t, db, "alice")
	ctx := context.Background()
	old := mustCreate(t, svc, u.ID, "old")
	recent := mustCreate(t, svc, u.ID, "recent")
	mustCreate(t, svc, u.ID, "live")

	require.NoError(t, svc.Delete(ctx, u.ID, old.ID))
	c.Advance(20 * 24 * time.Hour)
	require.NoError(t, svc.Delete(ctx, u.ID, recent.ID))
	c.Advance(11 * 24 * time.Hour)

	n, err := svc.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = db.GetLink(ctx, u.ID, old.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	_, err = db.GetLink(ctx, u.ID, recent.ID)
	assert.NoError(t, err)
}

func TestDeletePermanently(t *testing.T) {
	svc, db, _ := newTestLinkService(t)
	u := createUser(t, db, "alice")
	ctx := context.Background()
	l := mustCreate(t, svc, u.ID, "A")
	mustCreate(t, svc, u.ID, "B")

	require.NoError(t, svc.DeletePermanently(ctx, u.ID, l.ID))
	live, _ := svc.List(ctx, u.ID)
	assert.Equal(t, []string{"B"}, titlesOf(live))
	assert.Equal(t, 0, live[0].Position)

	assert.ErrorIs(t, svc.DeletePermanently(ctx, u.ID, l.ID), apperror.ErrNotFound)
}

// =========================================================================
// REORDER
// =========================================================================

func TestReorder(t *testing.T) {
	svc, db, _ := newTestLinkService(t)
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")
	ctx := context.Background()
	a := mustCreate(t, svc, alice.ID, "A")
	b := mustCreate(t, svc, alice.ID, "B")
	cc := mustCreate(t, svc, alice.ID, "C")
	foreign := mustCreate(t, svc, bob.ID, "X")

	got, err := svc.Reorder(ctx, alice.ID, []string{cc.ID, a.ID, b.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "A", "B"}, titlesOf(got))

	_, err = svc.Reorder(ctx, alice.ID, []string{a.ID, foreign.ID})
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = svc.Reorder(ctx, alice.ID, []string{a.ID, a.ID})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	after, _ := svc.List(ctx, alice.ID)
	assert.Equal(t, []string{"C", "A", "B"}, titlesOf(after), "rejected reorders change nothing")
}

func TestLinkErrorsKeepTheirKind(t *testing.T) {
	svc, db, _ := newTestLinkService(t)
	u := createUser(t, db, "alice")

	err := svc.Delete(context.Background(), u.ID, "missing")
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) || !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Delete(missing) error = %v, want a wrapped not-found AppError", err)
	}
}
