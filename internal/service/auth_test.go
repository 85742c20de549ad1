package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sakif/linkbio/internal/apperror"
	"github.com/sakif/linkbio/internal/auth"
	"github.com/sakif/linkbio/internal/model"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeUserRepo is an in-memory repository.UserRepository. A hand-written
// fake keeps the behaviour under test visible.
type fakeUserRepo struct {
	users  map[string]*model.User
	nextID int
	// set to simulate a database failure
	createErr error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User), nextID: 1}
}

func (f *fakeUserRepo) CreateUser(_ context.Context, u *model.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	for _, existing := range f.users {
		if existing.Handle == u.Handle || (u.Email != "" && existing.Email == u.Email) ||
			(u.GitHubID != 0 && existing.GitHubID == u.GitHubID) {
			return apperror.Conflict("user", u.Handle)
		}
	}
	u.ID = "user-" + string(rune('0'+f.nextID))
	f.nextID++
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	copied := *u
	f.users[u.ID] = &copied
	return nil
}

func (f *fakeUserRepo) find(match func(*model.User) bool, label string) (*model.User, error) {
	for _, u := range f.users {
		if match(u) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("user", label)
}

func (f *fakeUserRepo) GetUserByID(_ context.Context, id string) (*model.User, error) {
	return f.find(func(u *model.User) bool { return u.ID == id }, id)
}

func (f *fakeUserRepo) GetUserByHandle(_ context.Context, handle string) (*model.User, error) {
	return f.find(func(u *model.User) bool { return u.Handle == handle }, handle)
}

func (f *fakeUserRepo) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	return f.find(func(u *model.User) bool { return u.Email != "" && strings.EqualFold(u.Email, email) }, email)
}

func (f *fakeUserRepo) GetUserByGitHubID(_ context.Context, id int64) (*model.User, error) {
	return f.find(func(u *model.User) bool { return u.GitHubID == id }, "github")
}

func (f *fakeUserRepo) HandleExists(_ context.Context, handle string) (bool, error) {
	_, err := f.GetUserByHandle(context.Background(), handle)
	return err == nil, nil
}

func (f *fakeUserRepo) UpdateProfile(_ context.Context, u *model.User) error {
	if _, ok := f.users[u.ID]; !ok {
		return apperror.NotFound("user", u.ID)
	}
	copied := *u
	f.users[u.ID] = &copied
	return nil
}

func newTestAuthService(t *testing.T, repo *fakeUserRepo) (*AuthService, *auth.TokenService) {
	t.Helper()
	ts, err := auth.NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return NewAuthService(repo, ts, auth.NewPasswordServiceForTest(4), testLogger()), ts
}

func signup(t *testing.T, svc *AuthService, handle string) *AuthResult {
	t.Helper()
	res, err := svc.Signup(context.Background(), SignupInput{
		Handle: handle, Email: handle + "@example.com", Password: "correct-horse",
	})
	if err != nil {
		t.Fatalf("Signup(%s) error = %v", handle, err)
	}
	return res
}

// =========================================================================
// SIGNUP TESTS
// =========================================================================

func TestSignup_Success(t *testing.T) {
	svc, tokens := newTestAuthService(t, newFakeUserRepo())

	res, err := svc.Signup(context.Background(), SignupInput{
		Handle: "  Alice ", Email: "Alice@Example.com", Password: "correct-horse",
	})
	if err != nil {
		t.Fatalf("Signup() error = %v", err)
	}
	if res.User.Handle != "alice" {
		t.Errorf("Handle = %q, want normalized %q", res.User.Handle, "alice")
	}
	if res.User.Email != "alice@example.com" {
		t.Errorf("Email = %q, want lowercased", res.User.Email)
	}
	if res.User.PasswordHash == "" || res.User.PasswordHash == "correct-horse" {
		t.Error("password was not hashed")
	}

	sub, err := tokens.Validate(res.Token)
	if err != nil || sub != res.User.ID {
		t.Errorf("token subject = %q, %v; want %q", sub, err, res.User.ID)
	}
}

func TestSignup_Validation(t *testing.T) {
	tests := []struct {
		name  string
		in    SignupInput
		field string
	}{
		{"short handle", SignupInput{"ab", "a@example.com", "long-enough"}, "handle"},
		{"bad characters", SignupInput{"al ice", "a@example.com", "long-enough"}, "handle"},
		{"reserved", SignupInput{"admin", "a@example.com", "long-enough"}, "handle"},
		{"missing email", SignupInput{"alice", "", "long-enough"}, "email"},
		{"malformed email", SignupInput{"alice", "not-an-email", "long-enough"}, "email"},
		{"display-name email", SignupInput{"alice", "Alice <a@example.com>", "long-enough"}, "email"},
		{"short password", SignupInput{"alice", "a@example.com", "short"}, "password"},
		{"long password", SignupInput{"alice", "a@example.com", strings.Repeat("x", 73)}, "password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestAuthService(t, newFakeUserRepo())
			_, err := svc.Signup(context.Background(), tt.in)

			var appErr *apperror.AppError
			if !errors.As(err, &appErr) || !errors.Is(err, apperror.ErrValidation) {
				t.Fatalf("Signup() error = %v, want validation error", err)
			}
			if appErr.Field != tt.field {
				t.Errorf("Field = %q, want %q", appErr.Field, tt.field)
			}
		})
	}
}

func TestSignup_Conflicts(t *testing.T) {
	svc, _ := newTestAuthService(t, newFakeUserRepo())
	signup(t, svc, "alice")

	_, err := svc.Signup(context.Background(), SignupInput{"ALICE", "other@example.com", "long-enough"})
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) || !errors.Is(err, apperror.ErrConflict) || appErr.Field != "handle" {
		t.Errorf("duplicate handle error = %v, want handle conflict", err)
	}

	_, err = svc.Signup(context.Background(), SignupInput{"alice2", "alice@example.com", "long-enough"})
	if !errors.As(err, &appErr) || !errors.Is(err, apperror.ErrConflict) || appErr.Field != "email" {
		t.Errorf("duplicate email error = %v, want email conflict", err)
	}
}

// =========================================================================
// LOGIN TESTS
// =========================================================================

func TestLogin(t *testing.T) {
	svc, _ := newTestAuthService(t, newFakeUserRepo())
	alice := signup(t, svc, "alice")

	tests := []struct {
		name       string
		identifier string
		password   string
		wantErr    bool
	}{
		{"by email", "alice@example.com", "correct-horse", false},
		{"by email any case", "ALICE@example.com", "correct-horse", false},
		{"by handle", "Alice", "correct-horse", false},
		{"wrong password", "alice", "wrong-horse", true},
		{"unknown user", "bob", "correct-horse", true},
		{"empty identifier", "", "correct-horse", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.Login(context.Background(), tt.identifier, tt.password)
			if tt.wantErr {
				if !errors.Is(err, apperror.ErrUnauthorized) {
					t.Fatalf("Login() error = %v, want ErrUnauthorized", err)
				}
				if err.Error() != "invalid credentials" {
					t.Errorf("message = %q, must not reveal which part was wrong", err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("Login() error = %v", err)
			}
			if res.User.ID != alice.User.ID {
				t.Errorf("logged in as %s, want %s", res.User.ID, alice.User.ID)
			}
		})
	}
}

func TestLogin_GitHubOnlyAccountHasNoPassword(t *testing.T) {
	svc, _ := newTestAuthService(t, newFakeUserRepo())
	if _, err := svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{ID: 7, Login: "octo"}); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Login(context.Background(), "octo", "some-password"); !errors.Is(err, apperror.ErrUnauthorized) {
		t.Errorf("Login() error = %v, want ErrUnauthorized", err)
	}
}

// =========================================================================
// GITHUB TESTS
// =========================================================================

func TestLoginOrRegisterGitHub_NewUser(t *testing.T) {
	svc, _ := newTestAuthService(t, newFakeUserRepo())

	res, err := svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{
		ID:        42,
		Login:     "Octo-Cat",
		Name:      "The Octocat",
		Email:     "octocat@github.com",
		AvatarURL: "https://avatars.githubusercontent.com/u/42",
	})
	if err != nil {
		t.Fatalf("LoginOrRegisterGitHub() error = %v", err)
	}
	if res.User.Handle != "octo_cat" {
		t.Errorf("Handle = %q, want %q", res.User.Handle, "octo_cat")
	}
	if res.User.Title != "The Octocat" || res.User.GitHubID != 42 {
		t.Errorf("profile not seeded from GitHub: %+v", res.User)
	}
	if res.Token == "" {
		t.Error("no token issued")
	}
}

func TestLoginOrRegisterGitHub_ReturningUser(t *testing.T) {
	repo := newFakeUserRepo()
	svc, _ := newTestAuthService(t, repo)

	first, err := svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{ID: 99, Login: "octo"})
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{ID: 99, Login: "renamed"})
	if err != nil {
		t.Fatal(err)
	}
	if second.User.ID != first.User.ID || len(repo.users) != 1 {
		t.Errorf("second login created a new account")
	}
}

func TestLoginOrRegisterGitHub_HandleSuffix(t *testing.T) {
	tests := []struct {
		name  string
		login string
		base  string
	}{
		{"taken handle", "alice", "alice_"},
		{"reserved handle", "admin", "admin_"},
		{"too short", "ab", "ab_"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestAuthService(t, newFakeUserRepo())
			signup(t, svc, "alice")

			res, err := svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{ID: 5, Login: tt.login})
			if err != nil {
				t.Fatalf("LoginOrRegisterGitHub() error = %v", err)
			}
			h := res.User.Handle
			if !strings.HasPrefix(h, tt.base) || len(h) != len(tt.base)+6 {
				t.Errorf("Handle = %q, want %q plus six characters", h, tt.base)
			}
			if reason := model.ValidateHandle(h); reason != "" {
				t.Errorf("derived handle %q is invalid: %s", h, reason)
			}
		})
	}
}

func TestLoginOrRegisterGitHub_EmailAlreadyUsed(t *testing.T) {
	svc, _ := newTestAuthService(t, newFakeUserRepo())
	signup(t, svc, "alice")

	res, err := svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{ID: 5, Login: "ally", Email: "alice@example.com"})
	if err != nil {
		t.Fatalf("LoginOrRegisterGitHub() error = %v", err)
	}
	if res.User.Email != "" {
		t.Errorf("Email = %q, want empty when already registered", res.User.Email)
	}
}

func TestLoginOrRegisterGitHub_Errors(t *testing.T) {
	repo := newFakeUserRepo()
	svc, _ := newTestAuthService(t, repo)

	if _, err := svc.LoginOrRegisterGitHub(context.Background(), nil); err == nil {
		t.Error("nil GitHub user accepted")
	}

	repo.createErr = errors.New("database is on fire")
	if _, err := svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{ID: 1, Login: "user"}); err == nil {
		t.Error("repository error was swallowed")
	}
}

func TestDeriveHandle(t *testing.T) {
	tests := []struct{ login, want string }{
		{"octocat", "octocat"},
		{"Octo-Cat", "octo_cat"},
		{".dotted.", "dotted"},
		{"---", "___"},
		{"", "user"},
		{strings.Repeat("a", 40), strings.Repeat("a", 30)},
	}
	for _, tt := range tests {
		if got := deriveHandle(tt.login); got != tt.want {
			t.Errorf("deriveHandle(%q) = %q, want %q", tt.login, got, tt.want)
		}
	}
}

// =========================================================================
// ME / HANDLE TESTS
// =========================================================================

func TestGetUserByID(t *testing.T) {
	svc, _ := newTestAuthService(t, newFakeUserRepo())
	alice := signup(t, svc, "alice")

	u, err := svc.GetUserByID(context.Background(), alice.User.ID)
	if err != nil || u.Handle != "alice" {
		t.Errorf("GetUserByID() = %v, %v", u, err)
	}
	if _, err := svc.GetUserByID(context.Background(), "missing"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUserByID(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := svc.GetUserByID(context.Background(), ""); !errors.Is(err, apperror.ErrUnauthorized) {
		t.Errorf("GetUserByID(\"\") error = %v, want ErrUnauthorized", err)
	}
}

func TestCheckHandle(t *testing.T) {
	svc, _ := newTestAuthService(t, newFakeUserRepo())
	signup(t, svc, "alice")

	tests := []struct {
		in        string
		handle    string
		available bool
	}{
		{"bob", "bob", true},
		{"ALICE", "alice", false},
		{"x", "x", false},
		{"api", "api", false},
	}
	for _, tt := range tests {
		got, err := svc.CheckHandle(context.Background(), tt.in)
		if err != nil {
			t.Fatalf("CheckHandle(%q) error = %v", tt.in, err)
		}
		if got.Handle != tt.handle || got.Available != tt.available {
			t.Errorf("CheckHandle(%q) = %+v, want handle %q available %v", tt.in, got, tt.handle, tt.available)
		}
		if !got.Available && got.Reason == "" {
			t.Errorf("CheckHandle(%q) gave no reason", tt.in)
		}
	}
}
