package auth

import (
	"strings"
	"testing"
	"time"
)

func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	ts, err := NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

// =========================================================================
// CONSTRUCTION TESTS
// =========================================================================

func TestNewTokenService(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		ttl     time.Duration
		wantErr bool
		wantTTL time.Duration
	}{
		{"short secret", "short", time.Hour, true, 0},
		{"exactly 16 chars", "this-is-16-chars", time.Hour, false, time.Hour},
		{"zero ttl falls back", "this-is-16-chars", 0, false, DefaultTokenTTL},
		{"negative ttl falls back", "this-is-16-chars", -time.Minute, false, DefaultTokenTTL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, err := NewTokenService(tt.secret, tt.ttl)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewTokenService() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && ts.TTL() != tt.wantTTL {
				t.Errorf("TTL() = %v, want %v", ts.TTL(), tt.wantTTL)
			}
		})
	}
}

// =========================================================================
// GENERATE / VALIDATE TESTS
// =========================================================================

func TestGenerate_LooksLikeJWT(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Generate("user-123")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	// header.payload.signature
	if n := strings.Count(token, "."); n != 2 {
		t.Errorf("token has %d dots, want 2", n)
	}

	other, _ := ts.Generate("user-456")
	if token == other {
		t.Error("different users got identical tokens")
	}
}

func TestValidate_RoundTrip(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Generate("user-abc-123")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	got, err := ts.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got != "user-abc-123" {
		t.Errorf("Validate() userID = %q, want %q", got, "user-abc-123")
	}
}

func TestValidate_Rejects(t *testing.T) {
	ts := newTestTokenService(t)
	good, _ := ts.Generate("user-123")
	expired, _ := ts.GenerateWithDuration("user-123", -time.Second)
	other, _ := NewTokenService("a-completely-different-secret!!", time.Hour)
	foreign, _ := other.Generate("user-123")
	noSubject, _ := ts.Generate("")

	tests := []struct {
		name  string
		token string
	}{
		{"expired", expired},
		{"tampered signature", good[:len(good)-3] + "xxx"},
		{"signed with another secret", foreign},
		{"empty subject", noSubject},
		{"empty string", ""},
		{"garbage", "not.a.jwt.token"},
		// {"alg":"none","typ":"JWT"} . {"sub":"user-123","iss":"linkbio"} .
		{"alg none", "eyJhbGciOiJub25lIiwidHlwIjoiSldUIn0.eyJzdWIiOiJ1c2VyLTEyMyIsImlzcyI6ImxpbmtiaW8ifQ."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ts.Validate(tt.token); err == nil {
				t.Errorf("Validate(%s) succeeded, want error", tt.name)
			}
		})
	}
}

func TestGenerateWithDuration_FutureToken(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.GenerateWithDuration("user-123", 10*time.Minute)
	if err != nil {
		t.Fatalf("GenerateWithDuration() error = %v", err)
	}
	if _, err := ts.Validate(token); err != nil {
		t.Fatalf("Validate() on 10m token error = %v", err)
	}
}
