package auth_test

import (
	"errors"
	"testing"
	"time"

	"github.com/artpar/filinggate/adapters/auth"
	"github.com/artpar/filinggate/adapters/clock"
	"github.com/golang-jwt/jwt/v5"
)

var t0 = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

func TestTokenService_IssueAndVerify(t *testing.T) {
	svc := auth.NewTokenService("test-secret", "filinggate", time.Hour, clock.NewFake(t0))

	token, expiresAt, err := svc.Issue(42, "user@example.com")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if !expiresAt.Equal(t0.Add(time.Hour)) {
		t.Errorf("expiresAt = %v, want %v", expiresAt, t0.Add(time.Hour))
	}

	sess, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if sess.UserID != 42 || sess.Email != "user@example.com" {
		t.Errorf("Verify() = %+v", sess)
	}
}

func TestTokenService_Expired(t *testing.T) {
	clk := clock.NewFake(t0)
	svc := auth.NewTokenService("test-secret", "filinggate", time.Hour, clk)

	token, _, _ := svc.Issue(1, "a@example.com")
	clk.Advance(2 * time.Hour)

	if _, err := svc.Verify(token); !errors.Is(err, auth.ErrInvalidSession) {
		t.Errorf("Verify(expired) error = %v, want ErrInvalidSession", err)
	}
}

func TestTokenService_WrongSecret(t *testing.T) {
	clk := clock.NewFake(t0)
	issuer := auth.NewTokenService("secret-a", "filinggate", time.Hour, clk)
	verifier := auth.NewTokenService("secret-b", "filinggate", time.Hour, clk)

	token, _, _ := issuer.Issue(1, "a@example.com")
	if _, err := verifier.Verify(token); err == nil {
		t.Error("Verify() should reject a token signed with another secret")
	}
}

func TestTokenService_RejectsOtherAlgorithms(t *testing.T) {
	svc := auth.NewTokenService("test-secret", "", time.Hour, clock.NewFake(t0))

	claims := jwt.RegisteredClaims{Subject: "1", ExpiresAt: jwt.NewNumericDate(t0.Add(time.Hour))}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := svc.Verify(token); err == nil {
		t.Error("Verify() should reject HS512 tokens")
	}
}

func TestTokenService_RequiresSubject(t *testing.T) {
	svc := auth.NewTokenService("test-secret", "", time.Hour, clock.NewFake(t0))

	claims := jwt.RegisteredClaims{Subject: "not-a-number", ExpiresAt: jwt.NewNumericDate(t0.Add(time.Hour))}
	token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))

	if _, err := svc.Verify(token); !errors.Is(err, auth.ErrNoSubject) {
		t.Errorf("Verify() error = %v, want ErrNoSubject", err)
	}
}

func TestTokenService_Garbage(t *testing.T) {
	svc := auth.NewTokenService("", "", 0, clock.NewFake(t0))
	if _, err := svc.Verify("not.a.jwt"); err == nil {
		t.Error("Verify(garbage) should fail")
	}
}

func TestGenerateSecret(t *testing.T) {
	a, b := auth.GenerateSecret(), auth.GenerateSecret()
	if len(a) != 64 || a == b {
		t.Errorf("GenerateSecret() = %q, %q", a, b)
	}
}
