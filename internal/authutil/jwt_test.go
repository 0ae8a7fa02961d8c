package authutil

import (
	"testing"
	"time"
)

func TestIssueAndValidateToken(t *testing.T) {
	s := NewSigner("test-secret", time.Hour)
	token, err := s.IssueToken("alice")
	if err != nil {
		t.Fatalf("IssueToken error: %v", err)
	}
	claims, err := s.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken error: %v", err)
	}
	if claims.Subject != "alice" {
		t.Fatalf("expected user alice, got %s", claims.Subject)
	}
	if claims.Operator {
		t.Fatalf("user token must not carry the operator flag")
	}
}

func TestOperatorToken(t *testing.T) {
	s := NewSigner("test-secret", time.Hour)
	token, err := s.IssueOperatorToken("ops")
	if err != nil {
		t.Fatalf("IssueOperatorToken error: %v", err)
	}
	claims, err := s.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken error: %v", err)
	}
	if !claims.Operator || claims.Subject != "ops" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestValidateTokenRejectsInvalid(t *testing.T) {
	s := NewSigner("test-secret", time.Hour)
	if _, err := s.ValidateToken(""); err == nil {
		t.Fatalf("expected error for empty token")
	}
	token, err := s.IssueToken("bob")
	if err != nil {
		t.Fatalf("IssueToken error: %v", err)
	}
	if _, err := s.ValidateToken(token + "x"); err == nil {
		t.Fatalf("expected error for tampered token")
	}
	other := NewSigner("other-secret", time.Hour)
	if _, err := other.ValidateToken(token); err == nil {
		t.Fatalf("expected error for foreign signer")
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	s := NewSigner("test-secret", time.Minute)
	issued := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return issued }
	token, err := s.IssueToken("carol")
	if err != nil {
		t.Fatalf("IssueToken error: %v", err)
	}
	s.now = func() time.Time { return issued.Add(2 * time.Minute) }
	if _, err := s.ValidateToken(token); err == nil {
		t.Fatalf("expected error for expired token")
	}
}
