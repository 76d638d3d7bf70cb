package auth

import (
	"errors"
	"testing"
	"time"

	"hr-suite/internal/config"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(config.AuthConfig{
		JWTSecret:       "secret",
		JWTIssuer:       "issuer",
		JWTAudience:     "aud",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	return m
}

func TestIssueAndVerifyAccessToken(t *testing.T) {
	m := testManager(t)

	now := time.Unix(1700000000, 0).UTC()
	pair, err := m.IssuePair(now, "user-1", "hr_manager")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("expected token strings")
	}
	if !pair.ExpiresAt.Equal(now.Add(15 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", pair.ExpiresAt)
	}

	claims, err := m.Verify(pair.AccessToken, TokenTypeAccess, now.Add(1*time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Principal() != "user-1" || claims.Role != "hr_manager" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	refresh, err := m.Verify(pair.RefreshToken, TokenTypeRefresh, now.Add(1*time.Minute))
	if err != nil {
		t.Fatalf("verify refresh: %v", err)
	}
	if refresh.Role != "" {
		t.Fatalf("refresh tokens must not carry a role, got %q", refresh.Role)
	}
}

func TestIssuePair_RequiresPrincipalAndRole(t *testing.T) {
	m := testManager(t)
	if _, err := m.IssuePair(time.Now(), " ", "employee"); !errors.Is(err, ErrMissingPrincipal) {
		t.Fatalf("expected ErrMissingPrincipal, got %v", err)
	}
	if _, err := m.IssuePair(time.Now(), "u", ""); !errors.Is(err, ErrMissingRole) {
		t.Fatalf("expected ErrMissingRole, got %v", err)
	}
}

func TestVerifyRejectsWrongTokenType(t *testing.T) {
	m := testManager(t)
	p, err := m.IssuePair(time.Now(), "u", "employee")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(p.RefreshToken, TokenTypeAccess, time.Now()); !errors.Is(err, ErrTokenType) {
		t.Fatalf("expected token_type mismatch, got %v", err)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	m := testManager(t)
	now := time.Unix(1700000000, 0).UTC()
	p, err := m.IssuePair(now, "u", "employee")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(p.AccessToken, TokenTypeAccess, now.Add(20*time.Minute)); err == nil {
		t.Fatalf("expected expiry error")
	}
}

func TestVerifyRejectsForeignAudience(t *testing.T) {
	m := testManager(t)
	other, err := NewManager(config.AuthConfig{
		JWTSecret:       "secret",
		JWTIssuer:       "issuer",
		JWTAudience:     "someone-else",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
	})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	now := time.Now()
	p, err := other.IssuePair(now, "u", "employee")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(p.AccessToken, TokenTypeAccess, now); err == nil {
		t.Fatalf("expected audience mismatch")
	}
}

func TestRefresh(t *testing.T) {
	m := testManager(t)
	now := time.Unix(1700000000, 0).UTC()
	p, err := m.IssuePair(now, "u", "employee")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	later := now.Add(time.Hour)
	next, err := m.Refresh(p.RefreshToken, "department_head", later)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	c, err := m.Verify(next.AccessToken, TokenTypeAccess, later)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if c.Principal() != "u" || c.Role != "department_head" {
		t.Fatalf("unexpected claims: %+v", c)
	}

	if _, err := m.Refresh(p.AccessToken, "employee", later); err == nil {
		t.Fatalf("access tokens must not refresh")
	}
}

func TestNewManager_Validates(t *testing.T) {
	if _, err := NewManager(config.AuthConfig{AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour}); err == nil {
		t.Fatalf("expected missing secret error")
	}
	if _, err := NewManager(config.AuthConfig{JWTSecret: "s"}); err == nil {
		t.Fatalf("expected ttl error")
	}
}
