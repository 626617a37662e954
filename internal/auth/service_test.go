package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/edu-api/edu_auth/internal/config"
	"github.com/edu-api/edu_auth/internal/identity"
)

func testConfig() config.Config {
	return config.Config{
		AccessSecret:    "access-secret",
		RefreshSecret:   "refresh-secret",
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 7 * 24 * time.Hour,
	}
}

func seedComplete(t *testing.T, repo identity.Repository, role identity.Role) identity.Identity {
	t.Helper()
	user := identity.New(uuid.NewString(), "+1555"+uuid.NewString()[:6], "123456")
	user.Username = "Ada"
	user.Lastname = "Lovelace"
	user.Role = role
	user.IsVerified = true
	user.Step = identity.StepComplete
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return user
}

func TestGenerateTokensCarriesClaims(t *testing.T) {
	repo := identity.NewMemoryRepository()
	svc := NewService(testConfig(), repo)
	user := seedComplete(t, repo, identity.RoleTeacher)

	pair, err := svc.GenerateTokens(user)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" || pair.AccessToken == pair.RefreshToken {
		t.Fatalf("expected two distinct tokens: %+v", pair)
	}

	claims, err := svc.ParseAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	if claims.Subject != user.ID || claims.Phone != user.Phone || claims.Role != identity.RoleTeacher {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if claims.Username != "Ada" || claims.Lastname != "Lovelace" {
		t.Fatalf("names missing from claims %+v", claims)
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt.Time); got != time.Hour {
		t.Fatalf("expected 1h access lifetime, got %s", got)
	}
}

func TestGenerateTokensRefusesIncompleteRegistration(t *testing.T) {
	svc := NewService(testConfig(), identity.NewMemoryRepository())
	user := identity.New(uuid.NewString(), "+15550001", "1")
	user.Step = identity.StepAwaitingRole

	if _, err := svc.GenerateTokens(user); !errors.Is(err, identity.ErrWrongStep) {
		t.Fatalf("expected ErrWrongStep, got %v", err)
	}
}

func TestRefreshReflectsCurrentIdentity(t *testing.T) {
	repo := identity.NewMemoryRepository()
	svc := NewService(testConfig(), repo)
	user := seedComplete(t, repo, identity.RoleUser)

	pair, err := svc.GenerateTokens(user)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	user.Role = identity.RoleAdmin
	user.Username = "Grace"
	if err := repo.Update(context.Background(), user); err != nil {
		t.Fatalf("update: %v", err)
	}

	refreshed, err := svc.Refresh(context.Background(), pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	claims, err := svc.ParseAccessToken(refreshed.AccessToken)
	if err != nil {
		t.Fatalf("parse refreshed access: %v", err)
	}
	if claims.Role != identity.RoleAdmin || claims.Username != "Grace" {
		t.Fatalf("refreshed claims are stale: %+v", claims)
	}
}

func TestRefreshRejectsInvalidTokens(t *testing.T) {
	repo := identity.NewMemoryRepository()
	svc := NewService(testConfig(), repo)
	user := seedComplete(t, repo, identity.RoleStudent)
	pair, err := svc.GenerateTokens(user)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	other := testConfig()
	other.RefreshSecret = "someone-else"
	forged, err := NewService(other, repo).GenerateTokens(user)
	if err != nil {
		t.Fatalf("generate forged: %v", err)
	}

	expiredSvc := NewService(testConfig(), repo)
	expiredSvc.now = func() time.Time { return time.Now().Add(-30 * 24 * time.Hour) }
	expired, err := expiredSvc.GenerateTokens(user)
	if err != nil {
		t.Fatalf("generate expired: %v", err)
	}

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: user.ID, ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		Use:              useRefresh,
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}

	cases := map[string]string{
		"empty":           "",
		"garbage":         "not-a-jwt",
		"wrong secret":    forged.RefreshToken,
		"expired":         expired.RefreshToken,
		"access token":    pair.AccessToken,
		"alg none":        noneToken,
	}
	for name, token := range cases {
		if _, err := svc.Refresh(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestRefreshRejectsMissingOrIncompleteIdentity(t *testing.T) {
	repo := identity.NewMemoryRepository()
	svc := NewService(testConfig(), repo)

	ghost := identity.New(uuid.NewString(), "+15559999", "1")
	ghost.Step = identity.StepComplete
	pair, err := svc.GenerateTokens(ghost)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := svc.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("missing identity: expected ErrInvalidToken, got %v", err)
	}

	user := seedComplete(t, repo, identity.RoleUser)
	pair, err = svc.GenerateTokens(user)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	user.Step = identity.StepAwaitingRole
	if err := repo.Update(context.Background(), user); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := svc.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("incomplete identity: expected ErrInvalidToken, got %v", err)
	}
}

func TestParseAccessTokenRejectsRefreshToken(t *testing.T) {
	repo := identity.NewMemoryRepository()
	cfg := testConfig()
	cfg.RefreshSecret = cfg.AccessSecret
	svc := NewService(cfg, repo)
	user := seedComplete(t, repo, identity.RoleUser)

	pair, err := svc.GenerateTokens(user)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := svc.ParseAccessToken(pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected token_use to be enforced, got %v", err)
	}
}
