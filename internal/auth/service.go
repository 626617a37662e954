package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/edu-api/edu_auth/internal/config"
	"github.com/edu-api/edu_auth/internal/identity"
)

// ErrInvalidToken covers every token verification failure. Callers never
// learn whether a token was expired, malformed or signed with another key.
var ErrInvalidToken = errors.New("invalid or expired token")

const (
	useAccess  = "access"
	useRefresh = "refresh"
)

// Claims is the signed claim set carried by access and refresh tokens.
type Claims struct {
	jwt.RegisteredClaims
	Phone    string        `json:"phone"`
	Role     identity.Role `json:"role"`
	Username string        `json:"username"`
	Lastname string        `json:"lastname"`
	Use      string        `json:"token_use"`
}

// Service signs and verifies session credentials.
type Service struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	idRepo        identity.Repository
	now           func() time.Time
}

// NewService builds the credential issuer from the token settings in cfg.
func NewService(cfg config.Config, idRepo identity.Repository) *Service {
	return &Service{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTokenTTL,
		refreshTTL:    cfg.RefreshTokenTTL,
		idRepo:        idRepo,
		now:           time.Now,
	}
}

// GenerateTokens signs a fresh access/refresh pair for a fully onboarded identity.
func (s *Service) GenerateTokens(user identity.Identity) (identity.TokenPair, error) {
	if !user.Complete() {
		return identity.TokenPair{}, fmt.Errorf("%w: registration incomplete at step %d", identity.ErrWrongStep, int(user.Step))
	}
	now := s.now()
	access, err := s.sign(user, useAccess, s.accessSecret, now, s.accessTTL)
	if err != nil {
		return identity.TokenPair{}, err
	}
	refresh, err := s.sign(user, useRefresh, s.refreshSecret, now, s.refreshTTL)
	if err != nil {
		return identity.TokenPair{}, err
	}
	return identity.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *Service) sign(user identity.Identity, use string, secret []byte, now time.Time, ttl time.Duration) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Phone:    user.Phone,
		Role:     user.Role,
		Username: user.Username,
		Lastname: user.Lastname,
		Use:      use,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", use, err)
	}
	return signed, nil
}

// Refresh exchanges a refresh token for a new pair derived from the identity
// as it is stored now, not as it was when the token was signed.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (identity.TokenPair, error) {
	claims, err := s.parse(refreshToken, useRefresh, s.refreshSecret)
	if err != nil {
		return identity.TokenPair{}, err
	}

	user, err := s.idRepo.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return identity.TokenPair{}, ErrInvalidToken
		}
		return identity.TokenPair{}, fmt.Errorf("load identity: %w", err)
	}
	if !user.Complete() {
		return identity.TokenPair{}, ErrInvalidToken
	}
	return s.GenerateTokens(user)
}

// ParseAccessToken verifies an access token and returns its claims.
func (s *Service) ParseAccessToken(token string) (Claims, error) {
	return s.parse(token, useAccess, s.accessSecret)
}

func (s *Service) parse(token, use string, secret []byte) (Claims, error) {
	if token == "" {
		return Claims{}, ErrInvalidToken
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	if claims.Use != use || claims.Subject == "" {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}
