package identity

import (
	"fmt"
	"strings"
	"time"
)

// Role is the authorization role attached to an identity.
type Role string

const (
	RoleUser    Role = "USER"
	RoleAdmin   Role = "ADMIN"
	RoleStudent Role = "STUDENT"
	RoleTeacher Role = "TEACHER"
)

// ParseRole validates a role name. Matching is case-insensitive.
func ParseRole(value string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(value)))
	switch role {
	case RoleUser, RoleAdmin, RoleStudent, RoleTeacher:
		return role, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, value)
	}
}

// Identity is the durable per-phone record.
type Identity struct {
	ID         string
	Phone      string
	Username   string
	Lastname   string
	Role       Role
	Code       string
	IsVerified bool
	Step       Step
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// New returns a fresh identity at the first onboarding step holding code.
func New(id, phone, code string) Identity {
	return Identity{
		ID:    id,
		Phone: phone,
		Role:  RoleUser,
		Code:  code,
		Step:  StepAwaitingOTP,
	}
}

// Complete reports whether onboarding has finished.
func (i Identity) Complete() bool {
	return i.Step == StepComplete
}

// Public is the identity projection safe to return to clients.
type Public struct {
	ID         string `json:"id"`
	Phone      string `json:"phone"`
	Username   string `json:"username"`
	Lastname   string `json:"lastname"`
	IsVerified bool   `json:"isVerified"`
	Role       Role   `json:"role"`
}

// Public strips the stored OTP and bookkeeping fields.
func (i Identity) Public() Public {
	return Public{
		ID:         i.ID,
		Phone:      i.Phone,
		Username:   i.Username,
		Lastname:   i.Lastname,
		IsVerified: i.IsVerified,
		Role:       i.Role,
	}
}

// TokenPair is a freshly signed access/refresh credential pair.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}
