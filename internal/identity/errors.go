package identity

import "errors"

var (
	// ErrNotFound indicates no identity exists for the requested key.
	ErrNotFound = errors.New("identity not found")

	// ErrInvalidCredential indicates an OTP mismatch or an unknown phone on verification.
	ErrInvalidCredential = errors.New("invalid OTP")

	// ErrWrongStep indicates an onboarding operation attempted out of sequence.
	ErrWrongStep = errors.New("wrong step")

	// ErrAlreadyRegistered indicates the phone already finished onboarding.
	ErrAlreadyRegistered = errors.New("user is already registered")

	// ErrRoleUpgradeDenied indicates only a USER may become STUDENT or TEACHER.
	ErrRoleUpgradeDenied = errors.New("only a USER can be upgraded to STUDENT or TEACHER")

	// ErrAdminCapacityExceeded indicates the admin seat limit is reached.
	ErrAdminCapacityExceeded = errors.New("maximum of 3 admins allowed")

	// ErrInvalidRole indicates an unknown role name.
	ErrInvalidRole = errors.New("role must be one of USER | ADMIN | STUDENT | TEACHER")

	// ErrInvalidInput indicates a missing or malformed request field.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict is reported by stores when a concurrent writer won a race
	// (duplicate phone, serialization failure). Atomic retries on it.
	ErrConflict = errors.New("identity store conflict")
)
