package registration

import (
	"errors"
	"net/http"

	"github.com/edu-api/edu_auth/internal/auth"
	"github.com/edu-api/edu_auth/internal/identity"
	"github.com/edu-api/edu_auth/internal/otp"
)

// statusFor maps domain failures onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, identity.ErrInvalidInput),
		errors.Is(err, identity.ErrInvalidRole),
		errors.Is(err, identity.ErrInvalidCredential):
		return http.StatusBadRequest
	case errors.Is(err, identity.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, identity.ErrWrongStep),
		errors.Is(err, identity.ErrAlreadyRegistered),
		errors.Is(err, identity.ErrAdminCapacityExceeded):
		return http.StatusConflict
	case errors.Is(err, identity.ErrRoleUpgradeDenied):
		return http.StatusForbidden
	case errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, otp.ErrDeliveryFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func isClientError(err error) bool {
	return statusFor(err) < http.StatusInternalServerError
}
