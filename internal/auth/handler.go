package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/edu-api/edu_auth/internal/identity"
)

// ClaimsLocalKey is where the JWT middleware stores verified access claims.
const ClaimsLocalKey = "auth.claims"

// Handler exposes session endpoints: refresh and the current identity.
type Handler struct {
	svc    *Service
	idRepo identity.Repository
}

// NewHandler builds the session handlers over the credential service.
func NewHandler(svc *Service, idRepo identity.Repository) *Handler {
	return &Handler{svc: svc, idRepo: idRepo}
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Refresh exchanges a refresh token for a new pair.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		return fiber.NewError(http.StatusBadRequest, "refreshToken is required")
	}
	pair, err := h.svc.Refresh(c.UserContext(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			return fiber.NewError(http.StatusUnauthorized, "Could not refresh token")
		}
		return err
	}
	return c.Status(http.StatusOK).JSON(pair)
}

// Me returns the public view of the identity behind the access token.
func (h *Handler) Me(c *fiber.Ctx) error {
	claims, ok := c.Locals(ClaimsLocalKey).(Claims)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "missing access token")
	}
	user, err := h.idRepo.FindByID(c.UserContext(), claims.Subject)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return fiber.NewError(http.StatusUnauthorized, ErrInvalidToken.Error())
		}
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"user": user.Public(), "step": int(user.Step)})
}
