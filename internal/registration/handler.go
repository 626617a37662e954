package registration

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/edu-api/edu_auth/internal/otp"
)

// Handler exposes the onboarding and OTP login endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds the registration HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type phoneRequest struct {
	Phone string `json:"phone"`
}

type codeRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

type nameRequest struct {
	Phone    string `json:"phone"`
	Username string `json:"username"`
	Lastname string `json:"lastname"`
}

type roleRequest struct {
	UserID string `json:"userId"`
	Phone  string `json:"phone"`
	Role   string `json:"role"`
}

// Login sends an OTP to the phone, registering it on first contact.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req phoneRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody()
	}
	res, err := h.service.Login(c.UserContext(), req.Phone)
	if err != nil {
		return toHTTP(err)
	}
	return c.Status(http.StatusOK).JSON(res)
}

// VerifyLoginOTP completes an OTP login.
func (h *Handler) VerifyLoginOTP(c *fiber.Ctx) error {
	var req codeRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody()
	}
	res, err := h.service.VerifyLoginOTP(c.UserContext(), req.Phone, req.Code)
	if err != nil {
		return toHTTP(err)
	}
	return c.Status(http.StatusOK).JSON(res)
}

// CheckPhone reports registration status for a phone.
func (h *Handler) CheckPhone(c *fiber.Ctx) error {
	var req phoneRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody()
	}
	res, err := h.service.CheckPhone(c.UserContext(), req.Phone)
	if err != nil {
		return toHTTP(err)
	}
	return c.Status(http.StatusOK).JSON(res)
}

// SendOTP starts or restarts onboarding for a phone.
func (h *Handler) SendOTP(c *fiber.Ctx) error {
	var req phoneRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody()
	}
	res, err := h.service.SendOTP(c.UserContext(), req.Phone)
	if err != nil {
		return toHTTP(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"message": res.Message, "step": res.Step})
}

// VerifyOTP confirms the onboarding OTP.
func (h *Handler) VerifyOTP(c *fiber.Ctx) error {
	var req codeRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody()
	}
	res, err := h.service.VerifyOTP(c.UserContext(), req.Phone, req.Code)
	if err != nil {
		return toHTTP(err)
	}
	return c.Status(http.StatusOK).JSON(res)
}

// SetName stores the identity's names.
func (h *Handler) SetName(c *fiber.Ctx) error {
	var req nameRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody()
	}
	res, err := h.service.SetName(c.UserContext(), req.Phone, req.Username, req.Lastname)
	if err != nil {
		return toHTTP(err)
	}
	return c.Status(http.StatusOK).JSON(res)
}

// SetRole finishes onboarding and returns the first token pair.
func (h *Handler) SetRole(c *fiber.Ctx) error {
	var req roleRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody()
	}
	res, err := h.service.SetRole(c.UserContext(), IdentityRef{ID: req.UserID, Phone: req.Phone}, req.Role)
	if err != nil {
		return toHTTP(err)
	}
	return c.Status(http.StatusOK).JSON(res)
}

func badBody() error {
	return fiber.NewError(http.StatusBadRequest, "invalid request body")
}

// toHTTP turns a domain error into a fiber error. Server faults keep the
// original error so the error handler logs it and answers generically.
func toHTTP(err error) error {
	status := statusFor(err)
	switch {
	case status == http.StatusInternalServerError:
		return err
	case errors.Is(err, otp.ErrDeliveryFailure):
		return fiber.NewError(status, otp.ErrDeliveryFailure.Error())
	}
	return fiber.NewError(status, err.Error())
}
