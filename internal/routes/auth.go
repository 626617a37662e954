package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/edu-api/edu_auth/internal/auth"
	"github.com/edu-api/edu_auth/internal/registration"
)

// AuthHandlers groups what the /auth tree needs.
type AuthHandlers struct {
	Registration *registration.Handler
	Session      *auth.Handler
	OTPLimit     fiber.Handler
	RequireToken fiber.Handler
	// Idempotent is mounted only on routes that neither check an OTP nor
	// return credentials.
	Idempotent fiber.Handler
}

func passThrough(c *fiber.Ctx) error { return c.Next() }

// RegisterAuthRoutes wires the onboarding, OTP login and session endpoints.
func RegisterAuthRoutes(r fiber.Router, h AuthHandlers) {
	otpLimit := h.OTPLimit
	if otpLimit == nil {
		otpLimit = passThrough
	}
	idempotent := h.Idempotent
	if idempotent == nil {
		idempotent = passThrough
	}

	group := r.Group("/auth")
	group.Post("/login", idempotent, otpLimit, h.Registration.Login)
	group.Post("/login/verify-otp", h.Registration.VerifyLoginOTP)
	group.Post("/check", h.Registration.CheckPhone)
	group.Post("/refresh-token", h.Session.Refresh)

	step := group.Group("/step")
	step.Post("/send-otp", idempotent, otpLimit, h.Registration.SendOTP)
	step.Post("/verify-otp", h.Registration.VerifyOTP)
	step.Post("/set-name", idempotent, h.Registration.SetName)
	step.Post("/set-role", h.Registration.SetRole)

	if h.RequireToken != nil {
		group.Get("/me", h.RequireToken, h.Session.Me)
	}
}
