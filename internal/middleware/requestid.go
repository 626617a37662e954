package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDLocal  = "request_id"
	maxRequestIDLen = 64
)

// RequestID propagates the caller's X-Request-ID or mints a new one.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqID := c.Get(requestIDHeader)
		if reqID == "" || len(reqID) > maxRequestIDLen {
			reqID = uuid.NewString()
		}
		c.Set(requestIDHeader, reqID)
		c.Locals(requestIDLocal, reqID)
		return c.Next()
	}
}

// RequestIDFrom returns the id assigned by RequestID, if any.
func RequestIDFrom(c *fiber.Ctx) string {
	id, _ := c.Locals(requestIDLocal).(string)
	return id
}
