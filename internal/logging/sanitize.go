package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

const redactedValue = "[REDACTED]"

var (
	sensitiveKeys     = map[string]struct{}{"code": {}, "otp": {}, "pin": {}}
	sensitiveKeyParts = []string{"token", "secret", "password", "authorization"}
	phoneKeys         = map[string]struct{}{"phone": {}, "destination": {}, "to": {}}
)

// SanitizingHandler rewrites attributes before handing records to the next handler.
type SanitizingHandler struct {
	next slog.Handler
}

// WrapHandler returns next wrapped in a SanitizingHandler.
func WrapHandler(next slog.Handler) slog.Handler {
	if next == nil {
		return nil
	}
	return &SanitizingHandler{next: next}
}

func (h *SanitizingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *SanitizingHandler) Handle(ctx context.Context, rec slog.Record) error {
	out := slog.NewRecord(rec.Time, rec.Level, rec.Message, rec.PC)
	rec.Attrs(func(attr slog.Attr) bool {
		out.AddAttrs(SanitizeAttr(attr))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *SanitizingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	sanitized := make([]slog.Attr, 0, len(attrs))
	for _, attr := range attrs {
		sanitized = append(sanitized, SanitizeAttr(attr))
	}
	return &SanitizingHandler{next: h.next.WithAttrs(sanitized)}
}

func (h *SanitizingHandler) WithGroup(name string) slog.Handler {
	return &SanitizingHandler{next: h.next.WithGroup(name)}
}

// SanitizeAttr redacts secrets and masks phone numbers.
func SanitizeAttr(attr slog.Attr) slog.Attr {
	key := strings.ToLower(strings.TrimSpace(attr.Key))
	switch {
	case isSensitiveKey(key):
		return slog.String(attr.Key, redactedValue)
	case isPhoneKey(key):
		return slog.String(attr.Key, MaskPhone(attr.Value.Resolve().String()))
	case attr.Value.Kind() == slog.KindGroup:
		group := attr.Value.Group()
		sanitized := make([]any, 0, len(group))
		for _, a := range group {
			sanitized = append(sanitized, SanitizeAttr(a))
		}
		return slog.Group(attr.Key, sanitized...)
	}
	return attr
}

// MaskPhone keeps only the last four characters of a phone number.
func MaskPhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if len(phone) <= 4 {
		return strings.Repeat("*", len(phone))
	}
	return fmt.Sprintf("%s%s", strings.Repeat("*", len(phone)-4), phone[len(phone)-4:])
}

func isSensitiveKey(key string) bool {
	if _, ok := sensitiveKeys[key]; ok {
		return true
	}
	for _, part := range sensitiveKeyParts {
		if strings.Contains(key, part) {
			return true
		}
	}
	return false
}

func isPhoneKey(key string) bool {
	_, ok := phoneKeys[key]
	return ok
}
