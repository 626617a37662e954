package notification

import (
	"context"
	"log/slog"
)

const (
	// KindOTP is a one-time verification code delivery.
	KindOTP = "otp"
)

// Message describes a notification payload.
type Message struct {
	Kind        string
	Destination string
	Body        string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the logger instead of a carrier.
// Bodies are only logged when revealBody is set, which local setups use to
// read codes off the console.
type LoggerNotifier struct {
	logger     *slog.Logger
	revealBody bool
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger, revealBody bool) *LoggerNotifier {
	return &LoggerNotifier{logger: logger, revealBody: revealBody}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(ctx context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	attrs := []slog.Attr{
		slog.String("kind", message.Kind),
		slog.String("destination", message.Destination),
	}
	if n.revealBody {
		attrs = append(attrs, slog.String("body", message.Body))
	}
	n.logger.LogAttrs(ctx, slog.LevelInfo, "notification", attrs...)
	return nil
}
