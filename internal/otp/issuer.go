package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"

	"github.com/edu-api/edu_auth/internal/notification"
)

const (
	// DefaultLength is the number of digits in an issued code.
	DefaultLength = 6

	messageTemplate = "Your verification code is %s"
)

// ErrDeliveryFailure indicates the code could not be handed to the transport.
var ErrDeliveryFailure = errors.New("otp delivery failed")

// Issuer generates numeric codes and dispatches them. It keeps no record of
// what it issued; callers persist and compare codes.
type Issuer struct {
	notifier notification.Notifier
	length   int
	random   io.Reader
	logger   *slog.Logger
}

// NewIssuer wires an issuer to a delivery capability.
func NewIssuer(notifier notification.Notifier, length int, logger *slog.Logger) *Issuer {
	if length <= 0 {
		length = DefaultLength
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Issuer{
		notifier: notifier,
		length:   length,
		random:   rand.Reader,
		logger:   logger,
	}
}

// Issue generates a fresh code, delivers it to phone and returns it. Nothing
// is returned unless delivery succeeded.
func (i *Issuer) Issue(ctx context.Context, phone string) (string, error) {
	code, err := i.generate()
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}

	msg := notification.Message{
		Kind:        notification.KindOTP,
		Destination: phone,
		Body:        fmt.Sprintf(messageTemplate, code),
	}
	if err := i.notifier.Send(ctx, msg); err != nil {
		i.logger.WarnContext(ctx, "otp delivery failed", "phone", phone, "error", err)
		return "", fmt.Errorf("%w: %v", ErrDeliveryFailure, err)
	}
	return code, nil
}

func (i *Issuer) generate() (string, error) {
	digits := make([]byte, i.length)
	ten := big.NewInt(10)
	for idx := range digits {
		n, err := rand.Int(i.random, ten)
		if err != nil {
			return "", err
		}
		digits[idx] = byte('0' + n.Int64())
	}
	return string(digits), nil
}
