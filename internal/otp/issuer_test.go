package otp

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/edu-api/edu_auth/internal/logging"
	"github.com/edu-api/edu_auth/internal/notification"
)

type recordingNotifier struct {
	mu       sync.Mutex
	messages []notification.Message
	err      error
}

func (n *recordingNotifier) Send(_ context.Context, msg notification.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.messages = append(n.messages, msg)
	return nil
}

func TestIssueDeliversCode(t *testing.T) {
	notifier := &recordingNotifier{}
	issuer := NewIssuer(notifier, 6, logging.Discard())

	code, err := issuer.Issue(context.Background(), "+15550001")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("expected 6 digits, got %q", code)
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			t.Fatalf("expected numeric code, got %q", code)
		}
	}
	if len(notifier.messages) != 1 {
		t.Fatalf("expected one delivery, got %d", len(notifier.messages))
	}
	msg := notifier.messages[0]
	if msg.Kind != notification.KindOTP || msg.Destination != "+15550001" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if !strings.HasSuffix(msg.Body, code) {
		t.Fatalf("body %q does not carry code %q", msg.Body, code)
	}
}

func TestIssueHonoursLength(t *testing.T) {
	issuer := NewIssuer(&recordingNotifier{}, 8, logging.Discard())
	code, err := issuer.Issue(context.Background(), "+1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if len(code) != 8 {
		t.Fatalf("expected 8 digits, got %q", code)
	}

	issuer = NewIssuer(&recordingNotifier{}, 0, nil)
	code, _ = issuer.Issue(context.Background(), "+1")
	if len(code) != DefaultLength {
		t.Fatalf("expected default length, got %q", code)
	}
}

func TestIssueDeliveryFailure(t *testing.T) {
	cause := errors.New("carrier down")
	issuer := NewIssuer(&recordingNotifier{err: cause}, 6, logging.Discard())

	code, err := issuer.Issue(context.Background(), "+15550001")
	if !errors.Is(err, ErrDeliveryFailure) {
		t.Fatalf("expected ErrDeliveryFailure, got %v", err)
	}
	if code != "" {
		t.Fatalf("no code should be returned on failure, got %q", code)
	}
}
