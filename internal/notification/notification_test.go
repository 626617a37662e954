package notification

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestLoggerNotifierHidesBodyByDefault(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	n := NewLoggerNotifier(logger, false)
	if err := n.Send(context.Background(), Message{Kind: KindOTP, Destination: "+15551234567", Body: "code 999111"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if strings.Contains(buf.String(), "999111") {
		t.Fatalf("body leaked into log: %s", buf.String())
	}

	buf.Reset()
	n = NewLoggerNotifier(logger, true)
	_ = n.Send(context.Background(), Message{Kind: KindOTP, Destination: "+15551234567", Body: "code 999111"})
	if !strings.Contains(buf.String(), "999111") {
		t.Fatalf("expected body in log: %s", buf.String())
	}
}

func TestNilLoggerNotifier(t *testing.T) {
	var n *LoggerNotifier
	if err := n.Send(context.Background(), Message{}); err != nil {
		t.Fatalf("nil notifier should be a no-op: %v", err)
	}
}
