package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	return entry
}

func TestWithEnrichesContextLogger(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	ctx := ContextWithLogger(context.Background(), base.With(KeyRequestID, 7))
	ctx = With(ctx, KeyPrincipalID, "owner-1")
	FromContext(ctx).Info("slot approved", KeyEventID, "evt-1")

	entry := decodeLine(t, &buf)
	if entry[KeyRequestID] != float64(7) || entry[KeyPrincipalID] != "owner-1" || entry[KeyEventID] != "evt-1" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestWithoutLoggerIsNoop(t *testing.T) {
	ctx := context.Background()
	if got := With(ctx, KeyEventID, "evt-1"); got != ctx {
		t.Fatalf("expected unchanged context")
	}
	if FromContext(ctx) != nil {
		t.Fatalf("expected no logger on a bare context")
	}
}

func TestScopedPrefersContextLogger(t *testing.T) {
	var ctxBuf, fallbackBuf bytes.Buffer
	ctx := ContextWithLogger(context.Background(), slog.New(slog.NewJSONHandler(&ctxBuf, nil)))
	fallback := slog.New(slog.NewJSONHandler(&fallbackBuf, nil))

	Scoped(ctx, fallback, "service", "EventService", "ApproveSlots", KeySlotID, "s1").Info("done")
	if fallbackBuf.Len() != 0 {
		t.Fatalf("fallback logger must not be used when the context carries one")
	}
	entry := decodeLine(t, &ctxBuf)
	if entry["service"] != "EventService" || entry["operation"] != "ApproveSlots" || entry[KeySlotID] != "s1" {
		t.Fatalf("unexpected entry %v", entry)
	}

	Scoped(context.Background(), fallback, "handler", "EventHandler", "").Info("done")
	entry = decodeLine(t, &fallbackBuf)
	if entry["handler"] != "EventHandler" {
		t.Fatalf("unexpected entry %v", entry)
	}
	if _, ok := entry["operation"]; ok {
		t.Fatalf("empty operation must be omitted, got %v", entry)
	}
}
