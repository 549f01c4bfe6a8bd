package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestCorrelationIDIsAddedToRecords(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(&correlationHandler{next: slog.NewTextHandler(&buf, nil)})

	ctx := WithCorrelationID(context.Background(), "req-42")
	log.InfoContext(ctx, "transfer committed", "tx_ref", "abc")

	if !strings.Contains(buf.String(), "correlation_id=req-42") {
		t.Fatalf("expected correlation id in %q", buf.String())
	}
}

func TestWithCorrelationIDGeneratesWhenEmpty(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "")
	if id := CorrelationID(ctx); len(id) != 21 {
		t.Fatalf("expected generated 21-char id, got %q", id)
	}
	if CorrelationID(context.Background()) != "" {
		t.Fatalf("expected empty id for bare context")
	}
}
