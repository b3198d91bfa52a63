package telemetry

import (
	"context"
	"testing"
	"time"
)

func TestNewProvider_DisabledIsNoop(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatal(err)
	}
	if p.Enabled {
		t.Fatal("provider should be disabled")
	}
	ctx, span := p.StartSpan(context.Background(), "analyze")
	p.RecordAnalyze(ctx, "ok", 5*time.Millisecond, map[string]int{"PER": 1})
	span.End()
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestNewProvider_UnknownProtocol(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Enabled: true, Protocol: "udp"})
	if err == nil {
		t.Fatal("expected error")
	}
}
