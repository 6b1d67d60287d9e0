package tracer

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/safa0/amazon-bedrock-agent-samples/internal/domain"
	"github.com/safa0/amazon-bedrock-agent-samples/internal/infra/config"
)

func TestSetupDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TracerConfig{Enabled: false})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer shutdown(context.Background())

	if _, ok := otel.GetTracerProvider().(noop.TracerProvider); !ok {
		t.Errorf("expected noop provider, got %T", otel.GetTracerProvider())
	}
}

func TestSetupStdout(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TracerConfig{Enabled: true, Exporter: "stdout"})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer shutdown(context.Background())

	if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
		t.Errorf("expected sdk provider, got %T", otel.GetTracerProvider())
	}
}

func TestSetupEmptyExporter(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TracerConfig{Enabled: true})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer shutdown(context.Background())

	if _, ok := otel.GetTracerProvider().(noop.TracerProvider); !ok {
		t.Errorf("expected noop provider for empty exporter, got %T", otel.GetTracerProvider())
	}
}

func TestSetupUnsupportedExporter(t *testing.T) {
	if _, err := Setup(context.Background(), config.TracerConfig{Enabled: true, Exporter: "zipkin"}); err == nil {
		t.Error("expected error for unsupported exporter")
	}
}

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return rec
}

func TestDoRecordsOutcome(t *testing.T) {
	rec := recordSpans(t)

	if err := Do(context.Background(), "lifecycle.await", func(context.Context) error { return nil },
		StringAttr("resource", "news_agent")); err != nil {
		t.Fatalf("Do: %v", err)
	}
	failure := domain.NewDomainError("Poller.AwaitTerminal", domain.ErrLifecycleTimeout, "news_agent")
	err := Do(context.Background(), "lifecycle.await", func(context.Context) error { return failure })
	if !errors.Is(err, domain.ErrLifecycleTimeout) {
		t.Fatalf("Do should return fn's error, got %v", err)
	}

	spans := rec.Ended()
	if len(spans) != 2 {
		t.Fatalf("ended spans = %d, want 2", len(spans))
	}
	if spans[0].Status().Code != codes.Ok {
		t.Errorf("first span status = %v, want Ok", spans[0].Status().Code)
	}
	if spans[1].Status().Code != codes.Error {
		t.Errorf("second span status = %v, want Error", spans[1].Status().Code)
	}
	var code string
	for _, kv := range spans[1].Attributes() {
		if kv.Key == "error.code" {
			code = kv.Value.AsString()
		}
	}
	if code != string(domain.CodeLifecycleTimeout) {
		t.Errorf("error.code = %q, want %q", code, domain.CodeLifecycleTimeout)
	}
}

func TestAttrHelpers(t *testing.T) {
	if s := StringAttr("key", "value"); string(s.Key) != "key" {
		t.Errorf("StringAttr key = %q", s.Key)
	}
	if i := IntAttr("count", 42); i.Value.AsInt64() != 42 {
		t.Errorf("IntAttr value = %d", i.Value.AsInt64())
	}
}
