package otel

import (
	"context"
	"testing"
)

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" api-key = abc ,broken, =x,tenant=vault")
	if len(headers) != 2 || headers["api-key"] != "abc" || headers["tenant"] != "vault" {
		t.Fatalf("unexpected headers %v", headers)
	}
}

func TestConfigFromEnvDisabledWithoutEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	cfg := ConfigFromEnv("vaultd", "test")
	if cfg.Traces || cfg.Metrics {
		t.Fatalf("exporters enabled without endpoint: %+v", cfg)
	}
	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestConfigFromEnvStripsScheme(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://collector:4318")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "true")
	cfg := ConfigFromEnv("vaultd", "")
	if cfg.Endpoint != "collector:4318" || !cfg.Insecure || !cfg.Traces {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestInitRequiresServiceName(t *testing.T) {
	if _, err := Init(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error without service name")
	}
}
