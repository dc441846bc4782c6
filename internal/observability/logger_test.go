package observability

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sqlsage/sqlsage/internal/config"
)

func TestNewLoggerCarriesServiceAndBackendAttrs(t *testing.T) {
	cfg, err := config.Load("sqlsage-api", func(string) (string, bool) { return "", false })
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	cfg.Observability.LogJSON = true

	var buf bytes.Buffer
	logger := NewLogger(cfg, &buf)
	logger.Info("ping")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("parse log line: %v", err)
	}
	if entry["service"] != "sqlsage-api" {
		t.Fatalf("service attr = %v", entry["service"])
	}
	if entry["backend"] != cfg.Backend.Driver {
		t.Fatalf("backend attr = %v, want %q", entry["backend"], cfg.Backend.Driver)
	}
}

func TestNewLoggerOmitsBackendAttrWhenUnset(t *testing.T) {
	cfg, err := config.Load("sqlsage-api", func(string) (string, bool) { return "", false })
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	cfg.Observability.LogJSON = true
	cfg.Backend.Driver = ""

	var buf bytes.Buffer
	NewLogger(cfg, &buf).Info("ping")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("parse log line: %v", err)
	}
	if _, ok := entry["backend"]; ok {
		t.Fatalf("unexpected backend attr in %v", entry)
	}
}
