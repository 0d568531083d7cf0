package common

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

type pickRequest struct {
	Name string `validate:"required"`
	Mode string `validate:"oneof=auto always never"`
}

func TestValidateStruct(t *testing.T) {
	if err := ValidateStruct(pickRequest{Name: "a.jpg", Mode: "auto"}); err != nil {
		t.Errorf("expected valid struct, got %v", err)
	}
	if err := ValidateStruct(pickRequest{Mode: "auto"}); err == nil {
		t.Error("expected missing name to fail")
	}
	if err := ValidateStruct(pickRequest{Name: "a.jpg", Mode: "sometimes"}); err == nil {
		t.Error("expected unknown mode to fail")
	}
}

func TestGenericEchoValidator(t *testing.T) {
	v := &GenericEchoValidator{}
	err := v.Validate(&pickRequest{Mode: "auto"})

	var httpErr *echo.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected echo.HTTPError, got %v", err)
	}
	if httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", httpErr.Code)
	}
}

func TestConfigureLogging(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	var buf bytes.Buffer
	logger := ConfigureLogging(&buf, "warn", "json")
	logger.Info("hidden")
	slog.Warn("shown", "key", "value")

	out := strings.TrimSpace(buf.String())
	if strings.Contains(out, "hidden") {
		t.Errorf("info record should be filtered at warn level: %s", out)
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(out), &record); err != nil {
		t.Fatalf("expected one JSON record, got %q: %v", out, err)
	}
	if record["msg"] != "shown" || record["key"] != "value" {
		t.Errorf("unexpected record %v", record)
	}

	buf.Reset()
	ConfigureLogging(&buf, "bogus", "text").Debug("debug line")
	if buf.Len() != 0 {
		t.Errorf("unknown level should fall back to info, got %q", buf.String())
	}
}
