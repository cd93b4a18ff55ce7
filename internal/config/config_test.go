package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_RequiresDataRoot(t *testing.T) {
	os.Unsetenv("DATA_ROOT")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error when DATA_ROOT is missing")
	}
}

func TestLoad_WithDataRoot(t *testing.T) {
	os.Setenv("DATA_ROOT", "/srv/chronicle/data")
	defer os.Unsetenv("DATA_ROOT")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.DataRoot != "/srv/chronicle/data" {
		t.Errorf("expected DATA_ROOT to be set, got %s", cfg.DataRoot)
	}

	if cfg.Port != "8000" {
		t.Errorf("expected default port 8000, got %s", cfg.Port)
	}

	want := filepath.Join("/srv/chronicle/data", "exports")
	if cfg.ExportDir != want {
		t.Errorf("expected export dir %s, got %s", want, cfg.ExportDir)
	}
}

func TestLoad_ExplicitExportDir(t *testing.T) {
	os.Setenv("DATA_ROOT", "/srv/chronicle/data")
	os.Setenv("EXPORT_DIR", "/srv/out")
	defer os.Unsetenv("DATA_ROOT")
	defer os.Unsetenv("EXPORT_DIR")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ExportDir != "/srv/out" {
		t.Errorf("expected /srv/out, got %s", cfg.ExportDir)
	}
}

func TestConfig_IsDev(t *testing.T) {
	c := &Config{Env: "development"}
	if !c.IsDev() {
		t.Error("expected IsDev() to return true for development")
	}

	c.Env = "production"
	if c.IsDev() {
		t.Error("expected IsDev() to return false for production")
	}
}

func TestValidate(t *testing.T) {
	c := &Config{Env: "production"}
	if err := c.Validate(); err == nil {
		t.Error("expected production without a secret to fail validation")
	}

	c.APIJWTSecret = "short"
	if err := c.Validate(); err == nil {
		t.Error("expected a short secret to fail validation")
	}

	c.APIJWTSecret = strings.Repeat("s", 32)
	if err := c.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	dev := &Config{Env: "development"}
	if err := dev.Validate(); err != nil {
		t.Errorf("development without a secret should validate: %v", err)
	}
}
