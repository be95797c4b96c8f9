package feeders

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type dotEnvConfig struct {
	Name    string        `env:"NAME"`
	Port    int           `env:"PORT"`
	Tags    []string      `env:"TAGS"`
	Timeout time.Duration `env:"TIMEOUT"`
}

func TestDotEnvFeeder(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := `# local overrides
APP_NAME="dotenv app"
export APP_PORT=9090
APP_TAGS=a, b
APP_TIMEOUT='45s'
OTHER_NAME=ignored
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	var cfg dotEnvConfig
	if err := NewDotEnvFeeder(path, "APP", "").Feed(&cfg); err != nil {
		t.Fatalf("Feed() error = %v", err)
	}
	if cfg.Name != "dotenv app" {
		t.Errorf("Name = %q", cfg.Name)
	}
	if cfg.Port != 9090 {
		t.Errorf("Port = %d", cfg.Port)
	}
	if len(cfg.Tags) != 2 || cfg.Tags[1] != "b" {
		t.Errorf("Tags = %v", cfg.Tags)
	}
	if cfg.Timeout != 45*time.Second {
		t.Errorf("Timeout = %v", cfg.Timeout)
	}
}

func TestDotEnvFeederErrors(t *testing.T) {
	var cfg dotEnvConfig
	if err := NewDotEnvFeeder(filepath.Join(t.TempDir(), "missing.env"), "APP", "").Feed(&cfg); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("NOT A PAIR\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := NewDotEnvFeeder(path, "APP", "").Feed(&cfg); err == nil {
		t.Error("expected error for invalid line")
	}

	if err := os.WriteFile(path, []byte("APP_NAME=x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := NewDotEnvFeeder(path, "APP", "").Feed(cfg); err == nil {
		t.Error("expected error for non-pointer target")
	}
}
