package feeders

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func typeName(v interface{}) string {
	return fmt.Sprintf("%T", v)
}

func TestAffixedEnvFeeder(t *testing.T) {
	type Config struct {
		Server string `env:"SERVER"`
		HMR    bool   `env:"HMR"`
		Port   int    `env:"PORT"`
		Dev    struct {
			Ignore []string      `env:"IGNORE"`
			Rescan time.Duration `env:"RESCAN"`
		}
	}

	t.Run("with prefix", func(t *testing.T) {
		t.Setenv("WATCHRELOAD_SERVER", "ws://example:1/ws")
		t.Setenv("WATCHRELOAD_HMR", "true")
		t.Setenv("WATCHRELOAD_PORT", "8080")
		t.Setenv("WATCHRELOAD_IGNORE", "node_modules/**, .git/**")
		t.Setenv("WATCHRELOAD_RESCAN", "30s")

		var config Config
		if err := NewAffixedEnvFeeder("watchreload", "").Feed(&config); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if config.Server != "ws://example:1/ws" {
			t.Errorf("Expected Server, got '%s'", config.Server)
		}
		if !config.HMR || config.Port != 8080 {
			t.Errorf("Expected HMR and Port, got %v %d", config.HMR, config.Port)
		}
		if len(config.Dev.Ignore) != 2 || config.Dev.Ignore[1] != ".git/**" {
			t.Errorf("Expected ignore list, got %v", config.Dev.Ignore)
		}
		if config.Dev.Rescan != 30*time.Second {
			t.Errorf("Expected 30s rescan, got %v", config.Dev.Rescan)
		}
	})

	t.Run("with suffix", func(t *testing.T) {
		t.Setenv("SERVER_DEV", "ws://dev/ws")
		var config Config
		if err := NewAffixedEnvFeeder("", "dev").Feed(&config); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if config.Server != "ws://dev/ws" {
			t.Errorf("Expected Server, got '%s'", config.Server)
		}
	})

	t.Run("keeps values without env", func(t *testing.T) {
		config := Config{Server: "kept"}
		if err := NewAffixedEnvFeeder("UNSET_PREFIX", "").Feed(&config); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if config.Server != "kept" {
			t.Errorf("Expected Server to be kept, got '%s'", config.Server)
		}
	})

	t.Run("invalid value", func(t *testing.T) {
		t.Setenv("BAD_PORT", "eighty")
		var config Config
		if err := NewAffixedEnvFeeder("BAD", "").Feed(&config); err == nil {
			t.Fatal("Expected conversion error")
		}
	})

	t.Run("invalid structure", func(t *testing.T) {
		var notStruct string
		if err := NewAffixedEnvFeeder("APP", "").Feed(&notStruct); !errors.Is(err, ErrEnvInvalidStructure) {
			t.Errorf("Expected ErrEnvInvalidStructure, got %v", err)
		}
	})

	t.Run("empty affixes", func(t *testing.T) {
		var config Config
		if err := NewAffixedEnvFeeder("", "").Feed(&config); !errors.Is(err, ErrEnvEmptyPrefixAndSuffix) {
			t.Errorf("Expected ErrEnvEmptyPrefixAndSuffix, got %v", err)
		}
	})
}

func TestAffixedEnvFeeder_EnvName(t *testing.T) {
	if got := NewAffixedEnvFeeder("watchreload", "").EnvName("log_level"); got != "WATCHRELOAD_LOG_LEVEL" {
		t.Errorf("unexpected env name %s", got)
	}
}
