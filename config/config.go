// Package config holds the settings shared by the live-update client and the
// development server. Values come from defaults, an optional config file and
// WATCHRELOAD_* environment variables, in that order.
package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gobwas/glob"
	"github.com/robfig/cron/v3"
)

// EnvPrefix prefixes every environment override, e.g. WATCHRELOAD_LOG_LEVEL.
const EnvPrefix = "WATCHRELOAD"

// RescanOff disables the periodic rescan of the dev server.
const RescanOff = "off"

// Config is the complete watchreload configuration.
type Config struct {
	// Server is the WebSocket endpoint of the update server.
	Server string `yaml:"server" toml:"server" json:"server" env:"SERVER" default:"ws://localhost:8080/ws" required:"true"`
	// Name is sent with the register message.
	Name     string `yaml:"name" toml:"name" json:"name" env:"NAME" default:"watchreload"`
	LogLevel string `yaml:"logLevel" toml:"logLevel" json:"logLevel" env:"LOG_LEVEL" default:"info"`
	// HMR enables hot module replacement. The server's init command usually
	// decides this.
	HMR bool `yaml:"hmr" toml:"hmr" json:"hmr" env:"HMR"`
	// ModuleExtension is appended to resolved module paths.
	ModuleExtension string `yaml:"moduleExtension" toml:"moduleExtension" json:"moduleExtension" env:"MODULE_EXTENSION" default:".js"`
	// ModuleBase is the URL the headless client resolves module ids against.
	ModuleBase string `yaml:"moduleBase" toml:"moduleBase" json:"moduleBase" env:"MODULE_BASE" default:"/"`
	// Livereload maps a glob of changed paths to the path that must be
	// reloaded instead.
	Livereload map[string]string `yaml:"livereload" toml:"livereload" json:"livereload"`

	DevServer DevServerConfig `yaml:"devServer" toml:"devServer" json:"devServer"`

	// Extra keeps init options this client has no field for.
	Extra map[string]interface{} `yaml:"-" toml:"-" json:"-"`
}

// DevServerConfig configures the development server.
type DevServerConfig struct {
	Addr       string   `yaml:"addr" toml:"addr" json:"addr" env:"DEV_ADDR" default:":8080"`
	Root       string   `yaml:"root" toml:"root" json:"root" env:"DEV_ROOT" default:"."`
	Ignore     []string `yaml:"ignore" toml:"ignore" json:"ignore" env:"DEV_IGNORE" default:"[\".git/**\",\"node_modules/**\"]"`
	DisableHMR bool     `yaml:"disableHmr" toml:"disableHmr" json:"disableHmr" env:"DEV_DISABLE_HMR"`
	// Rescan is a cron spec for a full fingerprint rescan, or "off".
	Rescan           string   `yaml:"rescan" toml:"rescan" json:"rescan" env:"DEV_RESCAN" default:"@every 1m"`
	ModuleExtensions []string `yaml:"moduleExtensions" toml:"moduleExtensions" json:"moduleExtensions" env:"DEV_MODULE_EXTENSIONS" default:"[\".js\"]"`
	StyleExtensions  []string `yaml:"styleExtensions" toml:"styleExtensions" json:"styleExtensions" env:"DEV_STYLE_EXTENSIONS" default:"[\".css\"]"`
	ImageExtensions  []string `yaml:"imageExtensions" toml:"imageExtensions" json:"imageExtensions" env:"DEV_IMAGE_EXTENSIONS" default:"[\".png\",\".jpg\",\".jpeg\",\".gif\",\".svg\",\".webp\"]"`
}

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate implements Validator.
func (c *Config) Validate() error {
	var problems []string

	if u, err := url.Parse(c.Server); err != nil {
		problems = append(problems, fmt.Sprintf("server: %v", err))
	} else if !validScheme(u.Scheme) {
		problems = append(problems, fmt.Sprintf("server: unsupported scheme %q", u.Scheme))
	}
	if !logLevels[strings.ToLower(c.LogLevel)] {
		problems = append(problems, fmt.Sprintf("logLevel: unknown level %q", c.LogLevel))
	}
	if !strings.HasPrefix(c.ModuleExtension, ".") {
		problems = append(problems, fmt.Sprintf("moduleExtension: %q must start with a dot", c.ModuleExtension))
	}
	for pattern := range c.Livereload {
		if _, err := glob.Compile(pattern, '/'); err != nil {
			problems = append(problems, fmt.Sprintf("livereload: %q: %v", pattern, err))
		}
	}
	for _, pattern := range c.DevServer.Ignore {
		if _, err := glob.Compile(pattern, '/'); err != nil {
			problems = append(problems, fmt.Sprintf("devServer.ignore: %q: %v", pattern, err))
		}
	}
	if c.DevServer.Rescan != RescanOff {
		if _, err := cron.ParseStandard(c.DevServer.Rescan); err != nil {
			problems = append(problems, fmt.Sprintf("devServer.rescan: %v", err))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

func validScheme(scheme string) bool {
	switch scheme {
	case "ws", "wss", "http", "https":
		return true
	default:
		return false
	}
}
