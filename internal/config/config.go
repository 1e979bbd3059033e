package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/jsonc"

	"github.com/life-stream-dev/gspro-osp-relay/internal/utils"
)

const DefaultPath = "pluginsettings.json"

var ErrConfigCreated = errors.New("the configuration file does not exist and has been created. Please try again after editing the configuration file")

type PluginSettings struct {
	Hostname   string `json:"Hostname"`
	Port       int    `json:"Port"`
	MaxRetries int    `json:"MaxRetries"` // -1 = forever
	RetryDelay int    `json:"RetryDelay"` // in ms
	// RetryDelayText overrides RetryDelay when set, e.g. "30s" or "1m".
	RetryDelayText string `json:"RetryDelayText,omitempty"`

	// Distance in yards for the monitor to switch to putting mode.
	// 0: switch based on club
	// -1: never switch
	DistanceToPtMode float64 `json:"DistanceToPtMode"`

	// Used when switching based on clubs.
	PuttingModeClubs []string `json:"PuttingModeClubs"`
}

type Config struct {
	PluginSettings PluginSettings `json:"PluginSettings"`
	DeviceID       string         `json:"DeviceID"`
	DebugMode      bool           `json:"DebugMode"`
	LogDirectory   string         `json:"LogDirectory"`
	MetricsAddress string         `json:"MetricsAddress,omitempty"`
}

func Default() Config {
	return Config{
		PluginSettings: PluginSettings{
			Hostname:         "127.0.0.1",
			Port:             921,
			MaxRetries:       -1,
			RetryDelay:       30000,
			DistanceToPtMode: 0,
		},
		DeviceID:     "GsPro4Osp",
		LogDirectory: "logs",
	}
}

// Parse decodes JSONC bytes on top of the defaults.
func Parse(data []byte) (Config, error) {
	config := Default()
	if err := json.Unmarshal(jsonc.ToJSON(data), &config); err != nil {
		return config, fmt.Errorf("the configuration file does not contain valid JSON: %w", err)
	}
	return config, nil
}

// ReadConfig loads path, writing a default file first if none exists.
func ReadConfig(path string) (Config, error) {
	bytes, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Default(), fmt.Errorf("reading %s: %w", path, err)
		}
		data, _ := json.MarshalIndent(Default(), "", "\t")
		if writeErr := os.WriteFile(path, data, 0644); writeErr != nil {
			return Default(), fmt.Errorf("creating %s: %w", path, writeErr)
		}
		return Default(), ErrConfigCreated
	}

	config, err := Parse(bytes)
	if err != nil {
		return config, err
	}
	if err := config.Validate(); err != nil {
		return config, fmt.Errorf("%s: %w", path, err)
	}
	return config, nil
}

// Normalize fills PuttingModeClubs when unset and returns a warning for the
// caller to log, or "" when nothing changed.
func (c *Config) Normalize() string {
	if len(c.PluginSettings.PuttingModeClubs) == 0 {
		c.PluginSettings.PuttingModeClubs = []string{"PT"}
		return `PuttingModeClubs not specified in config, defaulting to "PT"`
	}
	return ""
}

func (c *Config) Validate() error {
	s := c.PluginSettings
	var errs []error
	if strings.TrimSpace(s.Hostname) == "" {
		errs = append(errs, errors.New("hostname must not be empty"))
	}
	if s.Port < 1 || s.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", s.Port))
	}
	if s.MaxRetries < -1 || s.MaxRetries == 0 {
		errs = append(errs, fmt.Errorf("max retries must be -1 or positive, got %d", s.MaxRetries))
	}
	if s.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("retry delay must not be negative, got %d", s.RetryDelay))
	}
	if s.RetryDelayText != "" && utils.ParseStringTime(s.RetryDelayText) == 0 {
		errs = append(errs, fmt.Errorf("invalid RetryDelayText %q", s.RetryDelayText))
	}
	if s.DistanceToPtMode < -1 {
		errs = append(errs, fmt.Errorf("distance to putting mode must be >= -1, got %v", s.DistanceToPtMode))
	}
	return errors.Join(errs...)
}

func (s PluginSettings) RetryDelayDuration() time.Duration {
	if s.RetryDelayText != "" {
		if d := utils.ParseStringTime(s.RetryDelayText); d > 0 {
			return d
		}
	}
	return utils.Milliseconds(s.RetryDelay)
}

func (s PluginSettings) Address() string {
	return net.JoinHostPort(s.Hostname, strconv.Itoa(s.Port))
}
