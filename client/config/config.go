// Package config loads sender settings from file and environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// Receiver endpoint.
	Host string
	Port int

	ConnectTimeout time.Duration

	// Capture settings.
	Source string // synthetic | screen
	Width  int
	Height int
	FPS    int

	JPEGQuality int
	MinInterval time.Duration
}

const (
	PortMin = 1024
	PortMax = 65535
)

func defaults(v *viper.Viper) {
	v.SetDefault("receiver.host", "127.0.0.1")
	v.SetDefault("receiver.port", 5000)
	v.SetDefault("receiver.connect_timeout_ms", 3000)
	v.SetDefault("capture.source", "synthetic")
	v.SetDefault("capture.width", 1280)
	v.SetDefault("capture.height", 720)
	v.SetDefault("capture.fps", 30)
	v.SetDefault("encode.jpeg_quality", 80)
	v.SetDefault("encode.min_interval_ms", 33)
}

// Load reads sender.yaml from the working directory if present; every
// key can be overridden through CAMLINK_* environment variables.
func Load() (Config, error) {
	v := viper.New()
	defaults(v)
	v.SetConfigName("sender")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvPrefix("camlink")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return Config{}, fmt.Errorf("config: read sender.yaml: %w", err)
		}
	}
	cfg := Config{
		Host:           v.GetString("receiver.host"),
		Port:           v.GetInt("receiver.port"),
		ConnectTimeout: time.Duration(v.GetInt("receiver.connect_timeout_ms")) * time.Millisecond,
		Source:         strings.ToLower(v.GetString("capture.source")),
		Width:          v.GetInt("capture.width"),
		Height:         v.GetInt("capture.height"),
		FPS:            v.GetInt("capture.fps"),
		JPEGQuality:    v.GetInt("encode.jpeg_quality"),
		MinInterval:    time.Duration(v.GetInt("encode.min_interval_ms")) * time.Millisecond,
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.Host == "" {
		return fmt.Errorf("config: receiver host is empty")
	}
	if c.Port < PortMin || c.Port > PortMax {
		return fmt.Errorf("config: receiver port %d outside %d-%d", c.Port, PortMin, PortMax)
	}
	switch c.Source {
	case "synthetic", "screen":
	default:
		return fmt.Errorf("config: unknown capture source %q", c.Source)
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("config: invalid capture resolution %dx%d", c.Width, c.Height)
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("config: jpeg quality %d outside 1-100", c.JPEGQuality)
	}
	return nil
}
