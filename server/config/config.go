// Package config loads receiver settings from file and environment.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Camera is one endpoint opened at startup; more can be added through
// the API at runtime.
type Camera struct {
	Name string `mapstructure:"name"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type Config struct {
	APIAddr string
	Cameras []Camera
}

const (
	PortMin = 1024
	PortMax = 65535
)

// Load reads receiver.yaml from the working directory if present;
// CAMLINK_* environment variables override file values.
func Load() (Config, error) {
	v := viper.New()
	v.SetDefault("api.addr", "127.0.0.1:8080")
	v.SetConfigName("receiver")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvPrefix("camlink")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return Config{}, fmt.Errorf("config: read receiver.yaml: %w", err)
		}
	}
	cfg := Config{APIAddr: v.GetString("api.addr")}
	if err := v.UnmarshalKey("cameras", &cfg.Cameras); err != nil {
		return Config{}, fmt.Errorf("config: cameras: %w", err)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.APIAddr == "" {
		return fmt.Errorf("config: api addr is empty")
	}
	seen := make(map[string]string, len(c.Cameras))
	for _, cam := range c.Cameras {
		if cam.Name == "" {
			return fmt.Errorf("config: camera with empty name")
		}
		if cam.Port < PortMin || cam.Port > PortMax {
			return fmt.Errorf("config: camera %s port %d outside %d-%d", cam.Name, cam.Port, PortMin, PortMax)
		}
		key := fmt.Sprintf("%s:%d", cam.Host, cam.Port)
		if other, dup := seen[key]; dup {
			return fmt.Errorf("config: cameras %s and %s share endpoint %s", other, cam.Name, key)
		}
		seen[key] = cam.Name
	}
	return nil
}
