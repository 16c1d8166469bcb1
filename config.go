package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/danielpaulus/go-usbmux/usbmux"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// fileConfig is the on disk representation of usbmux.Config. Empty values keep their defaults.
type fileConfig struct {
	Address             string `yaml:"address" toml:"address"`
	DialTimeout         string `yaml:"dial_timeout" toml:"dial_timeout"`
	ProgName            string `yaml:"prog_name" toml:"prog_name"`
	ClientVersionString string `yaml:"client_version" toml:"client_version"`
	BundleID            string `yaml:"bundle_id" toml:"bundle_id"`
	LibUSBMuxVersion    int    `yaml:"libusbmux_version" toml:"libusbmux_version"`
}

// loadConfig builds the usbmux.Config for the CLI. path may be empty, then only the defaults and
// socketOverride are used. The format of the file is picked by its extension.
func loadConfig(path string, socketOverride string) (usbmux.Config, error) {
	cfg := usbmux.DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return usbmux.Config{}, fmt.Errorf("failed to read config file at %s: %w", path, err)
		}
		var fc fileConfig
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			err = yaml.Unmarshal(data, &fc)
		case ".toml":
			err = toml.Unmarshal(data, &fc)
		default:
			return usbmux.Config{}, fmt.Errorf("unsupported config file format '%s', use .yaml or .toml", filepath.Ext(path))
		}
		if err != nil {
			return usbmux.Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		if err := fc.apply(&cfg); err != nil {
			return usbmux.Config{}, fmt.Errorf("config validation failed: %w", err)
		}
	}
	if socketOverride != "" {
		cfg.Address = socketOverride
	}
	if _, err := usbmux.NewDialer(cfg.Address, cfg.DialTimeout); err != nil {
		return usbmux.Config{}, err
	}
	return cfg, nil
}

func (fc fileConfig) apply(cfg *usbmux.Config) error {
	if fc.Address != "" {
		cfg.Address = fc.Address
	}
	if fc.DialTimeout != "" {
		d, err := time.ParseDuration(fc.DialTimeout)
		if err != nil {
			return fmt.Errorf("dial_timeout: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("dial_timeout must be positive, got %s", fc.DialTimeout)
		}
		cfg.DialTimeout = d
	}
	if fc.ProgName != "" {
		cfg.ProgName = fc.ProgName
	}
	if fc.ClientVersionString != "" {
		cfg.ClientVersionString = fc.ClientVersionString
	}
	cfg.BundleID = fc.BundleID
	if fc.LibUSBMuxVersion < 0 {
		return fmt.Errorf("libusbmux_version must not be negative")
	}
	cfg.LibUSBMuxVersion = fc.LibUSBMuxVersion
	return nil
}
