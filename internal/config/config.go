// Package config loads and validates the collector's TOML configuration
// file. Required keys mirror spec.md §6: the top-level db path and
// transport selector, plus a transport-specific section.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Config is the validated, in-memory form of the collector's TOML
// config file.
type Config struct {
	DB        string
	Transport string // "rs485" or "udp"

	// RS485 fields, populated when Transport == "rs485".
	Port     string
	BaudRate int
	Interval int
	Devices  []int

	// UDP fields, populated when Transport == "udp".
	UDPPort int
}

// ConfigError names the offending key so the CLI entry point can report
// a precise, fail-fast diagnostic (spec §7, "Configuration" row).
type ConfigError struct {
	Key string
	Msg string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Key, e.Msg)
}

// raw mirrors the on-disk TOML shape for decoding before validation.
type raw struct {
	DB        string      `toml:"db"`
	Transport string      `toml:"transport"`
	RS485     *rs485Table `toml:"rs485"`
	UDP       *udpTable   `toml:"udp"`
}

type rs485Table struct {
	Port     string `toml:"port"`
	BaudRate int    `toml:"baudrate"`
	Interval int    `toml:"interval"`
	Devices  []int  `toml:"devices"`
}

type udpTable struct {
	Port int `toml:"port"`
}

// Load reads and validates path, returning a *ConfigError for the first
// missing or malformed key it finds.
func Load(path string) (Config, error) {
	var r raw
	if _, err := toml.DecodeFile(path, &r); err != nil {
		return Config{}, &ConfigError{Key: "(file)", Msg: err.Error()}
	}

	if r.DB == "" {
		return Config{}, &ConfigError{Key: "db", Msg: "missing or empty"}
	}

	cfg := Config{DB: r.DB, Transport: r.Transport}

	switch r.Transport {
	case "rs485":
		if err := cfg.loadRS485(r.RS485); err != nil {
			return Config{}, err
		}
	case "udp":
		if err := cfg.loadUDP(r.UDP); err != nil {
			return Config{}, err
		}
	default:
		return Config{}, &ConfigError{Key: "transport", Msg: "must be 'rs485' or 'udp', got '" + r.Transport + "'"}
	}

	return cfg, nil
}

func (cfg *Config) loadRS485(t *rs485Table) error {
	if t == nil {
		return &ConfigError{Key: "rs485", Msg: "rs485 transport requires [rs485] section"}
	}
	if t.Port == "" {
		return &ConfigError{Key: "rs485.port", Msg: "missing or empty"}
	}
	if t.BaudRate <= 0 {
		return &ConfigError{Key: "rs485.baudrate", Msg: "must be a positive int"}
	}
	if t.Interval < 0 {
		return &ConfigError{Key: "rs485.interval", Msg: "must be >= 0"}
	}
	if len(t.Devices) == 0 {
		return &ConfigError{Key: "rs485.devices", Msg: "must not be empty"}
	}
	for i, d := range t.Devices {
		if d < 1 || d > 247 {
			return &ConfigError{Key: "rs485.devices", Msg: fmt.Sprintf("devices[%d] must be 1-247, got %d", i, d)}
		}
	}

	cfg.Port = t.Port
	cfg.BaudRate = t.BaudRate
	cfg.Interval = t.Interval
	cfg.Devices = append([]int(nil), t.Devices...)
	return nil
}

func (cfg *Config) loadUDP(t *udpTable) error {
	if t == nil {
		return &ConfigError{Key: "udp", Msg: "udp transport requires [udp] section"}
	}
	if t.Port <= 0 || t.Port > 65535 {
		return &ConfigError{Key: "udp.port", Msg: fmt.Sprintf("must be 1-65535, got %d", t.Port)}
	}
	cfg.UDPPort = t.Port
	return nil
}
