/*
Copyright 2021 k0s authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package config

import (
	"os"

	"github.com/BurntSushi/toml"
	units "github.com/docker/go-units"
	"github.com/sirupsen/logrus"

	"github.com/DervexDev/racky/internal/rackyerr"
)

// ServerConfig holds the server-wide settings: address, port, password,
// log_size_limit (MB), log_file_limit (files).
type ServerConfig struct {
	Address       string
	Port          uint64
	Password      string
	LogSizeLimit  uint64 // megabytes
	LogFileLimit  uint64 // files retained per program/server log directory
}

// DefaultServerConfig mirrors the conservative local-loopback defaults a
// freshly installed server ships with.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Address:      "127.0.0.1",
		Port:         8000,
		Password:     "",
		LogSizeLimit: 10,
		LogFileLimit: 5,
	}
}

type ServerField struct {
	Name    string
	Doc     string
	Default string
	Get     func(c *ServerConfig) string
	Set     func(c *ServerConfig, raw string) error
}

var serverFields = []ServerField{
	{
		Name:    "address",
		Doc:     "address the HTTP façade binds to",
		Default: "127.0.0.1",
		Get:     func(c *ServerConfig) string { return c.Address },
		Set: func(c *ServerConfig, raw string) error {
			if raw == "" {
				return rackyerr.InvalidInput("address must not be empty")
			}
			c.Address = raw
			return nil
		},
	},
	{
		Name:    "port",
		Doc:     "TCP port the HTTP façade binds to",
		Default: "8000",
		Get:     func(c *ServerConfig) string { return formatUint(c.Port) },
		Set: func(c *ServerConfig, raw string) error {
			v, err := parseUint(raw)
			if err != nil {
				return err
			}
			if v == 0 || v > 65535 {
				return rackyerr.InvalidInput("port %d out of range", v)
			}
			c.Port = v
			return nil
		},
	},
	{
		Name:    "password",
		Doc:     "bearer token required on every route but /ping when non-empty",
		Default: "",
		Get:     func(c *ServerConfig) string { return c.Password },
		Set: func(c *ServerConfig, raw string) error {
			c.Password = raw
			return nil
		},
	},
	{
		Name:    "log_size_limit",
		Doc:     "size in megabytes a log file may reach before rotation",
		Default: "10",
		Get:     func(c *ServerConfig) string { return formatUint(c.LogSizeLimit) },
		Set: func(c *ServerConfig, raw string) error {
			v, err := parseLogSize(raw)
			if err != nil {
				return err
			}
			c.LogSizeLimit = v
			return nil
		},
	},
	{
		Name:    "log_file_limit",
		Doc:     "number of rotated log files retained",
		Default: "5",
		Get:     func(c *ServerConfig) string { return formatUint(c.LogFileLimit) },
		Set: func(c *ServerConfig, raw string) error {
			v, err := parseUint(raw)
			if err != nil {
				return err
			}
			c.LogFileLimit = v
			return nil
		},
	},
}

func ServerFields() []ServerField { return serverFields }

func lookupServerField(name string) (ServerField, bool) {
	for _, f := range serverFields {
		if f.Name == name {
			return f, true
		}
	}
	return ServerField{}, false
}

func (c *ServerConfig) Get(key string) (string, bool) {
	f, ok := lookupServerField(key)
	if !ok {
		return "", false
	}
	return f.Get(c), true
}

func (c *ServerConfig) Set(key, raw string) (recognized bool, err error) {
	f, ok := lookupServerField(key)
	if !ok {
		return false, nil
	}
	return true, f.Set(c, raw)
}

// parseLogSize accepts either a bare integer (megabytes, as spec's table
// documents the key) or a human-readable size like "10MB" via go-units,
// so operators can write either in racky.toml.
func parseLogSize(raw string) (uint64, error) {
	if v, err := parseUint(raw); err == nil {
		return v, nil
	}
	bytes, err := units.RAMInBytes(raw)
	if err != nil || bytes <= 0 {
		return 0, rackyerr.InvalidInput("invalid size value %q", raw)
	}
	return uint64(bytes) / (1024 * 1024), nil
}

// LoadServerConfig reads config/racky.toml the same best-effort way
// per-program configs are loaded: a missing or malformed file leaves
// defaults in place.
func LoadServerConfig(log logrus.FieldLogger, path string) ServerConfig {
	cfg := DefaultServerConfig()

	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warnf("failed to read server config %s: %v", path, err)
		}
		return cfg
	}

	var table map[string]interface{}
	if _, err := toml.Decode(string(raw), &table); err != nil {
		log.Errorf("failed to parse server config %s: %v", path, err)
		return cfg
	}

	for key, value := range table {
		if recognized, err := cfg.Set(key, stringify(value)); recognized && err != nil {
			log.Warnf("invalid value for %s in %s: %v", key, path, err)
		}
	}

	return cfg
}

// SaveServerConfig writes every recognized field back to path.
func SaveServerConfig(path string, cfg ServerConfig) error {
	table := map[string]interface{}{
		"address":        cfg.Address,
		"port":           cfg.Port,
		"password":       cfg.Password,
		"log_size_limit": cfg.LogSizeLimit,
		"log_file_limit": cfg.LogFileLimit,
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(table)
}
