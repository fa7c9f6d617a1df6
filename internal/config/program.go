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
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
)

// ProgramConfig holds the four recognized per-program settings from spec
// §3. Unknown keys never live here; they are reported separately as a
// vars map by Load.
type ProgramConfig struct {
	AutoStart       bool
	AutoRestart     bool
	RestartDelay    uint64 // seconds
	RestartAttempts uint64
}

// DefaultProgramConfig returns the documented default field values.
func DefaultProgramConfig() ProgramConfig {
	return ProgramConfig{
		AutoStart:       false,
		AutoRestart:     true,
		RestartDelay:    3,
		RestartAttempts: 5,
	}
}

// ProgramField describes one recognized program config key.
type ProgramField struct {
	Name    string
	Doc     string
	Default string
	Get     func(c *ProgramConfig) string
	Set     func(c *ProgramConfig, raw string) error
}

var programFields = []ProgramField{
	{
		Name:    "auto_start",
		Doc:     "start this program automatically on server startup",
		Default: "false",
		Get:     func(c *ProgramConfig) string { return formatBool(c.AutoStart) },
		Set: func(c *ProgramConfig, raw string) error {
			v, err := parseBool(raw)
			if err != nil {
				return err
			}
			c.AutoStart = v
			return nil
		},
	},
	{
		Name:    "auto_restart",
		Doc:     "restart this program after it exits",
		Default: "true",
		Get:     func(c *ProgramConfig) string { return formatBool(c.AutoRestart) },
		Set: func(c *ProgramConfig, raw string) error {
			v, err := parseBool(raw)
			if err != nil {
				return err
			}
			c.AutoRestart = v
			return nil
		},
	},
	{
		Name:    "restart_delay",
		Doc:     "delay in seconds between restart attempts",
		Default: "3",
		Get:     func(c *ProgramConfig) string { return formatUint(c.RestartDelay) },
		Set: func(c *ProgramConfig, raw string) error {
			v, err := parseUint(raw)
			if err != nil {
				return err
			}
			c.RestartDelay = v
			return nil
		},
	},
	{
		Name:    "restart_attempts",
		Doc:     "max consecutive failed restart attempts before giving up",
		Default: "5",
		Get:     func(c *ProgramConfig) string { return formatUint(c.RestartAttempts) },
		Set: func(c *ProgramConfig, raw string) error {
			v, err := parseUint(raw)
			if err != nil {
				return err
			}
			c.RestartAttempts = v
			return nil
		},
	},
}

// ProgramFields returns the static schema, for iteration (e.g. by the
// façade's config-default listing).
func ProgramFields() []ProgramField { return programFields }

func lookupProgramField(name string) (ProgramField, bool) {
	for _, f := range programFields {
		if f.Name == name {
			return f, true
		}
	}
	return ProgramField{}, false
}

// Get returns the current value of a recognized field.
func (c *ProgramConfig) Get(key string) (string, bool) {
	f, ok := lookupProgramField(key)
	if !ok {
		return "", false
	}
	return f.Get(c), true
}

// Set coerces raw into the named field's type. recognized reports whether
// key names a schema field at all; err is non-nil only when recognized is
// true and raw failed to parse, in which case the config is left
// unchanged.
func (c *ProgramConfig) Set(key, raw string) (recognized bool, err error) {
	f, ok := lookupProgramField(key)
	if !ok {
		return false, nil
	}
	return true, f.Set(c, raw)
}

// LoadProgramConfig reads path as a flat TOML key/value table and merges
// it into a fresh ProgramConfig + vars map, best-effort: a missing file
// silently returns defaults, a read or parse failure logs and returns
// defaults; an empty file is a no-op over the defaults.
func LoadProgramConfig(log logrus.FieldLogger, path string) (ProgramConfig, map[string]string) {
	cfg := DefaultProgramConfig()
	vars := map[string]string{}

	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warnf("failed to read config file %s: %v", path, err)
		}
		return cfg, vars
	}

	var table map[string]interface{}
	if _, err := toml.Decode(string(raw), &table); err != nil {
		log.Errorf("failed to parse config file %s: %v", path, err)
		return cfg, vars
	}

	for key, value := range table {
		str := stringify(value)
		if recognized, err := cfg.Set(key, str); recognized {
			if err != nil {
				log.Warnf("invalid value for %s in %s: %v", key, path, err)
			}
		} else {
			vars[key] = str
		}
	}

	return cfg, vars
}

// SaveProgramConfig serializes only the recognized fields, in the stable
// alphabetical key order the TOML encoder uses for maps. It does not
// attempt an atomic write; a plain overwrite is acceptable.
func SaveProgramConfig(path string, cfg ProgramConfig) error {
	table := map[string]interface{}{
		"auto_start":       cfg.AutoStart,
		"auto_restart":     cfg.AutoRestart,
		"restart_delay":    cfg.RestartDelay,
		"restart_attempts": cfg.RestartAttempts,
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(table)
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return formatBool(t)
	case int64:
		return formatUint(uint64(t))
	default:
		return fmt.Sprintf("%v", t)
	}
}
