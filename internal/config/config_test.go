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
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func discardLog() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestLoadProgramConfigMissingFileKeepsDefaults(t *testing.T) {
	cfg, vars := LoadProgramConfig(discardLog(), filepath.Join(t.TempDir(), "missing.toml"))
	require.Equal(t, DefaultProgramConfig(), cfg)
	require.Empty(t, vars)
}

func TestLoadProgramConfigUnknownKeysBecomeVars(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "p.toml")
	require.NoError(t, os.WriteFile(path, []byte("auto_start = true\nAPI_KEY = \"xyz\"\n"), 0o644))

	cfg, vars := LoadProgramConfig(discardLog(), path)
	require.True(t, cfg.AutoStart)
	require.Equal(t, "xyz", vars["API_KEY"])
}

func TestLoadProgramConfigInvalidValueLeavesFieldUnchanged(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "p.toml")
	require.NoError(t, os.WriteFile(path, []byte("restart_delay = \"not-a-number\"\n"), 0o644))

	cfg, _ := LoadProgramConfig(discardLog(), path)
	require.Equal(t, DefaultProgramConfig().RestartDelay, cfg.RestartDelay)
}

func TestProgramConfigSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "p.toml")

	cfg := DefaultProgramConfig()
	_, err := cfg.Set("restart_delay", "7")
	require.NoError(t, err)
	_, err = cfg.Set("auto_start", "true")
	require.NoError(t, err)

	require.NoError(t, SaveProgramConfig(path, cfg))

	loaded, vars := LoadProgramConfig(discardLog(), path)
	require.Equal(t, cfg, loaded)
	require.Empty(t, vars)
}

func TestProgramConfigSetUnrecognizedField(t *testing.T) {
	cfg := DefaultProgramConfig()
	recognized, err := cfg.Set("not_a_field", "1")
	require.False(t, recognized)
	require.NoError(t, err)
}

func TestServerConfigLogSizeAcceptsHumanSize(t *testing.T) {
	cfg := DefaultServerConfig()
	recognized, err := cfg.Set("log_size_limit", "32MB")
	require.True(t, recognized)
	require.NoError(t, err)
	require.Equal(t, uint64(32), cfg.LogSizeLimit)
}

func TestServerConfigPortRange(t *testing.T) {
	cfg := DefaultServerConfig()
	_, err := cfg.Set("port", "99999")
	require.Error(t, err)
}
