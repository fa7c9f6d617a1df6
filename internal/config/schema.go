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
// Package config implements Racky's program and server configuration
// schemas as a static slice of field descriptors per type: a plain
// {name, get, set, default, doc} table walked by Load/Save/Get/Set.
package config

import (
	"strconv"

	"github.com/DervexDev/racky/internal/rackyerr"
)

func parseBool(raw string) (bool, error) {
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, rackyerr.InvalidInput("invalid bool value %q", raw)
	}
	return v, nil
}

func parseUint(raw string) (uint64, error) {
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, rackyerr.InvalidInput("invalid unsigned integer value %q", raw)
	}
	return v, nil
}

func formatBool(v bool) string   { return strconv.FormatBool(v) }
func formatUint(v uint64) string { return strconv.FormatUint(v, 10) }
