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
// Package client implements the client side of the façade: the servers.toml
// alias book and a small HTTP client speaking the route table.
package client

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/DervexDev/racky/internal/rackyerr"
)

// Server is one saved server alias.
type Server struct {
	Address  string `toml:"address"`
	Port     uint64 `toml:"port"`
	Password string `toml:"password"`
	Default  bool   `toml:"default"`
}

// Book is the alias → Server map persisted to servers.toml, keyed by alias.
type Book map[string]Server

// LoadBook reads path as a Book. A missing file is an empty book, mirroring
// the original's read() returning an empty map rather than an error.
func LoadBook(path string) (Book, error) {
	book := Book{}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return book, nil
		}
		return nil, rackyerr.IO(err, "failed to read servers file")
	}

	if _, err := toml.Decode(string(raw), &book); err != nil {
		return nil, rackyerr.IO(err, "failed to parse servers file")
	}
	return book, nil
}

// SaveBook writes book back to path, creating parent directories as needed.
func SaveBook(path string, book Book) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return rackyerr.IO(err, "failed to create servers directory")
	}

	f, err := os.Create(path)
	if err != nil {
		return rackyerr.IO(err, "failed to write servers file")
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(book); err != nil {
		return rackyerr.IO(err, "failed to encode servers file")
	}
	return nil
}

// Resolve returns the server for alias, or the sole server flagged
// Default when alias is empty.
func (b Book) Resolve(alias string) (Server, error) {
	if alias != "" {
		s, ok := b[alias]
		if !ok {
			return Server{}, rackyerr.NotFound("no saved server with alias %s", alias)
		}
		return s, nil
	}

	for _, s := range b {
		if s.Default {
			return s, nil
		}
	}
	return Server{}, rackyerr.NotFound("no default server configured")
}

// HasDefault reports whether any saved server is flagged default.
func (b Book) HasDefault() bool {
	for _, s := range b {
		if s.Default {
			return true
		}
	}
	return false
}
