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
package main

import (
	"path/filepath"

	"github.com/DervexDev/racky/internal/client"
	"github.com/DervexDev/racky/internal/paths"
	"github.com/DervexDev/racky/internal/rackyerr"
)

func notAValidProgram(path string) error {
	return rackyerr.InvalidInput("path %s does not point to a valid program", path)
}

func bookPath() (string, error) {
	root, err := paths.NewRoot("")
	if err != nil {
		return "", err
	}
	return filepath.Join(root.Dir(), "servers.toml"), nil
}

func loadBook() (client.Book, error) {
	path, err := bookPath()
	if err != nil {
		return nil, err
	}
	return client.LoadBook(path)
}

func saveBook(book client.Book) error {
	path, err := bookPath()
	if err != nil {
		return err
	}
	return client.SaveBook(path, book)
}

// resolveServer loads the alias book and resolves alias (or the default
// server when alias is empty) into a Server to build a Client against.
func resolveServer(alias string) (client.Server, error) {
	book, err := loadBook()
	if err != nil {
		return client.Server{}, err
	}
	return book.Resolve(alias)
}
