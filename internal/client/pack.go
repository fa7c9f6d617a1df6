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
package client

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/DervexDev/racky/internal/rackyerr"
)

// PackPath zips a local program file or directory into a scratch archive
// whose entries are rooted at the program's name, the counterpart to
// internal/zipper's server-side extraction. Single-file programs are
// named by their root entry name, extension included, to match
// internal/zipper.RootName's plain first-segment rule. The caller must
// invoke the returned cleanup once done with the archive.
func PackPath(path string) (name, archivePath string, cleanup func(), err error) {
	info, statErr := os.Stat(path)
	if statErr != nil {
		return "", "", nil, rackyerr.NotFound("path %s does not exist", path)
	}
	if info.IsDir() {
		name = filepath.Base(filepath.Clean(path))
	} else {
		name = filepath.Base(path)
	}
	archivePath, cleanup, err = PackPathAs(path, name)
	return name, archivePath, cleanup, err
}

// PackPathAs is PackPath with the archive's root entry forced to name
// regardless of path's local basename, for uploads where the server expects
// a specific root (the server binary itself is always rooted at "racky",
// whatever the local file happens to be called).
func PackPathAs(path, name string) (archivePath string, cleanup func(), err error) {
	info, statErr := os.Stat(path)
	if statErr != nil {
		return "", nil, rackyerr.NotFound("path %s does not exist", path)
	}

	tmp, tmpErr := os.CreateTemp("", "racky-pack-*.zip")
	if tmpErr != nil {
		return "", nil, rackyerr.IO(tmpErr, "failed to create scratch archive")
	}
	cleanup = func() { os.Remove(tmp.Name()) }

	w := zip.NewWriter(tmp)

	if info.IsDir() {
		if err := packDir(w, path, name); err != nil {
			w.Close()
			tmp.Close()
			cleanup()
			return "", nil, err
		}
	} else {
		if err := packFile(w, path, name); err != nil {
			w.Close()
			tmp.Close()
			cleanup()
			return "", nil, err
		}
	}

	if err := w.Close(); err != nil {
		tmp.Close()
		cleanup()
		return "", nil, rackyerr.IO(err, "failed to finalize archive")
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", nil, rackyerr.IO(err, "failed to close archive")
	}

	return tmp.Name(), cleanup, nil
}

func packDir(w *zip.Writer, root, name string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		entryName := filepath.ToSlash(filepath.Join(name, rel))

		if d.IsDir() {
			if rel == "." {
				return nil
			}
			_, err := w.Create(entryName + "/")
			return err
		}
		return packFile(w, path, entryName)
	})
}

func packFile(w *zip.Writer, path, entryName string) error {
	entryName = strings.TrimPrefix(entryName, "/")

	header := &zip.FileHeader{Name: entryName, Method: zip.Deflate}
	header.SetMode(0o755)

	dest, err := w.CreateHeader(header)
	if err != nil {
		return rackyerr.Internal("failed to add %s to archive: %v", entryName, err)
	}

	src, err := os.Open(path)
	if err != nil {
		return rackyerr.IO(err, "failed to open %s", path)
	}
	defer src.Close()

	if _, err := io.Copy(dest, src); err != nil {
		return rackyerr.IO(err, "failed to read %s", path)
	}
	return nil
}
