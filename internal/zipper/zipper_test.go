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
package zipper

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := zip.NewWriter(f)
	for name, content := range files {
		entry, err := w.Create(name)
		require.NoError(t, err)
		_, err = entry.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
}

func TestRootNameReturnsTopLevelSegment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "p.zip")
	writeZip(t, path, map[string]string{
		"p/racky.sh":      "#!/bin/bash\n",
		"p/scripts/a.txt": "hi",
	})

	name, err := RootName(path)
	require.NoError(t, err)
	require.Equal(t, "p", name)
}

func TestExtractToClampsZipSlipEntries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "evil.zip")
	writeZip(t, path, map[string]string{
		"../../etc/passwd": "pwned",
	})

	dest := filepath.Join(dir, "dest")
	require.NoError(t, ExtractTo(path, dest))

	// the traversal is clamped to stay inside dest rather than escaping it.
	_, statErr := os.Stat(filepath.Join(dir, "etc", "passwd"))
	require.True(t, os.IsNotExist(statErr))

	content, err := os.ReadFile(filepath.Join(dest, "etc", "passwd"))
	require.NoError(t, err)
	require.Equal(t, "pwned", string(content))
}

func TestExtractToWritesFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "p.zip")
	writeZip(t, path, map[string]string{
		"racky.sh":        "#!/bin/bash\nexit 0\n",
		"scripts/lib.txt": "helper",
	})

	dest := filepath.Join(dir, "dest")
	require.NoError(t, ExtractTo(path, dest))

	content, err := os.ReadFile(filepath.Join(dest, "racky.sh"))
	require.NoError(t, err)
	require.Equal(t, "#!/bin/bash\nexit 0\n", string(content))

	content, err = os.ReadFile(filepath.Join(dest, "scripts", "lib.txt"))
	require.NoError(t, err)
	require.Equal(t, "helper", string(content))
}

func TestReplaceAtomicallyLeavesOriginalOnBadArchive(t *testing.T) {
	dir := t.TempDir()
	binDir := filepath.Join(dir, "bin")
	require.NoError(t, os.MkdirAll(filepath.Join(binDir, "p"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(binDir, "p", "racky.sh"), []byte("old"), 0o755))

	badArchive := filepath.Join(dir, "bad.zip")
	require.NoError(t, os.WriteFile(badArchive, []byte("not a zip"), 0o644))

	err := ReplaceAtomically(badArchive, binDir, "p")
	require.Error(t, err)

	content, err := os.ReadFile(filepath.Join(binDir, "p", "racky.sh"))
	require.NoError(t, err)
	require.Equal(t, "old", string(content))
}

func TestReplaceAtomicallySwapsInNewFiles(t *testing.T) {
	dir := t.TempDir()
	binDir := filepath.Join(dir, "bin")
	require.NoError(t, os.MkdirAll(filepath.Join(binDir, "p"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(binDir, "p", "racky.sh"), []byte("old"), 0o755))

	newArchive := filepath.Join(dir, "new.zip")
	writeZip(t, newArchive, map[string]string{"p/racky.sh": "new"})

	require.NoError(t, ReplaceAtomically(newArchive, binDir, "p"))

	content, err := os.ReadFile(filepath.Join(binDir, "p", "racky.sh"))
	require.NoError(t, err)
	require.Equal(t, "new", string(content))
}

func TestValidateRejectsNonZip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "not-a-zip.bin")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	require.Error(t, Validate(path))
}

func TestValidateAcceptsZip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "p.zip")
	writeZip(t, path, map[string]string{"racky.sh": "x"})

	require.NoError(t, Validate(path))
}
