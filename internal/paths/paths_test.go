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
package paths

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func tempRoot(t *testing.T) Root {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "bin"), 0o755))
	return Root{dir: dir}
}

func TestFromNameDirectFile(t *testing.T) {
	root := tempRoot(t)
	bin := filepath.Join(root.Bin(), "web")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755))

	p := FromName(root, "web")
	require.Equal(t, bin, p.Executable)
	require.True(t, p.Validate())
	require.Equal(t, root.Bin(), p.WorkingDirectory)
}

func TestFromNameDirWithRackyScript(t *testing.T) {
	root := tempRoot(t)
	dir := filepath.Join(root.Bin(), "web")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	script := filepath.Join(dir, "racky.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\n"), 0o755))

	p := FromName(root, "web")
	require.Equal(t, script, p.Executable)
	require.Equal(t, dir, p.WorkingDirectory)
}

func TestFromNameDirWithScriptsSubdir(t *testing.T) {
	root := tempRoot(t)
	dir := filepath.Join(root.Bin(), "web")
	scripts := filepath.Join(dir, "scripts")
	require.NoError(t, os.MkdirAll(scripts, 0o755))
	script := filepath.Join(scripts, "racky.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\n"), 0o755))

	p := FromName(root, "web")
	require.Equal(t, script, p.Executable)
	// working directory is the grandparent of racky.sh when parent is "scripts"
	require.Equal(t, dir, p.WorkingDirectory)
}

func TestFromNameLastResortDotSh(t *testing.T) {
	root := tempRoot(t)
	p := FromName(root, "missing")
	require.Equal(t, filepath.Join(root.Bin(), "missing.sh"), p.Executable)
	require.False(t, p.Validate())
}

func TestProgramRoot(t *testing.T) {
	require.Equal(t, "/x/web", ProgramRoot("/x/web"))
	require.Equal(t, "/x/web", ProgramRoot("/x/web/racky.sh"))
	require.Equal(t, "/x/web", ProgramRoot("/x/web/scripts/racky.sh"))
}
