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
package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/DervexDev/racky/internal/paths"
	"github.com/DervexDev/racky/internal/supervisor"
)

func testLog() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func testRoot(t *testing.T) paths.Root {
	t.Helper()
	dir := t.TempDir()
	root := paths.NewRootAt(dir)
	require.NoError(t, os.MkdirAll(root.Bin(), 0o755))
	require.NoError(t, os.MkdirAll(root.Config(), 0o755))
	require.NoError(t, os.MkdirAll(root.Logs(), 0o755))
	return root
}

func writeScript(t *testing.T, root paths.Root, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(root.Bin(), name+".sh"), []byte(body), 0o755))
}

func writeProgramConfig(t *testing.T, root paths.Root, name, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(root.Config(), name+".toml"), []byte(contents), 0o644))
}

func TestAddProgramRejectsDuplicateName(t *testing.T) {
	root := testRoot(t)
	reg := New(root, testLog())

	supA, err := supervisor.New(root, "p", testLog(), nil)
	require.NoError(t, err)
	require.NoError(t, reg.AddProgram(supA))

	supB, err := supervisor.New(root, "p", testLog(), nil)
	require.NoError(t, err)
	require.Error(t, reg.AddProgram(supB))
}

func TestRemoveProgramNotFound(t *testing.T) {
	root := testRoot(t)
	reg := New(root, testLog())

	require.Error(t, reg.RemoveProgram("missing"))
}

func TestRemoveProgramDoesNotStopIt(t *testing.T) {
	root := testRoot(t)
	reg := New(root, testLog())
	writeScript(t, root, "p", "#!/bin/bash\nsleep 5\n")

	sup, err := supervisor.New(root, "p", testLog(), nil)
	require.NoError(t, err)
	require.NoError(t, reg.AddProgram(sup))
	require.NoError(t, sup.Start())

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && sup.StatusSnapshot().Status.Kind != supervisor.Running {
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, supervisor.Running, sup.StatusSnapshot().Status.Kind)

	require.NoError(t, reg.RemoveProgram("p"))
	_, ok := reg.GetProgram("p")
	require.False(t, ok)

	// still running: remove does not stop it.
	require.Equal(t, supervisor.Running, sup.StatusSnapshot().Status.Kind)
	require.NoError(t, sup.Stop())
}

func TestGetProgramAndProgramsSnapshot(t *testing.T) {
	root := testRoot(t)
	reg := New(root, testLog())

	for _, name := range []string{"zeta", "alpha", "mid"} {
		sup, err := supervisor.New(root, name, testLog(), nil)
		require.NoError(t, err)
		require.NoError(t, reg.AddProgram(sup))
	}

	_, ok := reg.GetProgram("missing")
	require.False(t, ok)

	sup, ok := reg.GetProgram("alpha")
	require.True(t, ok)
	require.Equal(t, "alpha", sup.Name)

	progs := reg.Programs()
	require.Len(t, progs, 3)
	require.Equal(t, []string{"alpha", "mid", "zeta"}, []string{progs[0].Name, progs[1].Name, progs[2].Name})
}

func TestStartAllCountsAutoStartCandidatesOnly(t *testing.T) {
	root := testRoot(t)
	reg := New(root, testLog())

	// auto_start program with a valid executable: counted in both total and started.
	writeScript(t, root, "good", "#!/bin/bash\nsleep 5\n")
	writeProgramConfig(t, root, "good", "auto_start = true\n")

	// auto_start program whose executable is missing: counted in total only.
	writeProgramConfig(t, root, "broken", "auto_start = true\n")

	// not auto_start: not counted at all.
	writeScript(t, root, "manual", "#!/bin/bash\nsleep 5\n")
	writeProgramConfig(t, root, "manual", "auto_start = false\n")

	// the reserved server config file must be skipped entirely.
	writeProgramConfig(t, root, "racky", "port = 9000\n")

	started, total := reg.StartAll(10, 5)
	require.Equal(t, 2, total)
	require.Equal(t, 1, started)

	good, ok := reg.GetProgram("good")
	require.True(t, ok)
	require.Equal(t, supervisor.Running, good.StatusSnapshot().Status.Kind)
	require.NoError(t, good.Stop())

	// broken is still registered (AddProgram happens before the failed
	// start attempt); it just never reaches Running.
	broken, ok := reg.GetProgram("broken")
	require.True(t, ok)
	require.Equal(t, supervisor.Idle, broken.StatusSnapshot().Status.Kind)

	_, ok = reg.GetProgram("manual")
	require.False(t, ok)
}
