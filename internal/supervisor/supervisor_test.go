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
package supervisor

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/DervexDev/racky/internal/paths"
)

func testLog() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func newTestSupervisor(t *testing.T, script string) *Supervisor {
	t.Helper()
	dir := t.TempDir()
	root := paths.NewRootAt(dir)
	require.NoError(t, os.MkdirAll(root.Bin(), 0o755))
	require.NoError(t, os.MkdirAll(root.Config(), 0o755))

	scriptPath := filepath.Join(root.Bin(), "p.sh")
	require.NoError(t, os.WriteFile(scriptPath, []byte(script), 0o755))

	sup, err := New(root, "p", testLog(), nil)
	require.NoError(t, err)
	return sup
}

// persistConfig applies key/value pairs and saves them to disk, since
// Start reloads config from disk before every spawn.
func persistConfig(t *testing.T, s *Supervisor, kv map[string]string) {
	t.Helper()
	for k, v := range kv {
		require.NoError(t, s.UpdateConfig(k, v))
	}
	require.NoError(t, s.SaveConfig())
}

func waitForStatus(t *testing.T, s *Supervisor, kind Kind, timeout time.Duration) Snapshot {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var last Snapshot
	for time.Now().Before(deadline) {
		last = s.StatusSnapshot()
		if last.Status.Kind == kind {
			return last
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for status %v, last was %v", kind, last.Status)
	return last
}

func TestHappyStartStop(t *testing.T) {
	sup := newTestSupervisor(t, "#!/bin/bash\nsleep 0.2\nexit 0\n")
	persistConfig(t, sup, map[string]string{"auto_restart": "false"})

	require.NoError(t, sup.Start())
	snap := waitForStatus(t, sup, Running, time.Second)
	require.Greater(t, snap.Status.PID, 0)

	snap = waitForStatus(t, sup, Finished, 2*time.Second)
	require.Equal(t, uint64(1), snap.Executions)

	// no restart watcher re-spawns it.
	time.Sleep(150 * time.Millisecond)
	require.Equal(t, Finished, sup.StatusSnapshot().Status.Kind)
}

func TestAutoRestartWithBackoffTerminates(t *testing.T) {
	sup := newTestSupervisor(t, "#!/bin/bash\nexit 1\n")
	persistConfig(t, sup, map[string]string{
		"auto_restart":     "true",
		"restart_attempts": "3",
		"restart_delay":    "0",
	})

	require.NoError(t, sup.Start())

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap := sup.StatusSnapshot()
		if snap.Status.Kind == Errored && snap.Attempts.Current == 3 {
			require.Equal(t, uint64(4), snap.Executions)
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("restart loop did not terminate: %+v", sup.StatusSnapshot())
}

func TestRestartAttemptsZeroNeverRestarts(t *testing.T) {
	sup := newTestSupervisor(t, "#!/bin/bash\nexit 1\n")
	persistConfig(t, sup, map[string]string{
		"auto_restart":     "true",
		"restart_attempts": "0",
		"restart_delay":    "0",
	})

	require.NoError(t, sup.Start())

	snap := waitForStatus(t, sup, Errored, 2*time.Second)
	require.Equal(t, uint64(0), snap.Attempts.Current)
	require.Equal(t, uint64(1), snap.Executions)

	time.Sleep(100 * time.Millisecond)
	require.Equal(t, Errored, sup.StatusSnapshot().Status.Kind)
}

func TestStopOnIdleIsIdempotent(t *testing.T) {
	sup := newTestSupervisor(t, "#!/bin/bash\nsleep 5\n")

	require.NoError(t, sup.Stop())
	require.Equal(t, Stopped, sup.StatusSnapshot().Status.Kind)
	gen1 := sup.generation

	require.NoError(t, sup.Stop())
	require.Equal(t, Stopped, sup.StatusSnapshot().Status.Kind)
	require.Greater(t, sup.generation, gen1)
}

func TestStopKillsRunningProcess(t *testing.T) {
	sup := newTestSupervisor(t, "#!/bin/bash\nsleep 30\n")
	persistConfig(t, sup, map[string]string{"auto_restart": "false"})

	require.NoError(t, sup.Start())
	waitForStatus(t, sup, Running, time.Second)

	require.NoError(t, sup.Stop())
	require.Equal(t, Stopped, sup.StatusSnapshot().Status.Kind)

	// No restart occurs after an external stop even though it was running.
	time.Sleep(200 * time.Millisecond)
	require.Equal(t, Stopped, sup.StatusSnapshot().Status.Kind)
}

func TestConcurrentStartResultsInOneSpawn(t *testing.T) {
	sup := newTestSupervisor(t, "#!/bin/bash\nsleep 0.3\nexit 0\n")
	persistConfig(t, sup, map[string]string{"auto_restart": "false"})

	var wg sync.WaitGroup
	results := make([]error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = sup.Start()
		}(i)
	}
	wg.Wait()

	waitForStatus(t, sup, Finished, 2*time.Second)

	oks := 0
	for _, err := range results {
		if err == nil {
			oks++
		}
	}
	require.Equal(t, 1, oks)
	require.Equal(t, uint64(1), sup.StatusSnapshot().Executions)
}

func TestStartAfterExecutableRemovedReturnsNotFound(t *testing.T) {
	sup := newTestSupervisor(t, "#!/bin/bash\nexit 0\n")
	require.NoError(t, os.Remove(sup.Paths.Executable))

	err := sup.Start()
	require.Error(t, err)
}

func TestUpdateConfigUnknownKeyBecomesVar(t *testing.T) {
	sup := newTestSupervisor(t, "#!/bin/bash\nexit 0\n")
	require.NoError(t, sup.UpdateConfig("API_TOKEN", "abc"))
	snap := sup.StatusSnapshot()
	require.Equal(t, "abc", snap.Vars["API_TOKEN"])
}

func TestUpdateConfigInvalidValueLeavesFieldUnchanged(t *testing.T) {
	sup := newTestSupervisor(t, "#!/bin/bash\nexit 0\n")
	before := sup.StatusSnapshot().Config.RestartDelay
	err := sup.UpdateConfig("restart_delay", "not-a-number")
	require.Error(t, err)
	require.Equal(t, before, sup.StatusSnapshot().Config.RestartDelay)
}
