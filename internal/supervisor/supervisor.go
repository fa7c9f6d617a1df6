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
// Package supervisor implements the per-program state machine: it spawns
// a program's OS process into its own process group, watches it for
// termination, enforces restart/backoff policy, and keeps an accurate,
// lock-protected runtime accounting that the HTTP façade can snapshot.
//
// Generation fencing replaces a "cancel the watcher" primitive: every
// spawn and every external stop bumps a generation counter, and a
// watcher that wakes up to find the generation has moved on treats itself
// as superseded and touches nothing.
package supervisor

import (
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/sirupsen/logrus"

	"github.com/DervexDev/racky/internal/config"
	"github.com/DervexDev/racky/internal/logsink"
	"github.com/DervexDev/racky/internal/paths"
	"github.com/DervexDev/racky/internal/rackyerr"
)

// Snapshot is a consistent, lock-free-to-the-caller copy of a supervisor's
// observable state, returned by StatusSnapshot.
type Snapshot struct {
	Name       string
	Status     Status
	Executions uint64
	Attempts   Tracker[uint64]
	StartTime  Tracker[*time.Time]
	Runtime    Tracker[time.Duration]
	Config     config.ProgramConfig
	Vars       map[string]string
}

// Supervisor is one instance per managed program.
type Supervisor struct {
	Name  string
	Paths paths.Paths

	log  logrus.FieldLogger
	sink *logsink.Sink

	mu         sync.RWMutex
	config     config.ProgramConfig
	vars       map[string]string
	status     Status
	executions uint64
	attempts   Tracker[uint64]
	startTime  Tracker[*time.Time]
	runtime    Tracker[time.Duration]
	generation uint64
	starting   bool
	runStart   time.Time
	group      groupHandle
}

// New constructs a supervisor for name, resolving its Paths but not
// reading its config file: New resolves paths; LoadConfig is a separate,
// idempotent step.
func New(root paths.Root, name string, log logrus.FieldLogger, sink *logsink.Sink) (*Supervisor, error) {
	if name == paths.Reserved {
		return nil, rackyerr.InvalidInput("program name %q is reserved", name)
	}
	return &Supervisor{
		Name:      name,
		Paths:     paths.FromName(root, name),
		log:       log.WithField("program", name),
		sink:      sink,
		config:    config.DefaultProgramConfig(),
		vars:      map[string]string{},
		status:    Status{Kind: Idle},
		startTime: Tracker[*time.Time]{},
	}, nil
}

// LoadConfig reads the program's config file and merges it into the
// in-memory config and vars. Idempotent; best-effort.
func (s *Supervisor) LoadConfig() {
	cfg, vars := config.LoadProgramConfig(s.log, s.Paths.Config)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = cfg
	for k, v := range vars {
		s.vars[k] = v
	}
}

// SaveConfig writes the current config to disk.
func (s *Supervisor) SaveConfig() error {
	s.mu.RLock()
	cfg := s.config
	s.mu.RUnlock()

	if err := config.SaveProgramConfig(s.Paths.Config, cfg); err != nil {
		return rackyerr.IO(err, "failed to save config for %s", s.Name)
	}
	return nil
}

// UpdateConfig mutates the in-memory config or vars map; the caller must
// call SaveConfig to persist. A key naming a recognized field
// whose value fails to parse returns an invalid-value error and leaves the
// field unchanged; any other non-empty key is stored verbatim into vars.
func (s *Supervisor) UpdateConfig(key, value string) error {
	if key == "" {
		return rackyerr.InvalidInput("config key must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recognized, err := s.config.Set(key, value)
	if recognized {
		if err != nil {
			return err
		}
		return nil
	}
	s.vars[key] = value
	return nil
}

// StatusSnapshot returns a consistent copy of the supervisor's observable
// state under a shared lock.
func (s *Supervisor) StatusSnapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vars := make(map[string]string, len(s.vars))
	for k, v := range s.vars {
		vars[k] = v
	}

	return Snapshot{
		Name:       s.Name,
		Status:     s.status,
		Executions: s.executions,
		Attempts:   s.attempts,
		StartTime:  s.startTime,
		Runtime:    s.currentRuntimeLocked(),
		Config:     s.config,
		Vars:       vars,
	}
}

// currentRuntimeLocked computes runtime.current live while running, and
// must be called with s.mu held (read or write).
func (s *Supervisor) currentRuntimeLocked() Tracker[time.Duration] {
	if s.status.Kind == Running {
		live := time.Since(s.runStart)
		return Tracker[time.Duration]{Current: live, Total: s.runtime.Total + live}
	}
	return s.runtime
}

// Start spawns the program if it is not already running. Concurrent
// Start calls are linearized: only the first to observe an
// idle/terminal status proceeds to spawn; the rest observe already-running.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	if s.status.Kind == Running || s.status.Kind == Restarting || s.starting {
		s.mu.Unlock()
		return rackyerr.Conflict("program %s is already running", s.Name)
	}
	s.starting = true
	s.attempts.Current = 0
	s.mu.Unlock()

	s.LoadConfig()

	err := s.spawn()

	s.mu.Lock()
	s.starting = false
	s.mu.Unlock()

	return err
}

// Stop stops the program if running. The generation is incremented
// before any blocking kill-tree call so a watcher that is mid
// re-entry always observes the new generation and becomes inert.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	if s.status.Kind != Running {
		s.status = Status{Kind: Stopped}
		s.generation++
		s.mu.Unlock()
		return nil
	}
	pid := s.status.PID
	group := s.group
	s.status = Status{Kind: Stopped}
	s.generation++
	s.mu.Unlock()

	if err := killProcessGroup(pid, group); err != nil {
		return rackyerr.IO(err, "failed to stop program %s", s.Name)
	}
	return nil
}

// spawn performs the build-description/launch/arm-watcher sequence. It
// does not reset attempts: Start resets attempts before calling spawn for
// an externally-requested run, while the watcher's auto-restart path
// calls spawn directly so the attempts streak survives across restart
// cycles, needed for restart_attempts to eventually terminate the loop.
func (s *Supervisor) spawn() error {
	s.mu.Lock()
	if !s.Paths.Validate() {
		s.mu.Unlock()
		return rackyerr.NotFound("executable for program %s not found", s.Name)
	}
	execPath := s.Paths.Executable
	workDir := s.Paths.WorkingDirectory
	vars := make(map[string]string, len(s.vars))
	for k, v := range s.vars {
		vars[k] = v
	}
	s.mu.Unlock()

	cmd := buildCmd(execPath, workDir, vars)
	setProcessGroup(cmd)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return s.failSpawn(err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return s.failSpawn(err)
	}

	if err := startWithRetry(cmd); err != nil {
		return s.failSpawn(err)
	}

	pid := cmd.Process.Pid
	s.log.Infof("started (pid %d)", pid)

	group, err := attachProcessGroup(pid)
	if err != nil {
		s.log.Warnf("failed to attach process group for pid %d: %v", pid, err)
	}

	var g uint64
	s.mu.Lock()
	s.status = Status{Kind: Running, PID: pid}
	s.group = group
	s.executions++
	now := time.Now()
	s.runStart = now
	if s.startTime.Total == nil {
		t := now
		s.startTime.Total = &t
	}
	st := now
	s.startTime.Current = &st
	s.runtime.Current = 0
	s.generation++
	g = s.generation
	s.mu.Unlock()

	outBuf := newCapture(captureLimit)
	errBuf := newCapture(captureLimit)
	sinkDone := make(chan struct{})
	if s.sink != nil {
		s.sink.Attach(io.TeeReader(stdoutPipe, outBuf), io.TeeReader(stderrPipe, errBuf), func() { close(sinkDone) })
	} else {
		close(sinkDone)
	}

	go s.watch(g, cmd, group, outBuf, errBuf)

	return nil
}

func (s *Supervisor) failSpawn(err error) error {
	s.mu.Lock()
	s.status = Status{Kind: Failed, Detail: err.Error()}
	s.mu.Unlock()
	s.log.Errorf("failed to start: %v", err)
	return rackyerr.Wrap(rackyerr.KindIO, "failed to spawn program "+s.Name, err)
}

// watch runs the post-exit protocol entirely off the supervisor's lock
// except for the brief critical sections noted.
func (s *Supervisor) watch(g uint64, cmd *exec.Cmd, group groupHandle, outBuf, errBuf *capture) {
	waitErr := cmd.Wait()
	closeProcessGroup(group)
	newStatus, suppressLog := classifyExit(waitErr, outBuf, errBuf)

	s.mu.Lock()
	if s.generation != g {
		// Fenced: a later start or stop already moved the state machine on.
		if s.status.Kind == Running && newStatus.Kind == Finished {
			s.attempts.Current = 0
		}
		s.mu.Unlock()
		return
	}

	elapsed := time.Since(s.runStart)
	s.runtime.Current = elapsed
	s.runtime.Total += elapsed
	s.status = newStatus

	if !suppressLog {
		if newStatus.Kind == Errored {
			s.log.Warnf("exited: %s", newStatus.Detail)
		} else {
			s.log.Info("finished")
		}
	}

	if !s.config.AutoRestart {
		s.mu.Unlock()
		return
	}
	if s.attempts.Current >= s.config.RestartAttempts {
		s.mu.Unlock()
		return
	}

	s.status = Status{Kind: Restarting}
	if newStatus.Kind == Finished {
		s.attempts.Current = 0
	} else {
		s.attempts.Current++
		s.attempts.Total++
	}
	delay := time.Duration(s.config.RestartDelay) * time.Second
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	s.mu.Lock()
	if s.generation != g {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if err := s.spawn(); err != nil {
		s.log.Warnf("restart failed: %v", err)
	}
}

// startWithRetry wraps the fork/exec syscall with a short bounded backoff:
// transient OS-level spawn failures (e.g. a momentary EAGAIN under fork
// pressure) are retried a few times before being surfaced as a spawn
// error, using avast/retry-go the way its own README recommends wrapping
// a single flaky operation. This is independent of the restart/backoff
// *policy* in watch, which stays
// hand-written since retry-go has no notion of the generation fence.
func startWithRetry(cmd *exec.Cmd) error {
	return retry.Do(
		func() error { return cmd.Start() },
		retry.Attempts(3),
		retry.Delay(25*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}
