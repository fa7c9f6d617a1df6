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
// Package core implements the registry mapping program name to
// *supervisor.Supervisor that the HTTP façade and the server entrypoint
// sit on top of.
package core

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/DervexDev/racky/internal/logsink"
	"github.com/DervexDev/racky/internal/paths"
	"github.com/DervexDev/racky/internal/rackyerr"
	"github.com/DervexDev/racky/internal/supervisor"
)

// Registry owns every managed program's supervisor for one server instance.
// The map is protected by a single reader-writer lock: AddProgram and
// RemoveProgram take the write side, GetProgram and Programs take the read
// side, and Programs clones the values it returns so callers never hold
// the registry lock while touching a supervisor.
type Registry struct {
	root paths.Root
	log  logrus.FieldLogger

	mu        sync.RWMutex
	programs  map[string]*supervisor.Supervisor
	startTime time.Time
}

// New constructs an empty registry rooted at root. startTime is recorded
// immediately for uptime reporting.
func New(root paths.Root, log logrus.FieldLogger) *Registry {
	return &Registry{
		root:      root,
		log:       log,
		programs:  map[string]*supervisor.Supervisor{},
		startTime: time.Now(),
	}
}

// Uptime reports how long this registry has been alive.
func (r *Registry) Uptime() time.Duration { return time.Since(r.startTime) }

// AddProgram registers sup under its name. Duplicate names are refused.
func (r *Registry) AddProgram(sup *supervisor.Supervisor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.programs[sup.Name]; exists {
		return rackyerr.Conflict("program %s is already registered", sup.Name)
	}
	r.programs[sup.Name] = sup
	return nil
}

// RemoveProgram unregisters name. It does not stop the program first; the
// caller is expected to have stopped it, and remove itself must never
// block on process termination.
func (r *Registry) RemoveProgram(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.programs[name]; !exists {
		return rackyerr.NotFound("program %s is not registered", name)
	}
	delete(r.programs, name)
	return nil
}

// GetProgram looks up a single supervisor by name.
func (r *Registry) GetProgram(name string) (*supervisor.Supervisor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sup, ok := r.programs[name]
	return sup, ok
}

// Programs returns a read-locked snapshot of every registered supervisor,
// sorted by name for stable listing output.
func (r *Registry) Programs() []*supervisor.Supervisor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*supervisor.Supervisor, 0, len(r.programs))
	for _, sup := range r.programs {
		out = append(out, sup)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// StartAll scans the config directory for per-program config files and
// auto-starts the ones asking for it: for each config file whose stem is
// not the reserved name, it constructs a supervisor, loads its config,
// and if auto_start is true, attempts AddProgram then Start. It counts
// successes over auto-start candidates. Programs without a valid
// executable are counted in total only if their config has
// auto_start=true; the start attempt fails and they are not counted in
// started.
func (r *Registry) StartAll(logSizeLimitMB, logFileLimit uint64) (started, total int) {
	entries, err := filepath.Glob(filepath.Join(r.root.Config(), "*.toml"))
	if err != nil {
		r.log.Errorf("failed to scan config directory: %v", err)
		return 0, 0
	}

	for _, entry := range entries {
		name := strings.TrimSuffix(filepath.Base(entry), ".toml")
		if name == paths.Reserved {
			continue
		}

		sup, err := supervisor.New(r.root, name, r.log, nil)
		if err != nil {
			r.log.Warnf("skipping %s: %v", name, err)
			continue
		}
		sup.LoadConfig()

		if !sup.StatusSnapshot().Config.AutoStart {
			continue
		}
		total++

		sink, err := logsink.New(sup.Paths.Logs, logSizeLimitMB, logFileLimit)
		if err != nil {
			r.log.Errorf("failed to open log sink for %s: %v", name, err)
			continue
		}
		sup, err = supervisor.New(r.root, name, r.log, sink)
		if err != nil {
			r.log.Warnf("skipping %s: %v", name, err)
			continue
		}
		sup.LoadConfig()

		if err := r.AddProgram(sup); err != nil {
			r.log.Warnf("failed to register %s: %v", name, err)
			continue
		}
		if err := sup.Start(); err != nil {
			r.log.Warnf("auto-start failed for %s: %v", name, err)
			continue
		}
		started++
	}

	return started, total
}
