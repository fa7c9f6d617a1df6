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
package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/zcalusic/sysinfo"

	"github.com/DervexDev/racky/internal/config"
	"github.com/DervexDev/racky/internal/logsink"
	"github.com/DervexDev/racky/internal/paths"
	"github.com/DervexDev/racky/internal/rackyerr"
	"github.com/DervexDev/racky/internal/supervisor"
	"github.com/DervexDev/racky/internal/zipper"
)

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	renderOK(w, "pong")
}

// saveUploadedZip copies the "file" multipart field to a scratch file and
// returns its path, for zipper to open as an archive.
func (s *Server) saveUploadedZip(r *http.Request) (string, func(), error) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		return "", nil, rackyerr.InvalidInput("failed to parse multipart form: %v", err)
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		return "", nil, rackyerr.InvalidInput("missing multipart field `file` (program archive)")
	}
	defer file.Close()

	tmp, err := os.CreateTemp("", "racky-upload-*.zip")
	if err != nil {
		return "", nil, rackyerr.IO(err, "failed to create scratch file")
	}
	cleanup := func() { os.Remove(tmp.Name()) }

	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		cleanup()
		return "", nil, rackyerr.IO(err, "failed to buffer uploaded archive")
	}
	tmp.Close()

	return tmp.Name(), cleanup, nil
}

func (s *Server) handleProgramAdd(w http.ResponseWriter, r *http.Request) {
	archivePath, cleanup, err := s.saveUploadedZip(r)
	if err != nil {
		renderErr(w, err)
		return
	}
	defer cleanup()

	if err := zipper.Validate(archivePath); err != nil {
		renderErr(w, err)
		return
	}

	name, err := zipper.RootName(archivePath)
	if err != nil {
		renderErr(w, err)
		return
	}

	if _, exists := s.registry.GetProgram(name); exists {
		renderError(w, http.StatusConflict, fmt.Sprintf("program %s already exists", name))
		return
	}

	target := paths.FromName(s.root, name)
	if target.Validate() {
		renderError(w, http.StatusConflict, fmt.Sprintf("program %s already exists", name))
		return
	}

	if err := zipper.ExtractTo(archivePath, s.root.Bin()); err != nil {
		renderErr(w, err)
		return
	}
	target = paths.FromName(s.root, name)

	sink, err := logsink.New(target.Logs, s.serverConfig().LogSizeLimit, s.serverConfig().LogFileLimit)
	if err != nil {
		renderErr(w, err)
		return
	}

	sup, err := supervisor.New(s.root, name, s.log, sink)
	if err != nil {
		renderErr(w, err)
		return
	}

	failed := 0
	total := 0
	for key, values := range r.MultipartForm.Value {
		if key == "file" {
			continue
		}
		total++
		value := ""
		if len(values) > 0 {
			value = values[0]
		}
		if err := sup.UpdateConfig(key, value); err != nil {
			failed++
		}
	}

	saveErr := sup.SaveConfig()

	suffix := ""
	if saveErr != nil {
		suffix = " but failed to save its configuration"
	} else if failed > 0 {
		suffix = fmt.Sprintf(" but failed to apply %d of %d settings", failed, total)
	}

	if !sup.StatusSnapshot().Config.AutoStart {
		renderOK(w, fmt.Sprintf("program %s added successfully%s", name, suffix))
		return
	}

	if err := s.registry.AddProgram(sup); err == nil {
		if err := sup.Start(); err == nil {
			renderOK(w, fmt.Sprintf("program %s added and started successfully%s", name, suffix))
			return
		}
	}
	renderOK(w, fmt.Sprintf("program %s added successfully but failed to start%s. see server logs for details", name, suffix))
}

func (s *Server) handleProgramUpdate(w http.ResponseWriter, r *http.Request) {
	archivePath, cleanup, err := s.saveUploadedZip(r)
	if err != nil {
		renderErr(w, err)
		return
	}
	defer cleanup()

	if err := zipper.Validate(archivePath); err != nil {
		renderErr(w, err)
		return
	}

	name, err := zipper.RootName(archivePath)
	if err != nil {
		renderErr(w, err)
		return
	}

	wasActive := false
	if sup, ok := s.registry.GetProgram(name); ok {
		wasActive = sup.StatusSnapshot().Status.Kind == supervisor.Running
		if wasActive {
			if err := sup.Stop(); err != nil {
				renderErr(w, err)
				return
			}
		}
	}

	if err := zipper.ReplaceAtomically(archivePath, s.root.Bin(), name); err != nil {
		renderErr(w, err)
		return
	}

	suffix := ""
	if wasActive {
		suffix = ". restart it for the changes to take effect"
	}
	renderOK(w, fmt.Sprintf("program %s updated successfully%s", name, suffix))
}

func (s *Server) handleProgramRemove(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		renderErr(w, rackyerr.InvalidInput("failed to parse form: %v", err))
		return
	}
	name := r.FormValue("program")
	if name == "" {
		renderErr(w, rackyerr.InvalidInput("missing field `program`"))
		return
	}

	target := paths.FromName(s.root, name)
	root := paths.ProgramRoot(target.Executable)

	existed := false
	if _, err := os.Stat(root); err == nil {
		existed = true
		os.RemoveAll(root)
	}
	os.Remove(target.Config)
	os.RemoveAll(target.Logs)

	if sup, ok := s.registry.GetProgram(name); ok {
		wasActive := sup.StatusSnapshot().Status.Kind == supervisor.Running
		s.registry.RemoveProgram(name)
		if wasActive {
			sup.Stop()
		}
		existed = true
	}

	if !existed {
		renderError(w, http.StatusNotFound, fmt.Sprintf("program %s does not exist", name))
		return
	}
	renderOK(w, fmt.Sprintf("program %s removed successfully", name))
}

func (s *Server) handleProgramStart(w http.ResponseWriter, r *http.Request) {
	name, ok := formProgram(w, r)
	if !ok {
		return
	}

	sup, exists := s.registry.GetProgram(name)
	if !exists {
		target := paths.FromName(s.root, name)
		if !target.Validate() {
			renderError(w, http.StatusNotFound, fmt.Sprintf("program %s does not exist", name))
			return
		}
		sink, err := logsink.New(target.Logs, s.serverConfig().LogSizeLimit, s.serverConfig().LogFileLimit)
		if err != nil {
			renderErr(w, err)
			return
		}
		sup, err = supervisor.New(s.root, name, s.log, sink)
		if err != nil {
			renderErr(w, err)
			return
		}
		sup.LoadConfig()
		if err := s.registry.AddProgram(sup); err != nil {
			renderErr(w, err)
			return
		}
	}

	if err := sup.Start(); err != nil {
		renderErr(w, err)
		return
	}
	renderOK(w, fmt.Sprintf("program %s started successfully", name))
}

func (s *Server) handleProgramStop(w http.ResponseWriter, r *http.Request) {
	sup, ok := s.lookupRunning(w, r)
	if !ok {
		return
	}
	if err := sup.Stop(); err != nil {
		renderErr(w, err)
		return
	}
	renderOK(w, fmt.Sprintf("program %s stopped successfully", sup.Name))
}

func (s *Server) handleProgramRestart(w http.ResponseWriter, r *http.Request) {
	sup, ok := s.lookupRunning(w, r)
	if !ok {
		return
	}
	if err := sup.Stop(); err != nil {
		renderErr(w, err)
		return
	}
	if err := sup.Start(); err != nil {
		renderErr(w, err)
		return
	}
	renderOK(w, fmt.Sprintf("program %s restarted successfully", sup.Name))
}

func (s *Server) lookupRunning(w http.ResponseWriter, r *http.Request) (*supervisor.Supervisor, bool) {
	name, ok := formProgram(w, r)
	if !ok {
		return nil, false
	}
	sup, exists := s.registry.GetProgram(name)
	if !exists || sup.StatusSnapshot().Status.Kind != supervisor.Running {
		renderError(w, http.StatusBadRequest, fmt.Sprintf("program %s is not running", name))
		return nil, false
	}
	return sup, true
}

func formProgram(w http.ResponseWriter, r *http.Request) (string, bool) {
	if err := r.ParseForm(); err != nil {
		renderErr(w, rackyerr.InvalidInput("failed to parse form: %v", err))
		return "", false
	}
	name := r.FormValue("program")
	if name == "" {
		renderErr(w, rackyerr.InvalidInput("missing field `program`"))
		return "", false
	}
	return name, true
}

func (s *Server) handleProgramStatus(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("program")
	if name == "" {
		renderErr(w, rackyerr.InvalidInput("missing query parameter `program`"))
		return
	}

	sup, ok := s.registry.GetProgram(name)
	if !ok {
		renderError(w, http.StatusNotFound, fmt.Sprintf("program %s has not been run since the server was started", name))
		return
	}

	snap := sup.StatusSnapshot()
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\n", snap.Name)
	fmt.Fprintf(&b, "Status: %s\n", snap.Status)
	fmt.Fprintf(&b, "Executions: %d\n\n", snap.Executions)
	fmt.Fprintf(&b, "Current:\n")
	fmt.Fprintf(&b, "  Restart Attempts: %d/%d\n", snap.Attempts.Current, snap.Config.RestartAttempts)
	fmt.Fprintf(&b, "  Runtime: %s\n", snap.Runtime.Current)
	fmt.Fprintf(&b, "  Start Time: %s\n\n", formatStartTime(snap.StartTime.Current))
	fmt.Fprintf(&b, "Total:\n")
	fmt.Fprintf(&b, "  Restart Attempts: %d\n", snap.Attempts.Total)
	fmt.Fprintf(&b, "  Runtime: %s\n", snap.Runtime.Total)
	fmt.Fprintf(&b, "  Start Time: %s\n", formatStartTime(snap.StartTime.Total))

	renderOK(w, b.String())
}

func formatStartTime(t *time.Time) string {
	if t == nil {
		return "N/A"
	}
	return t.Format("2006-01-02 15:04:05")
}

func (s *Server) handleProgramLogs(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("program")
	if name == "" {
		renderErr(w, rackyerr.InvalidInput("missing query parameter `program`"))
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))

	target := paths.FromName(s.root, name)
	logPage, err := logsink.ReadFile(target.Logs, page)
	if err != nil {
		renderErr(w, err)
		return
	}
	renderOK(w, strings.Join(logPage.Lines, "\n"))
}

func (s *Server) handleProgramConfig(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		renderErr(w, rackyerr.InvalidInput("failed to parse form: %v", err))
		return
	}
	name := r.FormValue("program")
	if name == "" {
		renderErr(w, rackyerr.InvalidInput("missing field `program`"))
		return
	}

	target := paths.FromName(s.root, name)
	if !target.Validate() {
		renderError(w, http.StatusNotFound, fmt.Sprintf("program %s does not exist", name))
		return
	}

	sup, ok := s.registry.GetProgram(name)
	if !ok {
		var err error
		sup, err = supervisor.New(s.root, name, s.log, nil)
		if err != nil {
			renderErr(w, err)
			return
		}
	}
	sup.LoadConfig()

	if listFlag(r) {
		renderOK(w, renderConfigTable(sup.StatusSnapshot()))
		return
	}

	if boolFlag(r, "default") {
		for _, f := range config.ProgramFields() {
			sup.UpdateConfig(f.Name, f.Default)
		}
		if err := sup.SaveConfig(); err != nil {
			renderErr(w, err)
			return
		}
		renderOK(w, fmt.Sprintf("configuration of %s restored to defaults successfully", name))
		return
	}

	data := r.FormValue("data")
	if data == "" {
		renderError(w, http.StatusBadRequest, "no key=value pairs provided")
		return
	}

	changed := 0
	for _, pair := range strings.Split(data, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			renderError(w, http.StatusBadRequest, fmt.Sprintf("invalid key=value pair: %s", pair))
			return
		}
		if err := sup.UpdateConfig(key, value); err != nil {
			renderErr(w, err)
			return
		}
		changed++
	}

	if err := sup.SaveConfig(); err != nil {
		renderErr(w, err)
		return
	}
	renderOK(w, fmt.Sprintf("configuration of %s updated successfully (%d changed)", name, changed))
}

// renderConfigTable renders a plain-text key/default/current table for
// /program/config?list=true, matching the fields the original's
// documented-field config table exposed. `cmd/racky program config --list`
// prints this server-rendered table as it is received.
func renderConfigTable(snap supervisor.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Setting          Default  Current  Description\n")
	for _, f := range config.ProgramFields() {
		current, _ := snap.Config.Get(f.Name)
		if current == f.Default {
			current = ""
		}
		fmt.Fprintf(&b, "%-16s %-8s %-8s %s\n", f.Name, f.Default, current, f.Doc)
	}
	for key, value := range snap.Vars {
		fmt.Fprintf(&b, "%-16s %-8s %-8s %s\n", key, "", value, "user-defined environment variable")
	}
	return b.String()
}

func listFlag(r *http.Request) bool { return boolFlag(r, "list") }

func boolFlag(r *http.Request, key string) bool {
	v := r.FormValue(key)
	b, _ := strconv.ParseBool(v)
	return b
}

func (s *Server) handleServerStatus(w http.ResponseWriter, r *http.Request) {
	var si sysinfo.SysInfo
	si.GetSysInfo()

	progs := s.registry.Programs()
	running := 0
	names := make([]string, 0, len(progs))
	for _, p := range progs {
		if p.StatusSnapshot().Status.Kind == supervisor.Running {
			running++
			names = append(names, p.Name)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Server:\n")
	fmt.Fprintf(&b, "  Uptime: %s\n", s.registry.Uptime())
	fmt.Fprintf(&b, "  Running Programs: %d/%d (%s)\n\n", running, len(progs), strings.Join(names, ", "))
	fmt.Fprintf(&b, "Host:\n")
	fmt.Fprintf(&b, "  OS: %s %s\n", si.OS.Name, si.OS.Version)
	fmt.Fprintf(&b, "  Kernel: %s\n", si.Kernel.Release)
	fmt.Fprintf(&b, "  CPU: %s (%d cores)\n", si.CPU.Model, si.CPU.Cores)
	fmt.Fprintf(&b, "  Memory: %d MB\n", si.Memory.Size)

	renderOK(w, b.String())
}

func (s *Server) handleServerLogs(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	logPage, err := logsink.ReadFile(filepath.Join(s.root.Logs(), paths.Reserved), page)
	if err != nil {
		renderErr(w, err)
		return
	}
	renderOK(w, strings.Join(logPage.Lines, "\n"))
}

func (s *Server) handleServerConfig(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		renderErr(w, rackyerr.InvalidInput("failed to parse form: %v", err))
		return
	}

	cfg := s.serverConfig()

	if boolFlag(r, "default") {
		cfg = config.DefaultServerConfig()
		s.setServerConfig(cfg)
		if err := config.SaveServerConfig(filepath.Join(s.root.Config(), paths.Reserved+".toml"), cfg); err != nil {
			renderErr(w, err)
			return
		}
		renderOK(w, "server configuration restored to defaults successfully")
		return
	}

	data := r.FormValue("data")
	if data == "" {
		renderError(w, http.StatusBadRequest, "no key=value pairs provided")
		return
	}

	changed := 0
	for _, pair := range strings.Split(data, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			renderError(w, http.StatusBadRequest, fmt.Sprintf("invalid key=value pair: %s", pair))
			return
		}
		if _, err := cfg.Set(key, value); err != nil {
			renderErr(w, err)
			return
		}
		changed++
	}

	s.setServerConfig(cfg)
	if err := config.SaveServerConfig(filepath.Join(s.root.Config(), paths.Reserved+".toml"), cfg); err != nil {
		renderErr(w, err)
		return
	}
	renderOK(w, fmt.Sprintf("server configuration updated successfully (%d changed)", changed))
}

// stopRunningPrograms stops every currently running program, the common
// first step of every route that tears the host process down.
func (s *Server) stopRunningPrograms() {
	for _, sup := range s.registry.Programs() {
		if sup.StatusSnapshot().Status.Kind == supervisor.Running {
			sup.Stop()
		}
	}
}

// runShortlyAfter runs action on its own goroutine once delay has passed, so
// a caller that triggers its own transport shutting down underneath it still
// gets the acknowledgement response written first.
func runShortlyAfter(delay time.Duration, action func()) {
	go func() {
		time.Sleep(delay)
		action()
	}()
}

const systemdService = "racky"

// runningAsSystemdService reports whether this process was started by
// systemd as a unit: systemd sets INVOCATION_ID for every unit it starts,
// and only that environment has a service to hand restart/stop off to
// instead of exiting the process directly.
func runningAsSystemdService() bool {
	return runtime.GOOS == "linux" && os.Getenv("INVOCATION_ID") != ""
}

func (s *Server) handleServerShutdown(w http.ResponseWriter, r *http.Request) {
	s.stopRunningPrograms()

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.Command("shutdown", "/s", "/t", "0")
	} else {
		cmd = exec.Command("shutdown", "now")
	}
	if err := cmd.Start(); err != nil {
		renderError(w, http.StatusInternalServerError, fmt.Sprintf("failed to shut down the server: %v", err))
		return
	}
	renderOK(w, "server shutting down...")
}

func (s *Server) handleServerReboot(w http.ResponseWriter, r *http.Request) {
	if runtime.GOOS == "windows" {
		renderError(w, http.StatusBadRequest, "rebooting the server is currently only supported on Unix systems")
		return
	}

	s.stopRunningPrograms()

	if err := exec.Command("reboot").Start(); err != nil {
		renderError(w, http.StatusInternalServerError, fmt.Sprintf("failed to reboot the server: %v", err))
		return
	}
	renderOK(w, "server will reboot shortly")
}

func (s *Server) handleServerRestart(w http.ResponseWriter, r *http.Request) {
	if !runningAsSystemdService() {
		renderError(w, http.StatusBadRequest, "restarting the server is currently only supported on Linux systems running racky as a service")
		return
	}

	runShortlyAfter(time.Second, func() {
		s.stopRunningPrograms()
		exec.Command("systemctl", "restart", systemdService).Run()
	})
	renderOK(w, "server restarting in 1 second...")
}

func (s *Server) handleServerStop(w http.ResponseWriter, r *http.Request) {
	asService := runningAsSystemdService()
	runShortlyAfter(time.Second, func() {
		s.stopRunningPrograms()
		if asService {
			exec.Command("systemctl", "stop", systemdService).Run()
			return
		}
		os.Exit(0)
	})
	renderOK(w, "server stopping in 1 second...")
}

// handleServerUpdate replaces the server's own binary under bin/racky with
// the uploaded archive's contents, the same extract-to-scratch-then-swap
// path /program/update uses. The running server keeps serving the old
// binary in memory until it is restarted.
func (s *Server) handleServerUpdate(w http.ResponseWriter, r *http.Request) {
	archivePath, cleanup, err := s.saveUploadedZip(r)
	if err != nil {
		renderErr(w, err)
		return
	}
	defer cleanup()

	if err := zipper.Validate(archivePath); err != nil {
		renderErr(w, err)
		return
	}

	if err := zipper.ReplaceAtomically(archivePath, s.root.Bin(), paths.Reserved); err != nil {
		renderErr(w, err)
		return
	}

	renderOK(w, "server updated successfully. restart it for the changes to take effect")
}
