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
//go:build unix

package supervisor

import (
	"os/exec"
	"syscall"
)

// setProcessGroup spawns the child as the leader of a new process group,
// so Stop can signal the whole tree with a single syscall instead of
// leaking descendants.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// groupHandle is an opaque per-spawn process-tree handle. On POSIX the
// process group created by setProcessGroup already is the tree handle, so
// there is nothing further to attach or release.
type groupHandle struct{}

// attachProcessGroup is a no-op on POSIX: the child already leads its own
// process group from the moment it was started.
func attachProcessGroup(pid int) (groupHandle, error) {
	return groupHandle{}, nil
}

// closeProcessGroup is a no-op on POSIX.
func closeProcessGroup(groupHandle) {}

// killProcessGroup sends SIGTERM to the process group led by pid. A
// natural exit whose signal is SIGTERM is what classifyExit recognizes and
// suppresses the log line for.
func killProcessGroup(pid int, _ groupHandle) error {
	return syscall.Kill(-pid, syscall.SIGTERM)
}

// exitSignal reports whether the process was terminated by a signal and,
// if so, whether that signal was SIGTERM — the pair classifyExit needs to
// suppress the error log line for a SIGTERM-caused exit.
func exitSignal(exitErr *exec.ExitError) (signaled bool, isSigterm bool) {
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok || !status.Signaled() {
		return false, false
	}
	return true, status.Signal() == syscall.SIGTERM
}
