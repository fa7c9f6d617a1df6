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
//go:build windows

package supervisor

import (
	"os/exec"
	"unsafe"

	"golang.org/x/sys/windows"
)

// setProcessGroup puts the child in a new Windows process group in place
// of a POSIX process group. This only governs console signal delivery;
// tree-kill itself is handled by the job object attachProcessGroup
// creates once the process exists.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &windows.SysProcAttr{CreationFlags: windows.CREATE_NEW_PROCESS_GROUP}
}

// groupHandle is the Windows job object a spawned process tree is
// assigned to, or 0 if no job could be attached.
type groupHandle windows.Handle

// attachProcessGroup creates a job object configured to kill every
// process it contains when the job handle is closed, and assigns pid to
// it immediately after the process is created. Calling this right after
// cmd.Start() succeeds, rather than lazily at kill time, closes the
// window in which a fast child could spawn grandchildren before the job
// exists and have them escape tree-kill.
func attachProcessGroup(pid int) (groupHandle, error) {
	job, err := windows.CreateJobObject(nil, nil)
	if err != nil {
		return 0, err
	}

	info := windows.JOBOBJECT_EXTENDED_LIMIT_INFORMATION{
		BasicLimitInformation: windows.JOBOBJECT_BASIC_LIMIT_INFORMATION{
			LimitFlags: windows.JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE,
		},
	}
	if _, err := windows.SetInformationJobObject(
		job,
		windows.JobObjectExtendedLimitInformation,
		uintptr(unsafe.Pointer(&info)),
		uint32(unsafe.Sizeof(info)),
	); err != nil {
		windows.CloseHandle(job)
		return 0, err
	}

	handle, err := windows.OpenProcess(windows.PROCESS_ALL_ACCESS, false, uint32(pid))
	if err != nil {
		windows.CloseHandle(job)
		return 0, err
	}
	defer windows.CloseHandle(handle)

	if err := windows.AssignProcessToJobObject(job, handle); err != nil {
		windows.CloseHandle(job)
		return 0, err
	}

	return groupHandle(job), nil
}

// closeProcessGroup releases the job handle once its process tree has
// exited. A zero handle means attachProcessGroup never succeeded, so
// there is nothing to release.
func closeProcessGroup(h groupHandle) {
	if h != 0 {
		windows.CloseHandle(windows.Handle(h))
	}
}

// killProcessGroup terminates every process in the job object that was
// attached to pid at spawn time. If no job was ever successfully attached
// (e.g. attachProcessGroup failed), it falls back to killing the leader
// alone.
func killProcessGroup(pid int, h groupHandle) error {
	if h == 0 {
		proc, err := windows.OpenProcess(windows.PROCESS_TERMINATE, false, uint32(pid))
		if err != nil {
			return err
		}
		defer windows.CloseHandle(proc)
		return windows.TerminateProcess(proc, 1)
	}
	return windows.TerminateJobObject(windows.Handle(h), 1)
}

// exitSignal: Windows processes do not exit via POSIX signals, so the
// SIGTERM log-suppression rule never applies on this platform.
func exitSignal(exitErr *exec.ExitError) (signaled bool, isSigterm bool) {
	return false, false
}
