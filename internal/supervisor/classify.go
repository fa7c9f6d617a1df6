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
	"fmt"
	"os/exec"
	"strings"
)

// classifyExit turns a process exit into a post-exit status: success
// becomes Finished(stdout); non-zero exit or a wait error becomes
// Errored; a SIGTERM-caused exit is still classified as Errored but its
// log line is suppressed — an externally-initiated Stop has already
// overwritten status to Stopped by the time the watcher re-enters and
// observes the fenced generation, so this path is only reached for a
// SIGTERM the program received from something other than Stop.
func classifyExit(waitErr error, stdout, stderr *capture) (Status, bool) {
	if waitErr == nil {
		return Status{Kind: Finished, Stdout: stdout.String()}, false
	}

	exitErr, ok := waitErr.(*exec.ExitError)
	if !ok {
		return Status{Kind: Errored, Detail: waitErr.Error()}, false
	}

	if signaled, sigTerm := exitSignal(exitErr); signaled && sigTerm {
		return Status{Kind: Errored, Detail: "terminated by SIGTERM"}, true
	}

	detail := strings.TrimSpace(stderr.String())
	if detail == "" {
		detail = fmt.Sprintf("exit code %d", exitErr.ExitCode())
	}
	return Status{Kind: Errored, Detail: detail}, false
}
