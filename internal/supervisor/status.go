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

import "fmt"

// Kind is one variant of the Status tagged union.
type Kind int

const (
	Idle Kind = iota
	Running
	Restarting
	Stopped
	Finished
	Errored
	Failed
)

// Status is the supervisor's current lifecycle state. Only the fields
// relevant to Kind are meaningful: PID for Running, Stdout for Finished,
// Detail for Errored/Failed.
type Status struct {
	Kind   Kind
	PID    int
	Stdout string
	Detail string
}

func (s Status) String() string {
	switch s.Kind {
	case Idle:
		return "idle"
	case Running:
		return fmt.Sprintf("running (pid %d)", s.PID)
	case Restarting:
		return "restarting"
	case Stopped:
		return "stopped"
	case Finished:
		return "finished"
	case Errored:
		return fmt.Sprintf("errored: %s", s.Detail)
	case Failed:
		return fmt.Sprintf("failed: %s", s.Detail)
	default:
		return "unknown"
	}
}
