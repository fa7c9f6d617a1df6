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

import "sync"

// capture is a bounded write sink for summarizing a run's stdout/stderr
// into the Status payload (Finished.Stdout, Errored.Detail), independent
// of the rotated log sink that durably persists the full stream.
type capture struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func newCapture(limit int) *capture {
	return &capture{limit: limit}
}

func (c *capture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.buf) >= c.limit {
		return len(p), nil
	}
	remaining := c.limit - len(c.buf)
	if len(p) > remaining {
		c.buf = append(c.buf, p[:remaining]...)
	} else {
		c.buf = append(c.buf, p...)
	}
	return len(p), nil
}

func (c *capture) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return string(c.buf)
}

const captureLimit = 64 * 1024
