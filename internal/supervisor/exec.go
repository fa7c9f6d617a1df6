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
	"os"
	"os/exec"
	"path/filepath"
)

// buildCmd builds the exec.Cmd for execPath: if the extension is .sh the
// command is "bash <script>", otherwise the executable is invoked
// directly. vars override the inherited OS environment.
func buildCmd(execPath, workDir string, vars map[string]string) *exec.Cmd {
	var cmd *exec.Cmd
	if filepath.Ext(execPath) == ".sh" {
		cmd = exec.Command("bash", execPath)
	} else {
		cmd = exec.Command(execPath)
	}
	cmd.Dir = workDir
	cmd.Env = mergeEnv(os.Environ(), vars)
	return cmd
}

func mergeEnv(base []string, overrides map[string]string) []string {
	env := make([]string, 0, len(base)+len(overrides))
	env = append(env, base...)
	for k, v := range overrides {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}
