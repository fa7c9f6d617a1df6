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
// Package paths implements Racky's pure, side-effect-free mapping from a
// program name or filesystem path to canonical locations.
package paths

import (
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
)

// Root is the resolved "<user-home>/.racky" tree the rest of Racky is
// rooted at. It is constructed once in main and threaded through explicitly
// rather than kept as process-wide global state.
type Root struct {
	dir string
}

// NewRoot resolves the Racky root directory under home. An empty home
// resolves the current user's home directory via go-homedir.
func NewRoot(home string) (Root, error) {
	if home == "" {
		h, err := homedir.Dir()
		if err != nil {
			return Root{}, err
		}
		home = h
	}
	return Root{dir: filepath.Join(home, ".racky")}, nil
}

// NewRootAt wraps an already-resolved root directory directly, bypassing
// the "<home>/.racky" join. Used by tests.
func NewRootAt(dir string) Root {
	return Root{dir: dir}
}

func (r Root) Dir() string    { return r.dir }
func (r Root) Bin() string    { return filepath.Join(r.dir, "bin") }
func (r Root) Config() string { return filepath.Join(r.dir, "config") }
func (r Root) Logs() string   { return filepath.Join(r.dir, "logs") }

// Reserved is the program name the server reserves for its own files.
const Reserved = "racky"

// Paths holds the canonical, derived locations for a single program.
type Paths struct {
	Name             string
	Executable       string
	Config           string
	Logs             string
	WorkingDirectory string
}

// FromName builds the canonical Paths for a program name by resolving its
// executable under root.Bin() with the following precedence:
//
//	1. <bin>/<name>            if it exists and is a regular file
//	2. <bin>/<name>/racky.sh
//	3. <bin>/<name>/scripts/racky.sh
//	4. <bin>/<name>.sh         (last resort, may not exist)
func FromName(root Root, name string) Paths {
	executable := resolveExecutable(root.Bin(), name)
	return Paths{
		Name:             name,
		Executable:       executable,
		Config:           filepath.Join(root.Config(), name+".toml"),
		Logs:             filepath.Join(root.Logs(), name),
		WorkingDirectory: workingDirectory(executable),
	}
}

func resolveExecutable(bin, name string) string {
	direct := filepath.Join(bin, name)
	if info, err := os.Stat(direct); err == nil && info.Mode().IsRegular() {
		return direct
	}

	dir := direct
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		script := filepath.Join(dir, "racky.sh")
		if fileExists(script) {
			return script
		}
		return filepath.Join(dir, "scripts", "racky.sh")
	}

	return filepath.Join(bin, name+".sh")
}

// FromPath resolves an arbitrary user-provided path (a single file or a
// directory) to an executable using the same precedence as FromName, for
// use by the client before zipping.
func FromPath(p string) (executable string, ok bool) {
	info, err := os.Stat(p)
	if err != nil {
		return "", false
	}
	if info.IsDir() {
		script := filepath.Join(p, "racky.sh")
		if fileExists(script) {
			return script, true
		}
		script = filepath.Join(p, "scripts", "racky.sh")
		if fileExists(script) {
			return script, true
		}
		return "", false
	}
	if info.Mode().IsRegular() {
		return p, true
	}
	return "", false
}

// ProgramRoot returns the top-level filesystem entry that represents a
// program and must be deleted on removal: the parent directory of a
// racky.sh (grandparent if nested under scripts/), or the executable
// itself otherwise.
func ProgramRoot(executable string) string {
	if filepath.Base(executable) != "racky.sh" {
		return executable
	}
	return workingDirectory(executable)
}

func workingDirectory(executable string) string {
	if filepath.Base(executable) != "racky.sh" {
		return filepath.Dir(executable)
	}
	parent := filepath.Dir(executable)
	if filepath.Base(parent) == "scripts" {
		return filepath.Dir(parent)
	}
	return parent
}

// Validate reports whether the executable exists, the sole notion of
// program validity.
func (p Paths) Validate() bool {
	return fileExists(p.Executable)
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}
