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
package logsink

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteLineAndReadFile(t *testing.T) {
	dir := t.TempDir()
	sink, err := New(dir, 10, 5)
	require.NoError(t, err)
	defer sink.Close()

	sink.WriteLine("OUT", "hello")
	sink.WriteLine("ERR", "boom")

	page, err := ReadFile(dir, 0)
	require.NoError(t, err)
	require.Len(t, page.Lines, 2)
	require.Contains(t, page.Lines[0], "[OUT] hello")
	require.Contains(t, page.Lines[1], "[ERR] boom")
}

func TestRotationRetainsAtMostFileLimit(t *testing.T) {
	dir := t.TempDir()
	// 1 MB limit, 3 files retained.
	sink, err := New(dir, 1, 3)
	require.NoError(t, err)
	defer sink.Close()

	line := strings.Repeat("x", 1024) // ~1KB payload per line
	// ~4MB of output total -> ~4 rotations at a 1MB boundary.
	for i := 0; i < 4100; i++ {
		sink.WriteLine("OUT", line)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var logFiles []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".log") {
			logFiles = append(logFiles, e.Name())
		}
	}
	require.LessOrEqual(t, len(logFiles), 3)
	require.GreaterOrEqual(t, len(logFiles), 1)

	// The newest page (page 0) must be non-empty and contain recent output.
	page, err := ReadFile(dir, 0)
	require.NoError(t, err)
	require.NotEmpty(t, page.Lines)
}

func TestReadFileEmptyDir(t *testing.T) {
	dir := t.TempDir()
	page, err := ReadFile(dir, 0)
	require.NoError(t, err)
	require.Empty(t, page.Lines)
}

func TestReadFileOutOfRangePage(t *testing.T) {
	dir := t.TempDir()
	sink, err := New(dir, 10, 5)
	require.NoError(t, err)
	defer sink.Close()
	sink.WriteLine("OUT", "only line")

	page, err := ReadFile(dir, 5)
	require.NoError(t, err)
	require.Empty(t, page.Lines)
}

func TestSinkAttachDetachesOnEOF(t *testing.T) {
	dir := t.TempDir()
	sink, err := New(dir, 10, 5)
	require.NoError(t, err)
	defer sink.Close()

	stdoutR, stdoutW := os.Pipe()
	stderrR, stderrW := os.Pipe()

	doneCh := make(chan struct{})
	sink.Attach(stdoutR, stderrR, func() { close(doneCh) })

	stdoutW.WriteString("line one\n")
	stderrW.WriteString("line two\n")
	stdoutW.Close()
	stderrW.Close()

	<-doneCh

	page, err := ReadFile(dir, 0)
	require.NoError(t, err)
	require.Len(t, page.Lines, 2)
}

func TestLogPathNaming(t *testing.T) {
	dir := t.TempDir()
	sink, err := New(dir, 10, 5)
	require.NoError(t, err)
	defer sink.Close()
	sink.WriteLine("OUT", "x")
	require.FileExists(t, filepath.Join(dir, "0.log"))
}
