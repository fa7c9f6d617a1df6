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
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/DervexDev/racky/internal/config"
	"github.com/DervexDev/racky/internal/core"
	"github.com/DervexDev/racky/internal/paths"
)

func testLog() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func newTestServer(t *testing.T, password string) (*Server, paths.Root) {
	t.Helper()
	dir := t.TempDir()
	root := paths.NewRootAt(dir)
	require.NoError(t, os.MkdirAll(root.Bin(), 0o755))
	require.NoError(t, os.MkdirAll(root.Config(), 0o755))
	require.NoError(t, os.MkdirAll(root.Logs(), 0o755))

	reg := core.New(root, testLog())
	cfg := config.DefaultServerConfig()
	cfg.Password = password
	return New(reg, root, testLog(), cfg, nil), root
}

func TestPingNeverRequiresAuth(t *testing.T) {
	srv, _ := newTestServer(t, "secret")
	router := srv.Router()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "pong")
}

func TestAuthMiddlewareRejectsMissingToken(t *testing.T) {
	srv, _ := newTestServer(t, "secret")
	router := srv.Router()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/server/status", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddlewareAcceptsValidToken(t *testing.T) {
	srv, _ := newTestServer(t, "secret")
	router := srv.Router()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/server/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
}

func TestAuthDisabledWhenNoPasswordConfigured(t *testing.T) {
	srv, _ := newTestServer(t, "")
	router := srv.Router()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/server/status", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
}

func TestProgramStartStatusAndStopLifecycle(t *testing.T) {
	srv, root := newTestServer(t, "")
	router := srv.Router()

	script := filepath.Join(root.Bin(), "p.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/bash\nsleep 5\n"), 0o755))

	form := url.Values{"program": {"p"}}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/program/start", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	deadline := time.Now().Add(time.Second)
	var statusBody string
	for time.Now().Before(deadline) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/program/status?program=p", nil)
		router.ServeHTTP(w, req)
		statusBody = w.Body.String()
		if strings.Contains(statusBody, "Running") {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.Contains(t, statusBody, "Running")

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/program/stop", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestProgramStartMissingExecutableReturnsNotFound(t *testing.T) {
	srv, _ := newTestServer(t, "")
	router := srv.Router()

	form := url.Values{"program": {"missing"}}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/program/start", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestProgramStatusUnknownProgramReturnsNotFound(t *testing.T) {
	srv, _ := newTestServer(t, "")
	router := srv.Router()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/program/status?program=ghost", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
}
