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
	"net/http"

	"github.com/DervexDev/racky/internal/rackyerr"
)

// renderLine writes a single plain-text line, the body shape every
// successful response takes.
func renderLine(w http.ResponseWriter, status int, line string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintln(w, line)
}

func renderOK(w http.ResponseWriter, line string) { renderLine(w, http.StatusOK, line) }

// renderError renders message as a single plain-text line under the given
// HTTP status code.
func renderError(w http.ResponseWriter, status int, message string) {
	renderLine(w, status, message)
}

func statusFor(kind rackyerr.Kind) int {
	switch kind {
	case rackyerr.KindInvalidInput:
		return http.StatusBadRequest
	case rackyerr.KindNotFound:
		return http.StatusNotFound
	case rackyerr.KindConflict:
		return http.StatusConflict
	case rackyerr.KindIO, rackyerr.KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// renderErr renders err using the kind-to-status mapping, falling back to
// 500 for an error that isn't a *rackyerr.Error.
func renderErr(w http.ResponseWriter, err error) {
	kind := rackyerr.KindOf(err)
	renderError(w, statusFor(kind), err.Error())
}
