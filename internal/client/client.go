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
package client

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/DervexDev/racky/internal/rackyerr"
)

const userAgent = "racky-client"

// Client is a thin fluent wrapper around net/http for talking to the HTTP
// façade: accumulate text/file fields, then Get or Post a path.
type Client struct {
	server Server
	http   *http.Client

	text  map[string]string
	files map[string]string // field name -> local path
}

// New builds a Client targeting server.
func New(server Server) *Client {
	return &Client{
		server: server,
		http:   &http.Client{Timeout: 30 * time.Second},
		text:   map[string]string{},
		files:  map[string]string{},
	}
}

// Text attaches a plain key/value field, sent as a query parameter on Get
// or a form field on Post.
func (c *Client) Text(key string, value interface{}) *Client {
	c.text[key] = fmt.Sprintf("%v", value)
	return c
}

// File attaches a local file to be uploaded under field on Post, switching
// the request to multipart/form-data.
func (c *Client) File(field, path string) *Client {
	c.files[field] = path
	return c
}

func (c *Client) baseURL(path string) string {
	return fmt.Sprintf("http://%s:%d/%s", c.server.Address, c.server.Port, path)
}

// Get issues a GET request with every Text field as a query parameter.
func (c *Client) Get(path string) (*Response, error) {
	u, err := url.Parse(c.baseURL(path))
	if err != nil {
		return nil, rackyerr.Internal("invalid request URL: %v", err)
	}
	q := u.Query()
	for k, v := range c.text {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, rackyerr.Internal("failed to build request: %v", err)
	}
	return c.send(req)
}

// Post issues a POST, as multipart/form-data when any File was attached,
// otherwise as application/x-www-form-urlencoded.
func (c *Client) Post(path string) (*Response, error) {
	if len(c.files) > 0 {
		return c.postMultipart(path)
	}
	return c.postForm(path)
}

func (c *Client) postForm(path string) (*Response, error) {
	form := url.Values{}
	for k, v := range c.text {
		form.Set(k, v)
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL(path), bytes.NewBufferString(form.Encode()))
	if err != nil {
		return nil, rackyerr.Internal("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.send(req)
}

func (c *Client) postMultipart(path string) (*Response, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	for field, path := range c.files {
		f, err := os.Open(path)
		if err != nil {
			return nil, rackyerr.IO(err, "failed to open %s for upload", path)
		}
		part, err := w.CreateFormFile(field, filepath.Base(path))
		if err != nil {
			f.Close()
			return nil, rackyerr.Internal("failed to create multipart field %s: %v", field, err)
		}
		if _, err := io.Copy(part, f); err != nil {
			f.Close()
			return nil, rackyerr.IO(err, "failed to read %s", path)
		}
		f.Close()
	}

	for k, v := range c.text {
		if err := w.WriteField(k, v); err != nil {
			return nil, rackyerr.Internal("failed to write field %s: %v", k, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, rackyerr.Internal("failed to finalize multipart body: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL(path), &body)
	if err != nil {
		return nil, rackyerr.Internal("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return c.send(req)
}

func (c *Client) send(req *http.Request) (*Response, error) {
	if c.server.Password != "" {
		req.Header.Set("Authorization", "Bearer "+c.server.Password)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, rackyerr.IO(err, "failed to connect to the server")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, rackyerr.IO(err, "failed to read server response")
	}

	return &Response{StatusCode: resp.StatusCode, Body: string(raw)}, nil
}

// Response is the status/body pair returned by a façade request.
type Response struct {
	StatusCode int
	Body       string
}

// WithPrefix prepends prefix to a successful body, leaving failures alone.
func (r *Response) WithPrefix(prefix string) *Response {
	if r.StatusCode >= 200 && r.StatusCode < 300 {
		r.Body = prefix + r.Body
	}
	return r
}

// Handle returns nil and the body on success, or a rackyerr carrying the
// façade's plain-text error line and status code on failure.
func (r *Response) Handle() (string, error) {
	if r.StatusCode >= 200 && r.StatusCode < 300 {
		return r.Body, nil
	}
	if r.Body != "" {
		return "", rackyerr.Internal("%s (%d)", r.Body, r.StatusCode)
	}
	return "", rackyerr.Internal("request failed with status %d", r.StatusCode)
}
