package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// TestContext drives a running findiff server over HTTP and keeps the state
// shared between steps of one scenario.
type TestContext struct {
	BaseURL    string
	AdminToken string
	client     *http.Client

	lastStatus int
	lastBody   []byte

	tokens  map[string]string
	current string
	saved   map[string]string
	runID   string
}

// NewTestContext reads FINDIFF_E2E_URL and FINDIFF_E2E_ADMIN_TOKEN.
func NewTestContext() *TestContext {
	base := os.Getenv("FINDIFF_E2E_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	return &TestContext{
		BaseURL:    strings.TrimSuffix(base, "/"),
		AdminToken: os.Getenv("FINDIFF_E2E_ADMIN_TOKEN"),
		client:     &http.Client{Timeout: 10 * time.Second},
		tokens:     map[string]string{},
		saved:      map[string]string{},
		runID:      newRunID(),
	}
}

func newRunID() string {
	return strconv.FormatInt(time.Now().UnixNano(), 36)
}

// Reset clears per-scenario state.
func (tc *TestContext) Reset() {
	tc.lastStatus = 0
	tc.lastBody = nil
	tc.tokens = map[string]string{}
	tc.current = ""
	tc.saved = map[string]string{}
	tc.runID = newRunID()
}

// Unique scopes a username or role name to the scenario so reruns against a
// persistent database do not collide.
func (tc *TestContext) Unique(name string) string {
	return name + "_" + tc.runID
}

func (tc *TestContext) do(req *http.Request) error {
	if token := tc.tokens[tc.current]; token != "" && req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	tc.lastStatus = resp.StatusCode
	tc.lastBody = body
	return nil
}

func (tc *TestContext) send(method, path string, body any, headers map[string]string) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, tc.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return tc.do(req)
}

func (tc *TestContext) POST(path string, body any) error {
	return tc.send(http.MethodPost, path, body, nil)
}

func (tc *TestContext) POSTWithHeaders(path string, body any, headers map[string]string) error {
	return tc.send(http.MethodPost, path, body, headers)
}

func (tc *TestContext) GET(path string, headers map[string]string) error {
	return tc.send(http.MethodGet, path, nil, headers)
}

func (tc *TestContext) DELETE(path string) error {
	return tc.send(http.MethodDelete, path, nil, nil)
}

// Upload posts a multipart form with one file part.
func (tc *TestContext) Upload(path string, fields map[string]string, fileField, fileName string, content []byte) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	fw, err := mw.CreateFormFile(fileField, fileName)
	if err != nil {
		return err
	}
	if _, err := fw.Write(content); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, tc.BaseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return tc.do(req)
}

func (tc *TestContext) AdminTokenValue() string { return tc.AdminToken }

func (tc *TestContext) StatusCode() int { return tc.lastStatus }

func (tc *TestContext) Body() []byte { return tc.lastBody }

// GetResponseField reads a dotted path such as "results.0" from the last JSON
// response.
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var doc any
	if err := json.Unmarshal(tc.lastBody, &doc); err != nil {
		return nil, fmt.Errorf("response is not JSON: %w", err)
	}
	cur := doc
	for _, part := range strings.Split(field, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[part]
			if !ok {
				return nil, fmt.Errorf("field %q not found in %s", field, tc.lastBody)
			}
			cur = v
		case []any:
			var i int
			if _, err := fmt.Sscanf(part, "%d", &i); err != nil || i < 0 || i >= len(node) {
				return nil, fmt.Errorf("index %q out of range in %q", part, field)
			}
			cur = node[i]
		default:
			return nil, fmt.Errorf("field %q not found in %s", field, tc.lastBody)
		}
	}
	return cur, nil
}

func (tc *TestContext) ResponseContains(field string) bool {
	_, err := tc.GetResponseField(field)
	return err == nil
}

// SetToken stores the access token of user and makes it the caller.
func (tc *TestContext) SetToken(user, token string) {
	tc.tokens[user] = token
	tc.current = user
}

// ActAs switches the caller to a user that already logged in.
func (tc *TestContext) ActAs(user string) error {
	if _, ok := tc.tokens[user]; !ok {
		return fmt.Errorf("%s has not logged in", user)
	}
	tc.current = user
	return nil
}

// Anonymous drops the Authorization header for following requests.
func (tc *TestContext) Anonymous() { tc.current = "" }

func (tc *TestContext) Save(key, value string) { tc.saved[key] = value }

func (tc *TestContext) Saved(key string) (string, error) {
	v, ok := tc.saved[key]
	if !ok {
		return "", fmt.Errorf("nothing saved as %q", key)
	}
	return v, nil
}

// Expand replaces {name} placeholders with saved values.
func (tc *TestContext) Expand(s string) string {
	for k, v := range tc.saved {
		s = strings.ReplaceAll(s, "{"+k+"}", v)
	}
	return s
}
