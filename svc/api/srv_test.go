package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"superpaste/cfg"
	"superpaste/svc/cache"
	"superpaste/svc/lim"
)

func newTestServer(t *testing.T, l *lim.Limiter, opts ...Option) (*Server, *httptest.Server) {
	t.Helper()
	store, err := cache.NewLRU(100)
	require.NoError(t, err)
	s := NewServer(cfg.EmuCfg{Port: "0", CacheSize: 100, ContextTimeout: 5 * time.Second}, store, l, opts...)
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)
	return s, ts
}

func do(t *testing.T, method, url, contentType string, body []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t, nil)
	resp, body := do(t, http.MethodGet, ts.URL+"/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok","pastes":0}`, string(body))
}

func TestHastebinDialect(t *testing.T) {
	s, ts := newTestServer(t, nil)

	resp, body := do(t, http.MethodPost, ts.URL+"/documents", "text/plain", []byte("hello"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	var doc documentResp
	require.NoError(t, json.Unmarshal(body, &doc))
	assert.Len(t, doc.Key, 10)

	resp, body = do(t, http.MethodGet, ts.URL+"/raw/"+doc.Key, "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello", string(body))

	resp, body = do(t, http.MethodGet, ts.URL+"/documents/"+doc.Key, "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"key":"`+doc.Key+`","data":"hello"}`, string(body))

	resp, _ = do(t, http.MethodGet, ts.URL+"/raw/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, ts.URL+"/documents", "text/plain", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	assert.Equal(t, 2, s.Count("POST /documents"))
	assert.Equal(t, 2, s.Count("GET /raw/{key}"))
}

func TestHastebinBinaryRoundTrip(t *testing.T) {
	_, ts := newTestServer(t, nil)
	blob := []byte{0xff, 0x00, 0xfe, 0x01}
	_, body := do(t, http.MethodPost, ts.URL+"/documents", "application/octet-stream", blob)
	var doc documentResp
	require.NoError(t, json.Unmarshal(body, &doc))

	resp, body := do(t, http.MethodGet, ts.URL+"/raw/"+doc.Key, "", nil)
	assert.Equal(t, "application/octet-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, blob, body)
}

func TestBearerTokenChecked(t *testing.T) {
	_, ts := newTestServer(t, nil, WithToken("secret"))
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/documents", strings.NewReader("x"))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err = http.NewRequest(http.MethodPost, ts.URL+"/documents", strings.NewReader("x"))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMystbinDialect(t *testing.T) {
	s, ts := newTestServer(t, nil)
	exp := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	req := `{"files":[{"content":"a\nb","filename":"a.txt"},{"content":"c"}],"expires":"` + exp + `","password":"pw"}`
	resp, body := do(t, http.MethodPost, ts.URL+"/api/paste", "application/json", []byte(req))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var created mystbinCreateResp
	require.NoError(t, json.Unmarshal(body, &created))
	assert.NotEmpty(t, created.ID)
	assert.NotEmpty(t, created.Safety)
	require.NotNil(t, created.Expires)

	resp, _ = do(t, http.MethodGet, ts.URL+"/api/paste/"+created.ID, "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body = do(t, http.MethodGet, ts.URL+"/api/paste/"+created.ID+"?password=pw", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got mystbinGetResp
	require.NoError(t, json.Unmarshal(body, &got))
	require.Len(t, got.Files, 2)
	assert.Equal(t, "a\nb", got.Files[0].Content)
	assert.Equal(t, "a.txt", got.Files[0].Filename)
	assert.Equal(t, 2, got.Files[0].LOC)
	assert.Equal(t, 3, got.Files[0].CharCount)
	assert.Equal(t, created.ID, got.Files[1].ParentID)
	assert.True(t, got.HasPassword)

	assert.Equal(t, 1, s.Count("POST /api/paste"))
}

func TestMystbinRejects(t *testing.T) {
	_, ts := newTestServer(t, nil)
	past := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	tcs := []struct {
		name string
		body string
		code int
	}{
		{"no files", `{"files":[]}`, http.StatusBadRequest},
		{"six files", `{"files":[{"content":"1"},{"content":"2"},{"content":"3"},{"content":"4"},{"content":"5"},{"content":"6"}]}`, http.StatusBadRequest},
		{"past expiry", `{"files":[{"content":"1"}],"expires":"` + past + `"}`, http.StatusBadRequest},
		{"bad json", `{`, http.StatusBadRequest},
		{"too long", `{"files":[{"content":"` + strings.Repeat("x", mystbinMaxChars+1) + `"}]}`, http.StatusRequestEntityTooLarge},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			resp, _ := do(t, http.MethodPost, ts.URL+"/api/paste", "application/json", []byte(tc.body))
			assert.Equal(t, tc.code, resp.StatusCode)
		})
	}
}

func TestPasteEEDialect(t *testing.T) {
	_, ts := newTestServer(t, nil, WithToken("tok"))

	resp, _ := do(t, http.MethodPost, ts.URL+"/v1/pastes", "application/json", []byte(`{"sections":[{"content":"x"}]}`))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/v1/pastes",
		strings.NewReader(`{"description":"d","sections":[{"content":"one","filename":"a.go","syntax":"go"},{"contents":"two"}]}`))
	require.NoError(t, err)
	req.SetBasicAuth("tok", "")
	r, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	var created pasteeeCreateResp
	require.NoError(t, json.NewDecoder(r.Body).Decode(&created))
	r.Body.Close()
	require.Equal(t, http.StatusCreated, r.StatusCode)
	assert.Equal(t, ts.URL+"/p/"+created.ID, created.Link)

	req, err = http.NewRequest(http.MethodGet, ts.URL+"/v1/pastes/"+created.ID, nil)
	require.NoError(t, err)
	req.SetBasicAuth("tok", "")
	r, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	var got pasteeeGetResp
	require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	r.Body.Close()
	require.Len(t, got.Paste.Sections, 2)
	assert.Equal(t, "a.go", got.Paste.Sections[0].Name)
	assert.Equal(t, "go", got.Paste.Sections[0].Syntax)
	assert.Equal(t, "autodetect", got.Paste.Sections[1].Syntax)
	assert.Equal(t, "two", got.Paste.Sections[1].Content)
	assert.Equal(t, "d", got.Paste.Description)
}

func TestDialectsAreSeparate(t *testing.T) {
	_, ts := newTestServer(t, nil)
	_, body := do(t, http.MethodPost, ts.URL+"/documents", "text/plain", []byte("hello"))
	var doc documentResp
	require.NoError(t, json.Unmarshal(body, &doc))

	resp, _ := do(t, http.MethodGet, ts.URL+"/api/paste/"+doc.Key, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = do(t, http.MethodGet, ts.URL+"/v1/pastes/"+doc.Key, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRateLimited(t *testing.T) {
	l := lim.New(1, 1)
	t.Cleanup(l.Stop)
	_, ts := newTestServer(t, l)
	resp, _ := do(t, http.MethodPost, ts.URL+"/documents", "text/plain", []byte("a"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = do(t, http.MethodPost, ts.URL+"/documents", "text/plain", []byte("b"))
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, ts.URL+"/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := newTestServer(t, nil)
	do(t, http.MethodPost, ts.URL+"/documents", "text/plain", []byte("a"))
	resp, body := do(t, http.MethodGet, ts.URL+"/metrics", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "superpaste_emu_pastes_stored_total")
}
