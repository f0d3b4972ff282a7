package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"superpaste/pkg/domain"
	"superpaste/svc/util"
)

func TestUserAgent(t *testing.T) {
	assert.Regexp(t, regexp.MustCompile(`^SuperPaste/\S+ \(\+https://github\.com/nexy7574/superpaste\)$`), UserAgent)
	h := BaseHeaders()
	assert.Equal(t, UserAgent, h.Get("User-Agent"))
	assert.Equal(t, "application/json", h.Get("Accept"))
}

func TestNewConfig(t *testing.T) {
	shared := &http.Client{}
	c := NewConfig("https://hst.sh/", WithBaseURL("http://localhost:1234/"), WithHTTPClient(shared), WithTimeout(time.Second))
	assert.Equal(t, "http://localhost:1234", c.BaseURL)
	assert.Same(t, shared, c.HTTPClient)
	assert.Equal(t, time.Second, c.Timeout)

	d := NewConfig("https://hst.sh/", WithBaseURL(""))
	assert.Equal(t, "https://hst.sh", d.BaseURL)
	assert.Equal(t, DefaultTimeout, d.Timeout)
}

func TestSessionOwnership(t *testing.T) {
	shared := &http.Client{}
	s := Open(shared, time.Second)
	assert.False(t, s.Owned())
	s.Close()

	own := Open(nil, time.Second)
	assert.True(t, own.Owned())
	assert.NotSame(t, http.DefaultClient, own.client)
	assert.Equal(t, time.Second, own.client.Timeout)
	own.Close()
}

func TestDo(t *testing.T) {
	var gotUA, gotID, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotID = r.Header.Get(util.RequestIDHeader)
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		switch r.URL.Path {
		case "/ok":
			w.Write([]byte(`{"key":"abc"}`))
		case "/missing":
			http.Error(w, "no such paste", http.StatusNotFound)
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	s := Open(srv.Client(), time.Second)
	defer s.Close()
	ctx := util.SetRequestID(context.Background(), "req-1")

	data, err := s.Do(ctx, Request{Backend: "test", Method: http.MethodPost, URL: srv.URL + "/ok", Header: BaseHeaders(), Body: []byte("hello")})
	require.NoError(t, err)
	assert.Equal(t, `{"key":"abc"}`, string(data))
	assert.Equal(t, UserAgent, gotUA)
	assert.Equal(t, "req-1", gotID)
	assert.Equal(t, "hello", gotBody)

	var out struct{ Key string }
	require.NoError(t, DecodeJSON(data, &out))
	assert.Equal(t, "abc", out.Key)
	assert.True(t, errors.Is(DecodeJSON([]byte("<html>"), &out), domain.ErrUpstreamRequestFailed))

	_, err = s.Do(ctx, Request{Backend: "test", Method: http.MethodGet, URL: srv.URL + "/missing"})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.True(t, errors.Is(err, domain.ErrUpstreamRequestFailed))

	_, err = s.Do(ctx, Request{Backend: "test", Method: http.MethodGet, URL: srv.URL + "/broken?password=x"})
	var ue *domain.UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, http.StatusInternalServerError, ue.Status)
	assert.Contains(t, ue.Body, "boom")
	assert.NotContains(t, ue.URL, "password=x")
}

func TestDoRejectsOversizedResponse(t *testing.T) {
	old := responseLimit
	responseLimit = 64
	t.Cleanup(func() { responseLimit = old })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := 64
		if r.URL.Path == "/big" {
			n = 65
		}
		w.Write(make([]byte, n))
	}))
	defer srv.Close()

	sess := Open(nil, time.Second)
	defer sess.Close()

	data, err := sess.Do(context.Background(), Request{Backend: "test", Method: http.MethodGet, URL: srv.URL + "/fits"})
	require.NoError(t, err)
	assert.Len(t, data, 64)

	_, err = sess.Do(context.Background(), Request{Backend: "test", Method: http.MethodGet, URL: srv.URL + "/big"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUpstreamRequestFailed))
	assert.Contains(t, err.Error(), "exceeds 64 bytes")
}
