package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/pkg/errors"

	"superpaste/metrics"
	"superpaste/pkg/domain"
	"superpaste/svc/util"
)

const (
	ProjectURL = "https://github.com/nexy7574/superpaste"

	// MaxResponseSize bounds how much of a response body is read.
	MaxResponseSize = 16 << 20
)

// responseLimit is MaxResponseSize, lowered by tests.
var responseLimit int64 = MaxResponseSize

// UserAgent is computed once from the module version.
var UserAgent = buildUserAgent()

func buildUserAgent() string {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			version = strings.TrimPrefix(v, "v")
		}
	}
	return fmt.Sprintf("SuperPaste/%s (+%s)", version, ProjectURL)
}

// BaseHeaders is the header set every backend starts from.
func BaseHeaders() http.Header {
	h := make(http.Header)
	h.Set("User-Agent", UserAgent)
	h.Set("Accept", "application/json")
	return h
}

// Session scopes an HTTP client to one backend call. A caller-supplied
// client is borrowed and left open; otherwise a fresh client is created and
// released by Close.
type Session struct {
	client *http.Client
	owned  bool
}

func Open(shared *http.Client, timeout time.Duration) *Session {
	if shared != nil {
		return &Session{client: shared}
	}
	c := cleanhttp.DefaultClient()
	c.Timeout = timeout
	return &Session{client: c, owned: true}
}

func (s *Session) Owned() bool { return s.owned }

func (s *Session) Close() {
	if s.owned {
		s.client.CloseIdleConnections()
	}
}

// Request is one call to a paste service.
type Request struct {
	Backend string
	Method  string
	URL     string
	Header  http.Header
	Body    []byte
}

// Do sends r and returns the response body of a 2xx response. Any other
// status becomes a *domain.UpstreamError.
func (s *Session) Do(ctx context.Context, r Request) ([]byte, error) {
	requestID := util.GetRequestID(ctx)
	logURL := util.RedactSecret(r.URL)
	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, body)
	if err != nil {
		return nil, errors.Wrap(err, "creating request")
	}
	for k, v := range r.Header {
		req.Header[k] = append([]string(nil), v...)
	}
	req.Header.Set(util.RequestIDHeader, requestID)

	start := time.Now()
	resp, err := s.client.Do(req)
	dur := time.Since(start)
	metrics.RequestDuration.WithLabelValues(r.Backend, r.Method).Observe(dur.Seconds())
	if err != nil {
		metrics.Requests.WithLabelValues(r.Backend, r.Method, "error").Inc()
		util.Debug().
			Err(err).
			Str("backend", r.Backend).
			Str("method", r.Method).
			Str("url", logURL).
			Str("request_id", requestID).
			Msg("upstream request failed")
		return nil, errors.Wrapf(err, "%s %s", r.Method, logURL)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, responseLimit+1))
	metrics.Requests.WithLabelValues(r.Backend, r.Method, strconv.Itoa(resp.StatusCode)).Inc()
	util.Debug().
		Str("backend", r.Backend).
		Str("method", r.Method).
		Str("url", logURL).
		Int("status", resp.StatusCode).
		Int("size", len(data)).
		Dur("duration", dur).
		Str("request_id", requestID).
		Msg("upstream request")
	if err != nil {
		return nil, errors.Wrap(err, "reading response")
	}
	if int64(len(data)) > responseLimit {
		return nil, errors.Wrapf(domain.ErrUpstreamRequestFailed, "%s %s: response exceeds %d bytes", r.Method, logURL, responseLimit)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, domain.NewUpstreamError(r.Method, logURL, resp.StatusCode, data)
	}
	return data, nil
}

// DecodeJSON parses a successful response body. A body that does not parse
// is reported as an upstream failure.
func DecodeJSON(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrapf(domain.ErrUpstreamRequestFailed, "decode response: %v", err)
	}
	return nil
}
