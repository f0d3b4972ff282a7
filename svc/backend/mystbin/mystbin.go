// Package mystbin talks to mystb.in, which stores up to five files per
// paste and supports expiry and password protection.
package mystbin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"superpaste/metrics"
	"superpaste/pkg/chunk"
	"superpaste/pkg/domain"
	"superpaste/svc/transport"
	"superpaste/svc/util"
)

const (
	Name     = "mystb.in"
	BaseURL  = "https://mystb.in"
	MaxFiles = 5
)

// CreateOptions apply to every paste of one create call. Passwords only
// gate access; mystb.in does not encrypt content.
type CreateOptions struct {
	// Expires must be in the future when set.
	Expires time.Time
	// TTL sets Expires relative to the time of the call when Expires is zero.
	TTL      time.Duration
	Password string
}

type Backend struct {
	cfg      transport.Config
	defaults CreateOptions
	now      func() time.Time
}

var _ domain.Backend = (*Backend)(nil)

func New(opts ...transport.Option) *Backend {
	return &Backend{cfg: transport.NewConfig(BaseURL, opts...), now: time.Now}
}

// WithDefaults returns a copy of b that applies o to CreatePaste.
func (b *Backend) WithDefaults(o CreateOptions) *Backend {
	c := *b
	c.defaults = o
	return &c
}

// WithExpiry sets the default expiry time of pastes created through b.
func (b *Backend) WithExpiry(t time.Time) *Backend {
	o := b.defaults
	o.Expires = t
	return b.WithDefaults(o)
}

// WithPassword sets the default password for creating and reading pastes.
func (b *Backend) WithPassword(pw string) *Backend {
	o := b.defaults
	o.Password = pw
	return b.WithDefaults(o)
}

func (b *Backend) Name() string    { return Name }
func (b *Backend) BaseURL() string { return b.cfg.BaseURL }
func (b *Backend) MaxFiles() int   { return MaxFiles }

func (b *Backend) Headers() http.Header {
	h := transport.BaseHeaders()
	h.Set("Content-Type", "application/json")
	return h
}

func (b *Backend) PasteURL(key string) string {
	return b.cfg.BaseURL + "/" + key
}

func (b *Backend) CreatePaste(ctx context.Context, files ...domain.Filer) ([]domain.Result, error) {
	return b.CreatePasteWithOptions(ctx, b.defaults, files...)
}

func (b *Backend) CreatePasteWithOptions(ctx context.Context, opts CreateOptions, files ...domain.Filer) ([]domain.Result, error) {
	if opts.TTL < 0 {
		err := errors.Wrapf(domain.ErrInvalidArgument, "negative ttl %s", opts.TTL)
		metrics.ValidationFailures.WithLabelValues(Name, domain.Code(err)).Inc()
		return nil, err
	}
	if opts.Expires.IsZero() && opts.TTL > 0 {
		opts.Expires = b.now().Add(opts.TTL)
	}
	natives, err := b.validate(opts, files)
	if err != nil {
		metrics.ValidationFailures.WithLabelValues(Name, domain.Code(err)).Inc()
		return nil, err
	}
	groups, err := chunk.Of(natives, MaxFiles)
	if err != nil {
		return nil, err
	}
	pastes := chunk.Count(len(natives), MaxFiles)
	if pastes > 1 {
		util.Warn().
			Str("backend", Name).
			Int("files", len(natives)).
			Int("pastes", pastes).
			Msg("mystb.in only supports 5 files per paste, splitting into multiple pastes")
	}

	sess := b.cfg.Open()
	defer sess.Close()
	results := make([]domain.Result, 0, pastes)
	for group := range groups {
		util.Debug().Str("backend", Name).Int("files", len(group)).Msg("posting files")
		r, err := b.post(ctx, sess, opts, group)
		if err != nil {
			return nil, errors.Wrapf(err, "%s: paste %d of %d", Name, len(results)+1, pastes)
		}
		results = append(results, r)
	}
	metrics.PastesCreated.WithLabelValues(Name).Add(float64(len(results)))
	metrics.FilesUploaded.WithLabelValues(Name).Add(float64(len(natives)))
	return results, nil
}

func (b *Backend) validate(opts CreateOptions, files []domain.Filer) ([]File, error) {
	if len(files) == 0 {
		return nil, errors.Wrap(domain.ErrInvalidArgument, "no files to paste")
	}
	if !opts.Expires.IsZero() && !opts.Expires.After(b.now()) {
		return nil, errors.Wrapf(domain.ErrInvalidArgument, "expires must be in the future, got %s", opts.Expires.Format(time.RFC3339))
	}
	natives := make([]File, len(files))
	for i, f := range files {
		n, err := native(f)
		if err != nil {
			return nil, errors.Wrapf(err, "file %d", i)
		}
		natives[i] = n
	}
	return natives, nil
}

type createReq struct {
	Files    []FilePayload `json:"files"`
	Expires  string        `json:"expires,omitempty"`
	Password string        `json:"password,omitempty"`
}

type createResp struct {
	ID        string  `json:"id"`
	CreatedAt string  `json:"created_at"`
	Expires   *string `json:"expires"`
	Safety    string  `json:"safety"`
	Views     int     `json:"views"`
}

func (b *Backend) post(ctx context.Context, sess *transport.Session, opts CreateOptions, group []File) (domain.Result, error) {
	req := createReq{Files: make([]FilePayload, len(group)), Password: opts.Password}
	for i, f := range group {
		req.Files[i] = f.Payload()
	}
	if !opts.Expires.IsZero() {
		req.Expires = opts.Expires.UTC().Format(time.RFC3339Nano)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return domain.Result{}, errors.Wrap(err, "marshal paste")
	}
	data, err := sess.Do(ctx, transport.Request{
		Backend: Name,
		Method:  http.MethodPost,
		URL:     b.cfg.BaseURL + "/api/paste",
		Header:  b.Headers(),
		Body:    body,
	})
	if err != nil {
		return domain.Result{}, err
	}
	var resp createResp
	if err := transport.DecodeJSON(data, &resp); err != nil {
		return domain.Result{}, err
	}
	if resp.ID == "" {
		return domain.Result{}, errors.Wrap(domain.ErrUpstreamRequestFailed, "response carried no id")
	}
	r := domain.Result{
		Key:    resp.ID,
		URL:    b.PasteURL(resp.ID),
		Safety: resp.Safety,
		Views:  resp.Views,
	}
	if resp.CreatedAt != "" {
		if r.CreatedAt, err = parseTime(resp.CreatedAt); err != nil {
			return domain.Result{}, err
		}
	}
	if resp.Expires != nil && *resp.Expires != "" {
		exp, err := parseTime(*resp.Expires)
		if err != nil {
			return domain.Result{}, err
		}
		r.ExpiresAt = &exp
	}
	return r, nil
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999"}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Wrapf(domain.ErrUpstreamRequestFailed, "unparseable timestamp %q", s)
}

func (b *Backend) GetPaste(ctx context.Context, key string) ([]domain.File, error) {
	files, err := b.GetFiles(ctx, key, b.defaults.Password)
	if err != nil {
		return nil, err
	}
	out := make([]domain.File, len(files))
	for i, f := range files {
		out[i] = f.File
	}
	return out, nil
}

type pasteResp struct {
	Files []struct {
		Content          string `json:"content"`
		Filename         string `json:"filename"`
		ParentID         string `json:"parent_id"`
		LOC              int    `json:"loc"`
		CharCount        int    `json:"charcount"`
		Annotation       string `json:"annotation"`
		WarningPositions []int  `json:"warning_positions"`
	} `json:"files"`
}

// GetFiles fetches a paste with its per-file metadata. password may be empty.
func (b *Backend) GetFiles(ctx context.Context, key, password string) ([]File, error) {
	if key == "" {
		return nil, errors.Wrap(domain.ErrInvalidArgument, "empty paste key")
	}
	u := b.cfg.BaseURL + "/api/paste/" + url.PathEscape(key)
	if password != "" {
		u += "?" + url.Values{"password": {password}}.Encode()
	}
	sess := b.cfg.Open()
	defer sess.Close()
	data, err := sess.Do(ctx, transport.Request{
		Backend: Name,
		Method:  http.MethodGet,
		URL:     u,
		Header:  b.Headers(),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "%s: get %s", Name, key)
	}
	var resp pasteResp
	if err := transport.DecodeJSON(data, &resp); err != nil {
		return nil, err
	}
	metrics.PastesRetrieved.WithLabelValues(Name).Inc()
	files := make([]File, len(resp.Files))
	for i, f := range resp.Files {
		files[i] = File{
			File:             domain.NewTextFile(f.Content, f.Filename),
			ParentID:         f.ParentID,
			LOC:              f.LOC,
			CharCount:        f.CharCount,
			Annotation:       f.Annotation,
			WarningPositions: f.WarningPositions,
		}
	}
	return files, nil
}
