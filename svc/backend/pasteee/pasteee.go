// Package pasteee talks to paste.ee. Pastes hold up to five sections, each
// with its own syntax highlighting hint.
package pasteee

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/pkg/errors"

	"superpaste/metrics"
	"superpaste/pkg/chunk"
	"superpaste/pkg/domain"
	"superpaste/svc/transport"
	"superpaste/svc/util"
)

const (
	Name     = "paste.ee"
	BaseURL  = "https://api.paste.ee"
	MaxFiles = 5
)

// CreateOptions apply to every paste of one create call.
type CreateOptions struct {
	Description string
	// Encrypted marks content the caller already encrypted. It is passed
	// through untouched.
	Encrypted bool
}

type Backend struct {
	cfg      transport.Config
	token    string
	defaults CreateOptions
}

var _ domain.Backend = (*Backend)(nil)

func New(token string, opts ...transport.Option) *Backend {
	return &Backend{cfg: transport.NewConfig(BaseURL, opts...), token: token}
}

// WithDefaults returns a copy of b that applies o to CreatePaste.
func (b *Backend) WithDefaults(o CreateOptions) *Backend {
	c := *b
	c.defaults = o
	return &c
}

func (b *Backend) Name() string    { return Name }
func (b *Backend) BaseURL() string { return b.cfg.BaseURL }
func (b *Backend) MaxFiles() int   { return MaxFiles }

// Headers authenticates with the token as basic-auth user and an empty
// password.
func (b *Backend) Headers() http.Header {
	h := transport.BaseHeaders()
	h.Set("Content-Type", "application/json")
	if b.token != "" {
		h.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(b.token+":")))
	}
	return h
}

func (b *Backend) CreatePaste(ctx context.Context, files ...domain.Filer) ([]domain.Result, error) {
	return b.CreatePasteWithOptions(ctx, b.defaults, files...)
}

func (b *Backend) CreatePasteWithOptions(ctx context.Context, opts CreateOptions, files ...domain.Filer) ([]domain.Result, error) {
	if len(files) == 0 {
		return nil, errors.Wrap(domain.ErrInvalidArgument, "no files to paste")
	}
	sections := make([]Section, len(files))
	for i, f := range files {
		s, err := native(f)
		if err != nil {
			metrics.ValidationFailures.WithLabelValues(Name, domain.Code(err)).Inc()
			return nil, errors.Wrapf(err, "paste.ee only supports text files: file %d", i)
		}
		sections[i] = s
	}
	groups, err := chunk.Of(sections, MaxFiles)
	if err != nil {
		return nil, err
	}
	pastes := chunk.Count(len(sections), MaxFiles)
	if pastes > 1 {
		util.Warn().
			Str("backend", Name).
			Int("files", len(sections)).
			Int("pastes", pastes).
			Msg("paste.ee only supports 5 sections per paste, splitting into multiple pastes")
	}
	util.Debug().Str("backend", Name).Str("token", util.RedactToken(b.token)).Msg("creating paste")

	sess := b.cfg.Open()
	defer sess.Close()
	results := make([]domain.Result, 0, pastes)
	for group := range groups {
		r, err := b.post(ctx, sess, opts, group)
		if err != nil {
			return nil, errors.Wrapf(err, "%s: paste %d of %d", Name, len(results)+1, pastes)
		}
		results = append(results, r)
	}
	metrics.PastesCreated.WithLabelValues(Name).Add(float64(len(results)))
	metrics.FilesUploaded.WithLabelValues(Name).Add(float64(len(sections)))
	return results, nil
}

type createReq struct {
	Sections    []SectionPayload `json:"sections"`
	Description string           `json:"description,omitempty"`
	Encrypted   bool             `json:"encrypted,omitempty"`
}

type createResp struct {
	ID   string `json:"id"`
	Link string `json:"link"`
}

func (b *Backend) post(ctx context.Context, sess *transport.Session, opts CreateOptions, group []Section) (domain.Result, error) {
	req := createReq{
		Sections:    make([]SectionPayload, len(group)),
		Description: opts.Description,
		Encrypted:   opts.Encrypted,
	}
	for i, s := range group {
		req.Sections[i] = s.Payload()
	}
	body, err := json.Marshal(req)
	if err != nil {
		return domain.Result{}, errors.Wrap(err, "marshal paste")
	}
	data, err := sess.Do(ctx, transport.Request{
		Backend: Name,
		Method:  http.MethodPost,
		URL:     b.cfg.BaseURL + "/v1/pastes",
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
	return domain.Result{Key: resp.ID, URL: resp.Link}, nil
}

func (b *Backend) GetPaste(ctx context.Context, key string) ([]domain.File, error) {
	sections, err := b.GetSections(ctx, key)
	if err != nil {
		return nil, err
	}
	out := make([]domain.File, len(sections))
	for i, s := range sections {
		out[i] = s.File
	}
	return out, nil
}

type pasteResp struct {
	Paste struct {
		Sections []struct {
			ID      int    `json:"id"`
			Name    string `json:"name"`
			Syntax  string `json:"syntax"`
			Content string `json:"content"`
		} `json:"sections"`
	} `json:"paste"`
}

// GetSections fetches a paste with section ids and syntax hints.
func (b *Backend) GetSections(ctx context.Context, key string) ([]Section, error) {
	if key == "" {
		return nil, errors.Wrap(domain.ErrInvalidArgument, "empty paste key")
	}
	sess := b.cfg.Open()
	defer sess.Close()
	data, err := sess.Do(ctx, transport.Request{
		Backend: Name,
		Method:  http.MethodGet,
		URL:     b.cfg.BaseURL + "/v1/pastes/" + url.PathEscape(key),
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
	sections := make([]Section, len(resp.Paste.Sections))
	for i, s := range resp.Paste.Sections {
		sections[i] = Section{
			File:   domain.NewTextFile(s.Content, s.Name),
			Syntax: s.Syntax,
			ID:     s.ID,
		}
	}
	return sections, nil
}

// DeletePaste removes a paste created with the same token.
func (b *Backend) DeletePaste(ctx context.Context, key string) error {
	if key == "" {
		return errors.Wrap(domain.ErrInvalidArgument, "empty paste key")
	}
	sess := b.cfg.Open()
	defer sess.Close()
	_, err := sess.Do(ctx, transport.Request{
		Backend: Name,
		Method:  http.MethodDelete,
		URL:     b.cfg.BaseURL + "/v1/pastes/" + url.PathEscape(key),
		Header:  b.Headers(),
	})
	if err != nil {
		return errors.Wrapf(err, "%s: delete %s", Name, key)
	}
	util.Debug().Str("backend", Name).Str("key", key).Msg("paste deleted")
	return nil
}
