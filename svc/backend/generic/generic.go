// Package generic speaks the hastebin-compatible protocol:
// POST {base}/documents with a raw body, GET {base}/raw/{key}.
package generic

import (
	"context"
	"net/http"
	"net/url"
	"unicode/utf8"

	"github.com/pkg/errors"

	"superpaste/metrics"
	"superpaste/pkg/chunk"
	"superpaste/pkg/domain"
	"superpaste/svc/transport"
	"superpaste/svc/util"
)

const (
	HstShName = "hst.sh"
	HstShURL  = "https://hst.sh"
	SkyraName = "skyra.pw"
	SkyraURL  = "https://hastebin.skyra.pw"
)

// Profile describes how a service departs from the plain protocol.
type Profile struct {
	Name    string
	BaseURL string
	// MaxFiles is reported through the Backend interface. The protocol has
	// no batching, so every file is its own request regardless.
	MaxFiles int
	// Layer adds service headers on top of the base set.
	Layer func(h http.Header)
	// Prepare validates or converts each file before any request is sent.
	Prepare func(f domain.File) (domain.File, error)
}

// Backend is a hastebin-compatible service.
type Backend struct {
	profile Profile
	cfg     transport.Config
}

var _ domain.Backend = (*Backend)(nil)

func New(name, baseURL string, opts ...transport.Option) *Backend {
	return NewWithProfile(Profile{Name: name, BaseURL: baseURL}, opts...)
}

func NewWithProfile(p Profile, opts ...transport.Option) *Backend {
	return &Backend{profile: p, cfg: transport.NewConfig(p.BaseURL, opts...)}
}

func NewHstSh(opts ...transport.Option) *Backend {
	return New(HstShName, HstShURL, opts...)
}

func NewSkyra(opts ...transport.Option) *Backend {
	return New(SkyraName, SkyraURL, opts...)
}

func (b *Backend) Name() string    { return b.profile.Name }
func (b *Backend) BaseURL() string { return b.cfg.BaseURL }
func (b *Backend) MaxFiles() int   { return b.profile.MaxFiles }

func (b *Backend) Headers() http.Header {
	h := transport.BaseHeaders()
	if b.profile.Layer != nil {
		b.profile.Layer(h)
	}
	return h
}

// PasteURL is the human-facing link for key.
func (b *Backend) PasteURL(key string) string {
	return b.cfg.BaseURL + "/" + key
}

func (b *Backend) CreatePaste(ctx context.Context, files ...domain.Filer) ([]domain.Result, error) {
	if len(files) == 0 {
		return nil, errors.Wrap(domain.ErrInvalidArgument, "no files to paste")
	}
	prepared, err := domain.Files(files)
	if err != nil {
		return nil, err
	}
	if b.profile.Prepare != nil {
		for i, f := range prepared {
			p, err := b.profile.Prepare(f)
			if err != nil {
				metrics.ValidationFailures.WithLabelValues(b.profile.Name, domain.Code(err)).Inc()
				return nil, errors.Wrapf(err, "file %d", i)
			}
			prepared[i] = p
		}
	}
	groups, err := chunk.Of(prepared, 1)
	if err != nil {
		return nil, err
	}
	if limit := b.profile.MaxFiles; limit > 0 && len(prepared) > limit {
		util.Warn().
			Str("backend", b.profile.Name).
			Int("files", len(prepared)).
			Int("pastes", chunk.Count(len(prepared), limit)).
			Msg("file count exceeds per-paste cap, splitting into multiple pastes")
	}

	sess := b.cfg.Open()
	defer sess.Close()
	results := make([]domain.Result, 0, len(prepared))
	for group := range groups {
		r, err := b.post(ctx, sess, group[0])
		if err != nil {
			return nil, errors.Wrapf(err, "%s: paste %d of %d", b.profile.Name, len(results)+1, len(prepared))
		}
		results = append(results, r)
	}
	metrics.PastesCreated.WithLabelValues(b.profile.Name).Add(float64(len(results)))
	metrics.FilesUploaded.WithLabelValues(b.profile.Name).Add(float64(len(prepared)))
	return results, nil
}

type documentResp struct {
	Key string `json:"key"`
}

func (b *Backend) post(ctx context.Context, sess *transport.Session, f domain.File) (domain.Result, error) {
	h := b.Headers()
	if h.Get("Content-Type") == "" {
		if f.IsBinary() {
			h.Set("Content-Type", "application/octet-stream")
		} else {
			h.Set("Content-Type", "text/plain; charset=utf-8")
		}
	}
	data, err := sess.Do(ctx, transport.Request{
		Backend: b.profile.Name,
		Method:  http.MethodPost,
		URL:     b.cfg.BaseURL + "/documents",
		Header:  h,
		Body:    f.Bytes(),
	})
	if err != nil {
		return domain.Result{}, err
	}
	var resp documentResp
	if err := transport.DecodeJSON(data, &resp); err != nil {
		return domain.Result{}, err
	}
	if resp.Key == "" {
		return domain.Result{}, errors.Wrap(domain.ErrUpstreamRequestFailed, "response carried no key")
	}
	return domain.Result{Key: resp.Key, URL: b.PasteURL(resp.Key)}, nil
}

func (b *Backend) GetPaste(ctx context.Context, key string) ([]domain.File, error) {
	if key == "" {
		return nil, errors.Wrap(domain.ErrInvalidArgument, "empty paste key")
	}
	sess := b.cfg.Open()
	defer sess.Close()
	data, err := sess.Do(ctx, transport.Request{
		Backend: b.profile.Name,
		Method:  http.MethodGet,
		URL:     b.cfg.BaseURL + "/raw/" + url.PathEscape(key),
		Header:  b.Headers(),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "%s: get %s", b.profile.Name, key)
	}
	metrics.PastesRetrieved.WithLabelValues(b.profile.Name).Inc()
	if utf8.Valid(data) {
		return []domain.File{domain.NewTextFile(string(data), "")}, nil
	}
	return []domain.File{domain.NewBinaryFile(data, "")}, nil
}
