// Package hastebin talks to toptal's hastebin, which requires an API token
// and accepts text only.
package hastebin

import (
	"net/http"

	"github.com/pkg/errors"

	"superpaste/pkg/domain"
	"superpaste/svc/backend/generic"
	"superpaste/svc/transport"
)

const (
	Name    = "toptal-hastebin"
	BaseURL = "https://hastebin.com"
	// MaxFiles is one file per paste.
	MaxFiles = 1
)

// Backend is the generic protocol with bearer auth and text coercion.
type Backend struct {
	*generic.Backend
}

var _ domain.Backend = (*Backend)(nil)

// New builds a backend for token, obtained from
// https://www.toptal.com/developers/hastebin/documentation.
func New(token string, opts ...transport.Option) *Backend {
	return &Backend{Backend: generic.NewWithProfile(generic.Profile{
		Name:     Name,
		BaseURL:  BaseURL,
		MaxFiles: MaxFiles,
		Layer: func(h http.Header) {
			h.Set("Content-Type", "text/plain; charset=UTF-8")
			if token != "" {
				h.Set("Authorization", "Bearer "+token)
			}
		},
		Prepare: requireText,
	}, opts...)}
}

func requireText(f domain.File) (domain.File, error) {
	t, err := f.AsText()
	if err != nil {
		return domain.File{}, errors.Wrap(err, "hastebin only supports text files")
	}
	return t, nil
}
