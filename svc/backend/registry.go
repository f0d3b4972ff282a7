// Package backend builds configured paste services by name.
package backend

import (
	"context"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"superpaste/cfg"
	"superpaste/pkg/creds"
	"superpaste/pkg/domain"
	"superpaste/svc/backend/generic"
	"superpaste/svc/backend/hastebin"
	"superpaste/svc/backend/mystbin"
	"superpaste/svc/backend/pasteee"
	"superpaste/svc/transport"
)

// GenericName selects a hastebin-compatible server at GENERIC_URL.
const GenericName = "generic"

const (
	hastebinTokenKey = "HASTEBIN_TOKEN"
	pasteeeTokenKey  = "PASTEEE_TOKEN"
)

type factory func(ctx context.Context, c *cfg.Cfg, secrets creds.Provider, opts []transport.Option) (domain.Backend, error)

var factories = map[string]factory{
	generic.HstShName: func(_ context.Context, c *cfg.Cfg, _ creds.Provider, opts []transport.Option) (domain.Backend, error) {
		return generic.NewHstSh(withBase(c.URLs.HstSh, opts)...), nil
	},
	generic.SkyraName: func(_ context.Context, c *cfg.Cfg, _ creds.Provider, opts []transport.Option) (domain.Backend, error) {
		return generic.NewSkyra(withBase(c.URLs.Skyra, opts)...), nil
	},
	GenericName: func(_ context.Context, c *cfg.Cfg, _ creds.Provider, opts []transport.Option) (domain.Backend, error) {
		if c.URLs.Generic == "" {
			return nil, errors.Wrap(domain.ErrInvalidArgument, "generic backend requires GENERIC_URL")
		}
		return generic.New(GenericName, c.URLs.Generic, opts...), nil
	},
	hastebin.Name: func(ctx context.Context, c *cfg.Cfg, secrets creds.Provider, opts []transport.Option) (domain.Backend, error) {
		token, err := resolveToken(ctx, c, secrets, hastebinTokenKey, c.HastebinToken)
		if err != nil {
			return nil, err
		}
		return hastebin.New(token, withBase(c.URLs.Hastebin, opts)...), nil
	},
	mystbin.Name: func(_ context.Context, c *cfg.Cfg, _ creds.Provider, opts []transport.Option) (domain.Backend, error) {
		return mystbin.New(withBase(c.URLs.Mystbin, opts)...).WithDefaults(mystbin.CreateOptions{
			TTL:      c.MystbinExpiry,
			Password: c.MystbinPassword.Value(),
		}), nil
	},
	pasteee.Name: func(ctx context.Context, c *cfg.Cfg, secrets creds.Provider, opts []transport.Option) (domain.Backend, error) {
		token, err := resolveToken(ctx, c, secrets, pasteeeTokenKey, c.PasteEEToken)
		if err != nil {
			return nil, err
		}
		return pasteee.New(token, withBase(c.URLs.PasteEE, opts)...), nil
	},
}

// Names lists every backend New accepts.
func Names() []string {
	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New builds the backend called name from c. secrets is consulted for API
// tokens when c.TokensFromSecrets is set. opts are applied after the
// configured timeout and base URL.
func New(ctx context.Context, name string, c *cfg.Cfg, secrets creds.Provider, opts ...transport.Option) (domain.Backend, error) {
	f, ok := factories[strings.ToLower(name)]
	if !ok {
		return nil, errors.Wrapf(domain.ErrInvalidArgument, "unknown backend %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	base := []transport.Option{transport.WithTimeout(c.HTTPTimeout)}
	return f(ctx, c, secrets, append(base, opts...))
}

func withBase(url string, opts []transport.Option) []transport.Option {
	if url == "" {
		return opts
	}
	// the base URL goes first so caller options still win
	return append([]transport.Option{transport.WithBaseURL(url)}, opts...)
}

func resolveToken(ctx context.Context, c *cfg.Cfg, secrets creds.Provider, key string, configured cfg.Secret) (string, error) {
	if c.TokensFromSecrets && secrets != nil {
		v, err := secrets.GetSecret(ctx, key)
		if err != nil {
			return "", errors.Wrapf(err, "resolving %s", key)
		}
		return v, nil
	}
	if configured.Value() == "" {
		return "", errors.Wrapf(domain.ErrInvalidArgument, "%s is required", key)
	}
	return configured.Value(), nil
}
