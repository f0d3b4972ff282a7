// Package apitest starts the emulator on a loopback listener for tests.
package apitest

import (
	"net/http/httptest"
	"testing"
	"time"

	"superpaste/cfg"
	"superpaste/svc/api"
	"superpaste/svc/cache"
	"superpaste/svc/lim"
)

type Emulator struct {
	*api.Server
	URL string
}

// New starts an emulator that is closed when t finishes. rpm > 0 turns on
// rate limiting with a burst of rpm.
func New(t testing.TB, rpm int, opts ...api.Option) *Emulator {
	t.Helper()
	store, err := cache.NewLRU(1000)
	if err != nil {
		t.Fatalf("emulator store: %v", err)
	}
	var l *lim.Limiter
	if rpm > 0 {
		l = lim.New(rpm, rpm)
		t.Cleanup(l.Stop)
	}
	s := api.NewServer(cfg.EmuCfg{Port: "0", CacheSize: 1000, ContextTimeout: 5 * time.Second}, store, l, opts...)
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)
	return &Emulator{Server: s, URL: ts.URL}
}
