package svc

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"superpaste/metrics"
	"superpaste/pkg/domain"
	"superpaste/svc/async"
	"superpaste/svc/util"
)

// Paste is the entry point callers use to talk to one configured backend.
type Paste struct {
	backend  domain.Backend
	pool     *async.Pool
	shutdown atomic.Bool
	opWg     sync.WaitGroup
}

// NewPaste wraps b. pool may be nil when CreateAsync is not used.
func NewPaste(b domain.Backend, pool *async.Pool) *Paste {
	if b == nil {
		panic("paste service: nil backend")
	}
	return &Paste{backend: b, pool: pool}
}

func (p *Paste) Backend() domain.Backend { return p.backend }

// Shutdown rejects new calls and waits for running ones.
func (p *Paste) Shutdown() {
	p.shutdown.Store(true)
	p.opWg.Wait()
	util.Debug().Str("backend", p.backend.Name()).Msg("paste service shutdown complete")
}

func (p *Paste) begin(ctx context.Context) (context.Context, error) {
	if p.shutdown.Load() {
		return ctx, errors.New("service shutting down")
	}
	p.opWg.Add(1)
	return util.SetRequestID(ctx, util.GetRequestID(ctx)), nil
}

// Create uploads files and returns one Result per remote paste.
func (p *Paste) Create(ctx context.Context, files ...domain.Filer) ([]domain.Result, error) {
	ctx, err := p.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer p.opWg.Done()

	start := time.Now()
	name := p.backend.Name()
	results, err := p.backend.CreatePaste(ctx, files...)
	if err != nil {
		p.fail(ctx, "create", err)
		return nil, err
	}
	ev := util.Info().
		Str("backend", name).
		Int("files", len(files)).
		Int("pastes", len(results)).
		Dur("duration", time.Since(start)).
		Str("request_id", util.GetRequestID(ctx))
	if len(results) > 0 {
		ev = ev.Str("key", results[0].Key)
	}
	ev.Msg("paste created")
	return results, nil
}

// CreateOne uploads a single file and returns its only Result.
func (p *Paste) CreateOne(ctx context.Context, f domain.Filer) (domain.Result, error) {
	if domain.IsNil(f) {
		return domain.Result{}, errors.Wrap(domain.ErrInvalidArgument, "nil file")
	}
	results, err := p.Create(ctx, f)
	if err != nil {
		return domain.Result{}, err
	}
	if len(results) != 1 {
		return domain.Result{}, errors.Wrapf(domain.ErrUpstreamRequestFailed, "expected 1 paste, got %d", len(results))
	}
	return results[0], nil
}

// CreateAsync runs Create on the worker pool.
func (p *Paste) CreateAsync(ctx context.Context, files ...domain.Filer) *async.Future[[]domain.Result] {
	if p.pool == nil {
		panic("paste service: CreateAsync without a worker pool")
	}
	return async.Submit(ctx, p.pool, func(ctx context.Context) ([]domain.Result, error) {
		metrics.AsyncInFlight.Inc()
		defer metrics.AsyncInFlight.Dec()
		return p.Create(ctx, files...)
	})
}

// Get fetches every file of the paste stored under key.
func (p *Paste) Get(ctx context.Context, key string) ([]domain.File, error) {
	ctx, err := p.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer p.opWg.Done()

	files, err := p.backend.GetPaste(ctx, key)
	if err != nil {
		p.fail(ctx, "get", err)
		return nil, err
	}
	util.Debug().
		Str("backend", p.backend.Name()).
		Str("key", key).
		Int("files", len(files)).
		Str("request_id", util.GetRequestID(ctx)).
		Msg("paste retrieved")
	return files, nil
}

// GetOne returns the first file of the paste stored under key.
func (p *Paste) GetOne(ctx context.Context, key string) (domain.File, error) {
	files, err := p.Get(ctx, key)
	if err != nil {
		return domain.File{}, err
	}
	if len(files) == 0 {
		return domain.File{}, errors.Wrapf(domain.ErrNotFound, "paste %s has no files", key)
	}
	return files[0], nil
}

func (p *Paste) fail(ctx context.Context, op string, err error) {
	code := domain.Code(err)
	metrics.OperationErrors.WithLabelValues(p.backend.Name(), op, code).Inc()
	util.Warn().
		Err(err).
		Str("backend", p.backend.Name()).
		Str("op", op).
		Str("code", code).
		Str("request_id", util.GetRequestID(ctx)).
		Msg("paste operation failed")
}
