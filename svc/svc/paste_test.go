package svc

import (
	"context"
	"net/http"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"superpaste/metrics"
	"superpaste/pkg/domain"
	"superpaste/svc/api/apitest"
	"superpaste/svc/async"
	"superpaste/svc/backend/generic"
	"superpaste/svc/backend/mystbin"
	"superpaste/svc/transport"
	"superpaste/svc/util"
)

type stubBackend struct {
	mu      sync.Mutex
	results []domain.Result
	files   []domain.File
	err     error
	ctxIDs  []string
}

func (s *stubBackend) Name() string         { return "stub" }
func (s *stubBackend) BaseURL() string      { return "https://stub.example" }
func (s *stubBackend) MaxFiles() int        { return 0 }
func (s *stubBackend) Headers() http.Header { return transport.BaseHeaders() }
func (s *stubBackend) CreatePaste(ctx context.Context, files ...domain.Filer) ([]domain.Result, error) {
	s.mu.Lock()
	s.ctxIDs = append(s.ctxIDs, util.GetRequestID(ctx))
	s.mu.Unlock()
	return s.results, s.err
}
func (s *stubBackend) GetPaste(ctx context.Context, key string) ([]domain.File, error) {
	return s.files, s.err
}

func newPool(t *testing.T) *async.Pool {
	t.Helper()
	p := async.NewPool(16)
	require.NoError(t, p.Start(2))
	t.Cleanup(p.Stop)
	return p
}

func TestCreateAndGetThroughEmulator(t *testing.T) {
	emu := apitest.New(t, 0)
	p := NewPaste(generic.New("emu", emu.URL), nil)

	r, err := p.CreateOne(context.Background(), domain.NewTextFile("hello", ""))
	require.NoError(t, err)
	assert.Equal(t, emu.URL+"/"+r.Key, r.URL)

	f, err := p.GetOne(context.Background(), r.Key)
	require.NoError(t, err)
	assert.Equal(t, "hello", f.Text())
}

func TestCreateAsyncMatchesCreate(t *testing.T) {
	emu := apitest.New(t, 0)
	p := NewPaste(mystbin.New(transport.WithBaseURL(emu.URL)), newPool(t))

	files := make([]domain.Filer, 6)
	for i := range files {
		files[i] = domain.NewTextFile("x", "")
	}
	results, err := p.CreateAsync(context.Background(), files...).Wait(context.Background())
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, 2, emu.Count("POST /api/paste"))
}

func TestCreateAsyncPropagatesErrors(t *testing.T) {
	p := NewPaste(&stubBackend{err: errors.Wrap(domain.ErrInvalidArgument, "nope")}, newPool(t))
	_, err := p.CreateAsync(context.Background(), domain.NewTextFile("x", "")).Wait(context.Background())
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
}

func TestCreateOneRejectsSplitResults(t *testing.T) {
	p := NewPaste(&stubBackend{results: []domain.Result{{Key: "a"}, {Key: "b"}}}, nil)
	_, err := p.CreateOne(context.Background(), domain.NewTextFile("x", ""))
	assert.True(t, errors.Is(err, domain.ErrUpstreamRequestFailed))

	_, err = p.CreateOne(context.Background(), nil)
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
}

func TestRequestIDIsKept(t *testing.T) {
	stub := &stubBackend{results: []domain.Result{{Key: "a"}}}
	p := NewPaste(stub, nil)
	ctx := util.SetRequestID(context.Background(), "req-1")
	_, err := p.Create(ctx, domain.NewTextFile("x", ""))
	require.NoError(t, err)
	_, err = p.Create(context.Background(), domain.NewTextFile("x", ""))
	require.NoError(t, err)

	require.Len(t, stub.ctxIDs, 2)
	assert.Equal(t, "req-1", stub.ctxIDs[0])
	assert.NotEmpty(t, stub.ctxIDs[1])
}

func TestGetOneEmptyPaste(t *testing.T) {
	p := NewPaste(&stubBackend{}, nil)
	_, err := p.GetOne(context.Background(), "k")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestShutdownRejectsCalls(t *testing.T) {
	p := NewPaste(&stubBackend{results: []domain.Result{{Key: "a"}}}, nil)
	p.Shutdown()
	_, err := p.Create(context.Background(), domain.NewTextFile("x", ""))
	assert.Error(t, err)
	_, err = p.Get(context.Background(), "a")
	assert.Error(t, err)
}

func TestNilBackendPanics(t *testing.T) {
	assert.Panics(t, func() { NewPaste(nil, nil) })
}

func TestConcurrentCreateAsync(t *testing.T) {
	emu := apitest.New(t, 0)
	p := NewPaste(generic.New("emu", emu.URL), newPool(t))
	defer p.Shutdown()

	ctx := context.Background()
	var wg sync.WaitGroup
	var failures int64
	keys := sync.Map{}

	const n = 50
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results, err := p.CreateAsync(ctx, domain.NewTextFile(fmt.Sprintf("content %d", idx), "")).Wait(ctx)
			if err != nil || len(results) != 1 {
				atomic.AddInt64(&failures, 1)
				return
			}
			keys.Store(results[0].Key, idx)
		}(i)
	}
	wg.Wait()

	assert.Zero(t, failures)
	count := 0
	keys.Range(func(k, v any) bool {
		count++
		f, err := p.GetOne(ctx, k.(string))
		if assert.NoError(t, err) {
			assert.Equal(t, fmt.Sprintf("content %d", v.(int)), f.Text())
		}
		return true
	})
	assert.Equal(t, n, count)
	assert.Equal(t, n, emu.Count("POST /documents"))
}

func TestShutdownWaitsForInFlight(t *testing.T) {
	release := make(chan struct{})
	b := &blockingBackend{release: release, entered: make(chan struct{})}
	p := NewPaste(b, nil)

	done := make(chan error, 1)
	go func() {
		_, err := p.Create(context.Background(), domain.NewTextFile("x", ""))
		done <- err
	}()
	<-b.entered

	stopped := make(chan struct{})
	go func() {
		p.Shutdown()
		close(stopped)
	}()
	select {
	case <-stopped:
		t.Fatal("shutdown returned while a call was in flight")
	default:
	}
	close(release)
	require.NoError(t, <-done)
	<-stopped
}

type blockingBackend struct {
	stubBackend
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingBackend) CreatePaste(ctx context.Context, files ...domain.Filer) ([]domain.Result, error) {
	b.once.Do(func() { close(b.entered) })
	<-b.release
	return []domain.Result{{Key: "k"}}, nil
}

func TestAsyncInFlightGauge(t *testing.T) {
	before := testutil.ToFloat64(metrics.AsyncInFlight)

	idle := async.NewPool(1)
	p := NewPaste(&stubBackend{}, idle)
	_, err := p.CreateAsync(context.Background(), domain.NewTextFile("x", "")).Wait(context.Background())
	assert.True(t, errors.Is(err, async.ErrNotStarted))
	assert.Equal(t, before, testutil.ToFloat64(metrics.AsyncInFlight))

	release := make(chan struct{})
	b := &blockingBackend{release: release, entered: make(chan struct{})}
	pool := async.NewPool(1)
	require.NoError(t, pool.Start(1))
	p = NewPaste(b, pool)
	running := p.CreateAsync(context.Background(), domain.NewTextFile("x", ""))
	<-b.entered
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.AsyncInFlight))

	queued := p.CreateAsync(context.Background(), domain.NewTextFile("y", ""))
	close(release)
	_, err = running.Wait(context.Background())
	require.NoError(t, err)
	queued.Wait(context.Background())
	pool.Stop()
	assert.Equal(t, before, testutil.ToFloat64(metrics.AsyncInFlight))
}
