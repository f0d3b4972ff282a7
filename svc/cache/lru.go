// Package cache holds the emulator's pastes in a bounded LRU.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// StoredFile is one file of a stored paste.
type StoredFile struct {
	Content  []byte
	Filename string
	Syntax   string
	Binary   bool
}

// Entry is a stored paste. PasswordHash is a bcrypt hash or empty; Owner is
// the API token that created it, if any.
type Entry struct {
	Dialect      string
	Files        []StoredFile
	PasswordHash []byte
	Owner        string
	Description  string
	Encrypted    bool
	CreatedAt    time.Time
	ExpiresAt    time.Time
	Views        int
}

func (e *Entry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

type LRU struct {
	c   *lru.Cache[string, *Entry]
	mu  sync.Mutex
	now func() time.Time
}

func NewLRU(size int) (*LRU, error) {
	if size <= 0 {
		return nil, errors.New("cache size must be positive")
	}
	if size > 100000 {
		return nil, errors.New("cache size too large")
	}
	c, err := lru.New[string, *Entry](size)
	if err != nil {
		return nil, err
	}
	return &LRU{c: c, now: time.Now}, nil
}

// Get returns a copy of the entry stored under id and counts a view. Expired
// entries are dropped and reported missing.
func (l *LRU) Get(ctx context.Context, id string) (Entry, bool) {
	select {
	case <-ctx.Done():
		return Entry{}, false
	default:
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.c.Get(id)
	if !ok {
		return Entry{}, false
	}
	if e.expired(l.now()) {
		l.c.Remove(id)
		return Entry{}, false
	}
	e.Views++
	return *e, true
}

// Peek returns the live entry under id without counting a view.
func (l *LRU) Peek(id string) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.c.Peek(id)
	if !ok || e.expired(l.now()) {
		return Entry{}, false
	}
	return *e, true
}

func (l *LRU) Set(ctx context.Context, id string, e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = l.now()
	}
	l.c.Add(id, &e)
}

func (l *LRU) Exists(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.c.Contains(id)
}

func (l *LRU) Delete(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.c.Remove(id)
}

func (l *LRU) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.c.Len()
}
