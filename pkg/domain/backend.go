package domain

import (
	"context"
	"net/http"
	"reflect"

	"github.com/pkg/errors"
)

// Backend is one remote paste service.
//
// CreatePaste always returns one Result per remote paste, in input order.
// When a service caps files per paste the input is split into cap-sized
// groups and each group becomes its own paste. Groups are sent one after
// another; a failure stops the remaining groups and pastes already created
// are left in place.
//
// GetPaste returns the files of a paste in stored order. Single-file
// services return a one-element slice.
type Backend interface {
	Name() string
	BaseURL() string
	// MaxFiles is the per-paste file cap, 0 when unbounded.
	MaxFiles() int
	Headers() http.Header
	CreatePaste(ctx context.Context, files ...Filer) ([]Result, error)
	GetPaste(ctx context.Context, key string) ([]File, error)
}

// Files unwraps a list of Filers. A nil Filer is an invalid argument.
func Files(in []Filer) ([]File, error) {
	out := make([]File, len(in))
	for i, f := range in {
		if IsNil(f) {
			return nil, errors.Wrapf(ErrInvalidArgument, "file %d is nil", i)
		}
		out[i] = f.Base()
	}
	return out, nil
}

// IsNil reports whether f is nil or a nil pointer.
func IsNil(f Filer) bool {
	if f == nil {
		return true
	}
	v := reflect.ValueOf(f)
	return v.Kind() == reflect.Pointer && v.IsNil()
}
