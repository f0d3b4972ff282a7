// Package chunk splits ordered input into fixed-size groups.
package chunk

import (
	"iter"

	"github.com/pkg/errors"

	"superpaste/pkg/domain"
)

// Of yields consecutive groups of size items. Every group has exactly size
// items except the last, which holds the remainder. Empty input yields no
// groups. Groups share backing storage with items.
func Of[T any](items []T, size int) (iter.Seq[[]T], error) {
	if size <= 0 {
		return nil, errors.Wrapf(domain.ErrInvalidArgument, "chunk size must be greater than 0, got %d", size)
	}
	return func(yield func([]T) bool) {
		for start := 0; start < len(items); start += size {
			end := min(start+size, len(items))
			if !yield(items[start:end:end]) {
				return
			}
		}
	}, nil
}

// Count is the number of groups Of would yield for n items.
func Count(n, size int) int {
	if size <= 0 || n <= 0 {
		return 0
	}
	return (n + size - 1) / size
}
