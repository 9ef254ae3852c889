package batch

import (
	"errors"
	"iter"
)

// DefaultSize is the chunk size used when none is configured
const DefaultSize = 50

// ErrInvalidSize is returned when the chunk size is not positive
var ErrInvalidSize = errors.New("batch size must be positive")

// Split returns a lazy sequence of contiguous chunks of items.
// Every chunk has at most size elements; only the last one may be shorter.
// Chunks are sub-slices of items and share its backing array.
func Split[T any](items []T, size int) (iter.Seq[[]T], error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}

	return func(yield func([]T) bool) {
		for start := 0; start < len(items); start += size {
			end := min(start+size, len(items))
			// Cap the chunk so appends by the consumer cannot clobber the next chunk
			if !yield(items[start:end:end]) {
				return
			}
		}
	}, nil
}

// Chunks is the eager form of Split
func Chunks[T any](items []T, size int) ([][]T, error) {
	seq, err := Split(items, size)
	if err != nil {
		return nil, err
	}

	chunks := make([][]T, 0, Count(len(items), size))
	for chunk := range seq {
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

// Count returns the number of chunks Split yields for n items, ceil(n/size)
func Count(n, size int) int {
	if size <= 0 || n <= 0 {
		return 0
	}
	return (n + size - 1) / size
}
