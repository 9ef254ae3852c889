package batch

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeItems(n int) []string {
	items := make([]string, n)
	for i := range items {
		items[i] = fmt.Sprintf("id-%d", i)
	}
	return items
}

func TestSplit_ReassemblesInput(t *testing.T) {
	for _, n := range []int{0, 1, 2, 3, 7, 50, 51, 100, 149} {
		for _, size := range []int{1, 2, 3, 10, 50, 200} {
			t.Run(fmt.Sprintf("n=%d/size=%d", n, size), func(t *testing.T) {
				items := makeItems(n)

				seq, err := Split(items, size)
				require.NoError(t, err)

				var joined []string
				chunks := 0
				for chunk := range seq {
					chunks++
					assert.NotEmpty(t, chunk)
					assert.LessOrEqual(t, len(chunk), size)
					joined = append(joined, chunk...)
				}

				assert.Equal(t, Count(n, size), chunks)
				if n == 0 {
					assert.Empty(t, joined)
				} else {
					assert.Equal(t, items, joined)
				}
			})
		}
	}
}

func TestSplit_OnlyLastChunkShort(t *testing.T) {
	chunks, err := Chunks(makeItems(11), 4)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	assert.Len(t, chunks[0], 4)
	assert.Len(t, chunks[1], 4)
	assert.Len(t, chunks[2], 3)
}

func TestSplit_InvalidSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		_, err := Split([]int{1, 2, 3}, size)
		assert.ErrorIs(t, err, ErrInvalidSize)

		_, err = Chunks([]int{1, 2, 3}, size)
		assert.ErrorIs(t, err, ErrInvalidSize)
	}
}

func TestSplit_EarlyStop(t *testing.T) {
	seq, err := Split(makeItems(10), 3)
	require.NoError(t, err)

	seen := 0
	for range seq {
		seen++
		if seen == 2 {
			break
		}
	}
	assert.Equal(t, 2, seen)
}

func TestSplit_ChunkAppendDoesNotOverwrite(t *testing.T) {
	items := []int{1, 2, 3, 4}
	chunks, err := Chunks(items, 2)
	require.NoError(t, err)

	_ = append(chunks[0], 99)
	assert.Equal(t, []int{1, 2, 3, 4}, items)
}

func TestCount(t *testing.T) {
	assert.Equal(t, 0, Count(0, 5))
	assert.Equal(t, 1, Count(5, 5))
	assert.Equal(t, 2, Count(6, 5))
	assert.Equal(t, 0, Count(6, 0))
}
