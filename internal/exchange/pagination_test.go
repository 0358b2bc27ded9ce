package exchange

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPagesDrainsUntilShortPage(t *testing.T) {
	t.Parallel()

	// Three server pages of 50, 50, 17 items.
	total := 117
	var fetches int
	fetch := func(_ context.Context, limit, page int) ([]int, error) {
		fetches++
		start := (page - 1) * limit
		if start >= total {
			return nil, nil
		}
		end := min(start+limit, total)
		out := make([]int, 0, end-start)
		for i := start; i < end; i++ {
			out = append(out, i)
		}
		return out, nil
	}

	items, err := NewPages(fetch, 50).Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, items, total)
	assert.Equal(t, 0, items[0])
	assert.Equal(t, total-1, items[total-1])
	assert.Equal(t, 3, fetches, "the short third page ends iteration")
}

func TestPagesLazyFetch(t *testing.T) {
	t.Parallel()

	var fetches int
	fetch := func(_ context.Context, limit, page int) ([]int, error) {
		fetches++
		out := make([]int, limit)
		return out, nil
	}

	p := NewPages(fetch, 2)
	assert.Equal(t, 0, fetches, "no fetch before the first Next")

	_, ok := p.Next(context.Background())
	require.True(t, ok)
	_, ok = p.Next(context.Background())
	require.True(t, ok)
	assert.Equal(t, 1, fetches, "second item served from the buffer")

	_, ok = p.Next(context.Background())
	require.True(t, ok)
	assert.Equal(t, 2, fetches)
}

func TestPagesStopsOnError(t *testing.T) {
	t.Parallel()

	boom := errors.New("page 2 failed")
	fetch := func(_ context.Context, limit, page int) ([]int, error) {
		if page == 2 {
			return nil, boom
		}
		return make([]int, limit), nil
	}

	p := NewPages(fetch, 3)
	items, err := p.Collect(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Len(t, items, 3, "items before the failure are delivered")
	assert.ErrorIs(t, p.Err(), boom)
}

func TestPagesContextCancellation(t *testing.T) {
	t.Parallel()

	fetch := func(_ context.Context, limit, page int) ([]int, error) {
		return make([]int, limit), nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := NewPages(fetch, 2)

	_, ok := p.Next(ctx)
	require.True(t, ok)

	cancel()
	// The buffered item still drains; the next fetch is refused.
	_, ok = p.Next(ctx)
	require.True(t, ok)
	_, ok = p.Next(ctx)
	assert.False(t, ok)
	assert.ErrorIs(t, p.Err(), context.Canceled)
}

func TestCursorPagesAdvancesByLastID(t *testing.T) {
	t.Parallel()

	type row struct{ ID string }
	pages := map[string][]row{
		"":   {{ID: "a"}, {ID: "b"}},
		"b":  {{ID: "c"}, {ID: "d"}},
		"d":  {{ID: "e"}},
	}
	var cursors []string
	fetch := func(_ context.Context, limit int, cursor string) ([]row, error) {
		cursors = append(cursors, cursor)
		return pages[cursor], nil
	}

	p := NewCursorPages(fetch, 2, func(r row) string { return r.ID })
	items, err := p.Collect(context.Background())
	require.NoError(t, err)

	ids := make([]string, len(items))
	for i, r := range items {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, ids)
	assert.Equal(t, []string{"", "b", "d"}, cursors)
}

func TestCursorPagesEmptyFirstPage(t *testing.T) {
	t.Parallel()

	fetch := func(_ context.Context, limit int, cursor string) ([]int, error) {
		return nil, nil
	}

	items, err := NewCursorPages(fetch, 10, func(int) string { return "" }).Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestCursorPagesStopsOnError(t *testing.T) {
	t.Parallel()

	fetch := func(_ context.Context, limit int, cursor string) ([]int, error) {
		if cursor != "" {
			return nil, fmt.Errorf("cursor %q failed", cursor)
		}
		out := make([]int, limit)
		return out, nil
	}

	p := NewCursorPages(fetch, 2, func(int) string { return "next" })
	items, err := p.Collect(context.Background())
	require.Error(t, err)
	assert.Len(t, items, 2)
}
