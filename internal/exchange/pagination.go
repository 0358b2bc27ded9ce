// pagination.go converts page- and cursor-based endpoints into lazy
// sequences. Fetching is demand-driven: a page is requested only when the
// previous one is exhausted, and iteration halts on the first short or empty
// page, or when the caller's context is done.
package exchange

import "context"

// PageFetcher returns one page of results for (limit, page). Page numbers
// start at 1.
type PageFetcher[T any] func(ctx context.Context, limit, page int) ([]T, error)

// Pages lazily iterates a page-numbered endpoint. Not safe for concurrent
// use; each consumer should create its own.
type Pages[T any] struct {
	fetch PageFetcher[T]
	limit int
	page  int
	buf   []T
	pos   int
	done  bool
	err   error
}

// NewPages creates a pager that requests limit items per fetch.
func NewPages[T any](fetch PageFetcher[T], limit int) *Pages[T] {
	if limit <= 0 {
		limit = 50
	}
	return &Pages[T]{fetch: fetch, limit: limit}
}

// Next returns the next item. ok is false when the sequence is exhausted or
// an error occurred; check Err afterwards.
func (p *Pages[T]) Next(ctx context.Context) (item T, ok bool) {
	var zero T
	for {
		if p.err != nil {
			return zero, false
		}
		if p.pos < len(p.buf) {
			item = p.buf[p.pos]
			p.pos++
			return item, true
		}
		if p.done {
			return zero, false
		}
		if err := ctx.Err(); err != nil {
			p.err = err
			return zero, false
		}

		p.page++
		batch, err := p.fetch(ctx, p.limit, p.page)
		if err != nil {
			p.err = err
			return zero, false
		}
		if len(batch) < p.limit {
			p.done = true // short page ends the sequence
		}
		if len(batch) == 0 {
			return zero, false
		}
		p.buf, p.pos = batch, 0
	}
}

// Err returns the error that stopped iteration, if any.
func (p *Pages[T]) Err() error { return p.err }

// Collect drains the remaining sequence into a slice.
func (p *Pages[T]) Collect(ctx context.Context) ([]T, error) {
	var out []T
	for {
		item, ok := p.Next(ctx)
		if !ok {
			return out, p.Err()
		}
		out = append(out, item)
	}
}

// CursorFetcher returns one page after the given cursor. An empty cursor
// requests the first page.
type CursorFetcher[T any] func(ctx context.Context, limit int, cursor string) ([]T, error)

// CursorPages lazily iterates a cursor-based endpoint, using the id of the
// last item of each page as the next cursor (exclusive).
type CursorPages[T any] struct {
	fetch  CursorFetcher[T]
	idOf   func(T) string
	limit  int
	cursor string
	buf    []T
	pos    int
	done   bool
	err    error
}

// NewCursorPages creates a cursor pager. idOf extracts an item's cursor id.
func NewCursorPages[T any](fetch CursorFetcher[T], limit int, idOf func(T) string) *CursorPages[T] {
	if limit <= 0 {
		limit = 50
	}
	return &CursorPages[T]{fetch: fetch, idOf: idOf, limit: limit}
}

// Next returns the next item; ok is false at the end of the sequence.
func (p *CursorPages[T]) Next(ctx context.Context) (item T, ok bool) {
	var zero T
	for {
		if p.err != nil {
			return zero, false
		}
		if p.pos < len(p.buf) {
			item = p.buf[p.pos]
			p.pos++
			return item, true
		}
		if p.done {
			return zero, false
		}
		if err := ctx.Err(); err != nil {
			p.err = err
			return zero, false
		}

		batch, err := p.fetch(ctx, p.limit, p.cursor)
		if err != nil {
			p.err = err
			return zero, false
		}
		if len(batch) < p.limit {
			p.done = true
		}
		if len(batch) == 0 {
			return zero, false
		}
		p.cursor = p.idOf(batch[len(batch)-1])
		p.buf, p.pos = batch, 0
	}
}

// Err returns the error that stopped iteration, if any.
func (p *CursorPages[T]) Err() error { return p.err }

// Collect drains the remaining sequence into a slice.
func (p *CursorPages[T]) Collect(ctx context.Context) ([]T, error) {
	var out []T
	for {
		item, ok := p.Next(ctx)
		if !ok {
			return out, p.Err()
		}
		out = append(out, item)
	}
}
