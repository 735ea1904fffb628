package mcpservice

import "strconv"

// Page represents a single page of results with an optional cursor for
// fetching the next page.
//
// Items is never nil; NewPage normalizes nil input to an empty slice.
type Page[T any] struct {
	Items      []T
	NextCursor *string
}

// PageOption configures a Page constructed via NewPage.
type PageOption[T any] func(*Page[T])

// WithNextCursor sets the next cursor on the Page to indicate that more
// results are available.
func WithNextCursor[T any](cursor string) PageOption[T] {
	return func(p *Page[T]) {
		p.NextCursor = &cursor
	}
}

// NewPage constructs a Page with the provided items. A nil items slice
// is replaced with an empty one.
func NewPage[T any](items []T, opts ...PageOption[T]) Page[T] {
	if items == nil {
		items = make([]T, 0)
	}
	p := Page[T]{Items: items}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// DecodeCursor interprets an opaque list cursor as an integer offset.
// Nil, malformed and negative cursors all decode to offset zero rather
// than failing: a bad cursor restarts the listing.
func DecodeCursor(cursor *string) int {
	if cursor == nil {
		return 0
	}
	n, err := strconv.Atoi(*cursor)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// EncodeCursor renders an integer offset as an opaque cursor string.
func EncodeCursor(offset int) string {
	return strconv.Itoa(offset)
}

// PageSlice paginates over a fully materialized slice using integer
// offset cursors. It is the shared implementation behind every listing
// in this module, including merged listings over composed hosts.
func PageSlice[T any](all []T, cursor *string, pageSize int) Page[T] {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	start := DecodeCursor(cursor)
	if start > len(all) {
		start = 0
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	items := make([]T, end-start)
	copy(items, all[start:end])
	if end < len(all) {
		return NewPage(items, WithNextCursor[T](EncodeCursor(end)))
	}
	return NewPage(items)
}

// DefaultPageSize is the page size containers use unless configured.
const DefaultPageSize = 50
