package scenario

import (
	"context"

	"github.com/studiowebux/chirpload/internal/dispatch"
)

// DefaultMaxPages bounds a single pagination walk
const DefaultMaxPages = 1000

// PageFetcher issues one page request; cursor is "" for the first page
type PageFetcher func(ctx context.Context, cursor string) (dispatch.Result, error)

// Pager walks cursor-paginated endpoints
type Pager struct {
	Cursor   *CursorExtractor
	MaxPages int
}

// Paginate requests pages until a request fails, a page has no payload,
// the cursor is missing or empty, a cursor repeats, or MaxPages is
// reached. It returns the number of requests issued. The error is
// non-nil only when the walk was abandoned by ctx.
func (p *Pager) Paginate(ctx context.Context, fetch PageFetcher) (int, error) {
	maxPages := p.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	seen := make(map[string]struct{})
	cursor := ""
	pages := 0

	for pages < maxPages {
		res, err := fetch(ctx, cursor)
		if err != nil {
			return pages, err
		}
		pages++

		if !res.OK() || !hasPayload(res.Payload) {
			return pages, nil
		}

		next := p.Cursor.Extract(res.Payload)
		if next == "" {
			return pages, nil
		}
		if _, dup := seen[next]; dup {
			return pages, nil
		}
		seen[next] = struct{}{}
		cursor = next
	}

	return pages, nil
}
