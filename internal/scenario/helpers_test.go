package scenario

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/studiowebux/chirpload/internal/dispatch"
	"github.com/studiowebux/chirpload/internal/metrics"
)

// chirpTransport answers like the chirp API without keeping any state.
// First pages of timelines and user tweets hand out one cursor when
// pagedOnce is set.
type chirpTransport struct {
	mu        sync.Mutex
	requests  []string
	headers   []http.Header
	failPath  string // substring; matching requests get failCode
	failCode  int
	pagedOnce bool
}

func (f *chirpTransport) Execute(ctx context.Context, method, path string, headers http.Header, body []byte) (int, []byte, error) {
	f.mu.Lock()
	f.requests = append(f.requests, method+" "+path)
	f.headers = append(f.headers, headers.Clone())
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	if f.failPath != "" && strings.Contains(path, f.failPath) {
		return f.failCode, []byte(`{"error":"injected"}`), nil
	}

	switch {
	case method == http.MethodPost && path == PathTweets:
		return http.StatusCreated, []byte(`{"id":"t1","content":"x"}`), nil
	case method == http.MethodPost && strings.Contains(path, "/follow/"):
		return http.StatusCreated, nil, nil
	case method == http.MethodDelete:
		return http.StatusNoContent, nil, nil
	case method == http.MethodGet:
		u, _ := url.Parse(path)
		cursor := u.Query().Get("cursor")
		paged := strings.HasSuffix(u.Path, "/timeline") || strings.HasSuffix(u.Path, "/tweets")
		if paged && f.pagedOnce && cursor == "" {
			return http.StatusOK, []byte(`{"data":[{"id":"t1"}],"pagination":{"nextCursor":"c1","hasMore":true}}`), nil
		}
		return http.StatusOK, []byte(`{"data":[{"id":"t2"}],"pagination":{"nextCursor":null,"hasMore":false}}`), nil
	}
	return http.StatusNotFound, nil, nil
}

func (f *chirpTransport) count(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if strings.HasPrefix(r, prefix) {
			n++
		}
	}
	return n
}

func newTestClient(t *testing.T, transport dispatch.Transport, collector *metrics.Collector) *Client {
	t.Helper()

	d, err := dispatch.New(dispatch.Config{MaxConcurrency: 8}, transport, collector, nil)
	if err != nil {
		t.Fatalf("failed to create dispatcher: %v", err)
	}
	cursor, err := NewCursorExtractor("")
	if err != nil {
		t.Fatalf("failed to compile cursor expression: %v", err)
	}
	return NewClient(d, &Pager{Cursor: cursor})
}
