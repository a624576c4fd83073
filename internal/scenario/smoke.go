package scenario

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/studiowebux/chirpload/internal/dispatch"
)

// SmokePayloadLimit caps how much of each response a smoke step keeps
const SmokePayloadLimit = 500

// SmokeStep is one request of the smoke walk-through
type SmokeStep struct {
	Title   string
	Method  string
	Path    string
	Status  int
	OK      bool
	Reason  string
	Payload string
}

// SmokeOptions selects the two accounts the smoke test acts as
type SmokeOptions struct {
	UserA string
	UserB string
}

type smokeCall struct {
	title  string
	method string
	path   func() string // "" skips the call
	do     func(ctx context.Context) (dispatch.Result, error)
}

// Smoke exercises every endpoint once, in a fixed order, with two users.
// Each finished step is passed to report (if non-nil) and collected into
// the returned slice. Failed steps do not stop the walk.
func Smoke(ctx context.Context, client *Client, opts SmokeOptions, report func(SmokeStep)) ([]SmokeStep, error) {
	a, b := opts.UserA, opts.UserB
	if a == "" {
		a = "user1"
	}
	if b == "" {
		b = "user2"
	}

	var tweetsCursor, timelineCursor string

	calls := []smokeCall{
		{"Create tweet (user A)", http.MethodPost, constPath(PathTweets), func(ctx context.Context) (dispatch.Result, error) {
			return client.CreateTweet(ctx, a, "Hello from "+a+"!")
		}},
		{"Create tweet (user B)", http.MethodPost, constPath(PathTweets), func(ctx context.Context) (dispatch.Result, error) {
			return client.CreateTweet(ctx, b, "Hello from "+b+"!")
		}},
		{"Create second tweet (user A)", http.MethodPost, constPath(PathTweets), func(ctx context.Context) (dispatch.Result, error) {
			return client.CreateTweet(ctx, a, "Second tweet from "+a)
		}},
		{"Follow B as A", http.MethodPost, constPath(followPath(a, b)), func(ctx context.Context) (dispatch.Result, error) {
			return client.Follow(ctx, a, b)
		}},
		{"Follow A as B", http.MethodPost, constPath(followPath(b, a)), func(ctx context.Context) (dispatch.Result, error) {
			return client.Follow(ctx, b, a)
		}},
		{"User A tweets (limit 1)", http.MethodGet, constPath(pagedPath(a, "tweets", 1, "")), func(ctx context.Context) (dispatch.Result, error) {
			res, err := client.UserTweets(ctx, a, 1, "")
			tweetsCursor = client.Cursor().Extract(res.Payload)
			return res, err
		}},
		{"User A tweets (next page)", http.MethodGet, nextPage(a, "tweets", 1, &tweetsCursor), func(ctx context.Context) (dispatch.Result, error) {
			return client.UserTweets(ctx, a, 1, tweetsCursor)
		}},
		{"User A timeline (limit 2)", http.MethodGet, constPath(pagedPath(a, "timeline", 2, "")), func(ctx context.Context) (dispatch.Result, error) {
			res, err := client.Timeline(ctx, a, 2, "")
			timelineCursor = client.Cursor().Extract(res.Payload)
			return res, err
		}},
		{"User A timeline (next page)", http.MethodGet, nextPage(a, "timeline", 2, &timelineCursor), func(ctx context.Context) (dispatch.Result, error) {
			return client.Timeline(ctx, a, 2, timelineCursor)
		}},
		{"User A followers", http.MethodGet, constPath(pagedPath(a, "followers", 10, "")), func(ctx context.Context) (dispatch.Result, error) {
			return client.Followers(ctx, a, 10)
		}},
		{"User A following", http.MethodGet, constPath(pagedPath(a, "following", 10, "")), func(ctx context.Context) (dispatch.Result, error) {
			return client.Following(ctx, a, 10)
		}},
		{"Unfollow B as A", http.MethodDelete, constPath(followPath(a, b)), func(ctx context.Context) (dispatch.Result, error) {
			return client.Unfollow(ctx, a, b)
		}},
		{"Verify unfollow (user A following)", http.MethodGet, constPath(pagedPath(a, "following", 10, "")), func(ctx context.Context) (dispatch.Result, error) {
			return client.Following(ctx, a, 10)
		}},
	}

	steps := make([]SmokeStep, 0, len(calls))
	for _, call := range calls {
		path := call.path()
		if path == "" {
			continue
		}
		res, err := call.do(ctx)
		if err != nil {
			return steps, err
		}

		step := SmokeStep{
			Title:   call.title,
			Method:  call.method,
			Path:    path,
			Status:  res.Status,
			OK:      res.OK(),
			Reason:  res.Outcome.FailureReason,
			Payload: truncatePayload(res.Payload, SmokePayloadLimit),
		}
		steps = append(steps, step)
		if report != nil {
			report(step)
		}
	}

	return steps, nil
}

// SmokePassed reports whether every step succeeded
func SmokePassed(steps []SmokeStep) bool {
	for _, s := range steps {
		if !s.OK {
			return false
		}
	}
	return len(steps) > 0
}

func constPath(p string) func() string {
	return func() string { return p }
}

// nextPage yields "" (skip) until the previous page handed out a cursor
func nextPage(user, resource string, limit int, cursor *string) func() string {
	return func() string {
		if *cursor == "" {
			return ""
		}
		return pagedPath(user, resource, limit, *cursor)
	}
}

// truncatePayload indents JSON payloads and cuts them at limit bytes
func truncatePayload(payload []byte, limit int) string {
	var pretty bytes.Buffer
	if json.Indent(&pretty, payload, "", "  ") == nil {
		payload = pretty.Bytes()
	}
	if len(payload) <= limit {
		return string(payload)
	}
	return string(payload[:limit]) + "..."
}
