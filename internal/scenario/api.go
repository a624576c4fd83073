package scenario

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/studiowebux/chirpload/internal/dispatch"
)

// API paths of the target service
const (
	PathTweets    = "/api/v1/tweets"
	pathUsersRoot = "/api/v1/users/"
)

// Acceptable status codes per operation
var (
	ExpectCreateTweet = []int{http.StatusCreated}
	ExpectFollow      = []int{http.StatusCreated, http.StatusConflict}
	ExpectUnfollow    = []int{http.StatusOK, http.StatusNoContent, http.StatusNotFound}
	ExpectRead        = []int{http.StatusOK}
)

// Dispatcher is the part of dispatch.Dispatcher the client needs
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) (dispatch.Result, error)
}

// Client builds chirp API requests and sends them through the dispatcher.
// The acting user goes in the X-User-Id header.
type Client struct {
	dispatcher Dispatcher
	pager      *Pager
}

// NewClient creates an API client
func NewClient(d Dispatcher, pager *Pager) *Client {
	return &Client{dispatcher: d, pager: pager}
}

// CreateTweet posts a tweet as user
func (c *Client) CreateTweet(ctx context.Context, user, content string) (dispatch.Result, error) {
	body, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return dispatch.Result{}, fmt.Errorf("failed to encode tweet: %w", err)
	}
	return c.send(ctx, http.MethodPost, PathTweets, user, body, ExpectCreateTweet)
}

// Follow makes follower follow followee; 409 (already following) counts as success
func (c *Client) Follow(ctx context.Context, follower, followee string) (dispatch.Result, error) {
	return c.send(ctx, http.MethodPost, followPath(follower, followee), follower, nil, ExpectFollow)
}

// Unfollow removes a follow; 404 (not following) counts as success
func (c *Client) Unfollow(ctx context.Context, follower, followee string) (dispatch.Result, error) {
	return c.send(ctx, http.MethodDelete, followPath(follower, followee), follower, nil, ExpectUnfollow)
}

// Timeline reads one page of the user's home timeline
func (c *Client) Timeline(ctx context.Context, user string, limit int, cursor string) (dispatch.Result, error) {
	return c.send(ctx, http.MethodGet, pagedPath(user, "timeline", limit, cursor), user, nil, ExpectRead)
}

// UserTweets reads one page of the user's own tweets
func (c *Client) UserTweets(ctx context.Context, user string, limit int, cursor string) (dispatch.Result, error) {
	return c.send(ctx, http.MethodGet, pagedPath(user, "tweets", limit, cursor), user, nil, ExpectRead)
}

// Followers reads the first page of the user's followers
func (c *Client) Followers(ctx context.Context, user string, limit int) (dispatch.Result, error) {
	return c.send(ctx, http.MethodGet, pagedPath(user, "followers", limit, ""), user, nil, ExpectRead)
}

// Following reads the first page of accounts the user follows
func (c *Client) Following(ctx context.Context, user string, limit int) (dispatch.Result, error) {
	return c.send(ctx, http.MethodGet, pagedPath(user, "following", limit, ""), user, nil, ExpectRead)
}

// PaginateTimeline walks the whole timeline and returns the page count
func (c *Client) PaginateTimeline(ctx context.Context, user string, limit int) (int, error) {
	return c.pager.Paginate(ctx, func(ctx context.Context, cursor string) (dispatch.Result, error) {
		return c.Timeline(ctx, user, limit, cursor)
	})
}

// PaginateTweets walks all of the user's tweets and returns the page count
func (c *Client) PaginateTweets(ctx context.Context, user string, limit int) (int, error) {
	return c.pager.Paginate(ctx, func(ctx context.Context, cursor string) (dispatch.Result, error) {
		return c.UserTweets(ctx, user, limit, cursor)
	})
}

// Cursor exposes the extractor used for pagination
func (c *Client) Cursor() *CursorExtractor {
	return c.pager.Cursor
}

func (c *Client) send(ctx context.Context, method, path, user string, body []byte, expect []int) (dispatch.Result, error) {
	headers := http.Header{}
	headers.Set("X-User-Id", user)
	headers.Set("Content-Type", "application/json")

	return c.dispatcher.Dispatch(ctx, dispatch.Request{
		Method:  method,
		Path:    path,
		Headers: headers,
		Body:    body,
		Expect:  expect,
	})
}

func followPath(follower, followee string) string {
	return pathUsersRoot + url.PathEscape(follower) + "/follow/" + url.PathEscape(followee)
}

func pagedPath(user, resource string, limit int, cursor string) string {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	path := pathUsersRoot + url.PathEscape(user) + "/" + resource
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	return path
}
