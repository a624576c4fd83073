package mock

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"
)

// store is the in-memory chirp data set. Users exist once they tweet,
// follow or are followed.
type store struct {
	mu        sync.RWMutex
	seq       int64
	users     map[string]struct{}
	tweets    map[string][]*Tweet // by author, oldest first
	following map[string]map[string]struct{}
	followers map[string]map[string]struct{}
	follows   int
}

func newStore() *store {
	return &store{
		users:     make(map[string]struct{}),
		tweets:    make(map[string][]*Tweet),
		following: make(map[string]map[string]struct{}),
		followers: make(map[string]map[string]struct{}),
	}
}

func (s *store) addTweet(author, content string) *Tweet {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	t := &Tweet{
		ID:        fmt.Sprintf("tw-%d", s.seq),
		AuthorID:  author,
		Content:   content,
		CreatedAt: time.Now().UTC(),
		seq:       s.seq,
	}
	s.users[author] = struct{}{}
	s.tweets[author] = append(s.tweets[author], t)
	return t
}

// follow returns false when the edge already exists
func (s *store) follow(follower, followee string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users[follower] = struct{}{}
	s.users[followee] = struct{}{}

	if _, ok := s.following[follower][followee]; ok {
		return false
	}
	if s.following[follower] == nil {
		s.following[follower] = make(map[string]struct{})
	}
	if s.followers[followee] == nil {
		s.followers[followee] = make(map[string]struct{})
	}
	s.following[follower][followee] = struct{}{}
	s.followers[followee][follower] = struct{}{}
	s.follows++
	return true
}

// unfollow returns false when there was no edge
func (s *store) unfollow(follower, followee string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.following[follower][followee]; !ok {
		return false
	}
	delete(s.following[follower], followee)
	delete(s.followers[followee], follower)
	s.follows--
	return true
}

// userTweets returns the author's tweets, newest first
func (s *store) userTweets(user string) []*Tweet {
	s.mu.RLock()
	defer s.mu.RUnlock()

	own := s.tweets[user]
	out := make([]*Tweet, len(own))
	for i, t := range own {
		out[len(own)-1-i] = t
	}
	return out
}

// timeline merges the user's own tweets with those of every followee,
// newest first
func (s *store) timeline(user string) []*Tweet {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := append([]*Tweet(nil), s.tweets[user]...)
	for followee := range s.following[user] {
		out = append(out, s.tweets[followee]...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq > out[j].seq })
	return out
}

func (s *store) followersOf(user string) []UserRef {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedRefs(s.followers[user])
}

func (s *store) followingOf(user string) []UserRef {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedRefs(s.following[user])
}

func (s *store) stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{Users: len(s.users), Tweets: int(s.seq), Follows: s.follows}
}

func sortedRefs(set map[string]struct{}) []UserRef {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	refs := make([]UserRef, len(ids))
	for i, id := range ids {
		refs[i] = UserRef{UserID: id}
	}
	return refs
}

// paginate slices items from the offset encoded in cursor
func paginate[T any](items []T, cursor string, limit int) (Page[T], error) {
	offset := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 {
			return Page[T]{}, fmt.Errorf("invalid cursor %q", cursor)
		}
		offset = n
	}
	if offset > len(items) {
		offset = len(items)
	}

	end := min(offset+limit, len(items))
	page := Page[T]{Data: items[offset:end]}
	if page.Data == nil {
		page.Data = []T{}
	}
	if end < len(items) {
		next := strconv.Itoa(end)
		page.Pagination = Pagination{NextCursor: &next, HasMore: true}
	}
	return page, nil
}
