package scenario

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/studiowebux/chirpload/internal/metrics"
)

// DefaultCelebrityFollowerThreshold matches the service's fan-out-on-read
// switch (app.timeline.celebrity-follower-threshold)
const DefaultCelebrityFollowerThreshold = 5000

// Settings parameterize the chirp workload
type Settings struct {
	RegularUsers               int
	Celebrities                int
	CelebrityFollowerThreshold int
	TweetsPerUser              int
	TimelineReadsPerUser       int
	FollowsPerRegularUser      int
	UnfollowsPerUser           int
	PageSize                   int // timeline and user tweet pages
	ProfilePageSize            int // followers and following pages
	MixedRounds                int
	SettleDelay                time.Duration
	Seed                       int64 // 0 picks a time-based seed
}

// Phase names in plan order
const (
	PhaseBootstrapUsers  = "1. Initialize Users"
	PhaseCelebrityFanOut = "2. Build Celebrity Followers"
	PhaseSocialGraph     = "3. Build Social Graph"
	PhaseCreateTweets    = "4. Create Tweets"
	PhaseReadTimelines   = "5. Read Timelines"
	PhaseCheckProfiles   = "6. Check Profiles"
	PhaseUnfollow        = "7. Unfollow Some"
	PhaseMixedActivity   = "8. Mixed Activity"
)

// PlannedPhase is a phase with its expected operation count
type PlannedPhase struct {
	Name string
	Tag  metrics.Phase
	Ops  int
}

// PlanTotals computes the task counts of each phase up front, for
// progress bars and the configuration preview
func PlanTotals(s Settings) []PlannedPhase {
	users := s.RegularUsers + s.Celebrities
	follows := min(s.FollowsPerRegularUser, max(s.RegularUsers-1, 0))
	unfollows := min(s.UnfollowsPerUser, follows)

	return []PlannedPhase{
		{PhaseBootstrapUsers, metrics.PhaseSetup, users},
		{PhaseCelebrityFanOut, metrics.PhaseSetup, s.Celebrities * s.CelebrityFollowerThreshold},
		{PhaseSocialGraph, metrics.PhaseSetup, s.RegularUsers * (follows + s.Celebrities)},
		{PhaseCreateTweets, metrics.PhaseRuntime, users * s.TweetsPerUser},
		{PhaseReadTimelines, metrics.PhaseRuntime, s.RegularUsers * s.TimelineReadsPerUser},
		{PhaseCheckProfiles, metrics.PhaseRuntime, users},
		{PhaseUnfollow, metrics.PhaseRuntime, s.RegularUsers * unfollows},
		{PhaseMixedActivity, metrics.PhaseRuntime, s.RegularUsers * s.MixedRounds},
	}
}

// SumOps totals the operations of phases carrying tag
func SumOps(plan []PlannedPhase, tag metrics.Phase) int {
	total := 0
	for _, p := range plan {
		if p.Tag == tag {
			total += p.Ops
		}
	}
	return total
}

// Population counts the accounts a run created
type Population struct {
	Regular            int
	Celebrities        int
	CelebrityFollowers int
}

// Total returns every account created
func (p Population) Total() int {
	return p.Regular + p.Celebrities + p.CelebrityFollowers
}

// Workload holds the evolving state of the chirp scenario. Phase builders
// run on the runner goroutine between barriers; tasks only read the
// state captured at build time.
type Workload struct {
	client   *Client
	settings Settings
	rng      *rand.Rand

	mu                 sync.Mutex
	regular            []string
	celebrities        []string
	celebrityFollowers int
	following          map[string][]string
	newID              func() string
}

// NewWorkload creates the chirp workload
func NewWorkload(client *Client, settings Settings) *Workload {
	seed := settings.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if settings.CelebrityFollowerThreshold <= 0 {
		settings.CelebrityFollowerThreshold = DefaultCelebrityFollowerThreshold
	}
	return &Workload{
		client:    client,
		settings:  settings,
		rng:       rand.New(rand.NewSource(seed)),
		following: make(map[string][]string),
		newID:     uuid.NewString,
	}
}

// Population reports the accounts created so far
func (w *Workload) Population() Population {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Population{
		Regular:            len(w.regular),
		Celebrities:        len(w.celebrities),
		CelebrityFollowers: w.celebrityFollowers,
	}
}

// Phases returns the eight chirp phases in order
func (w *Workload) Phases() []Phase {
	return []Phase{
		{Name: PhaseBootstrapUsers, Tag: metrics.PhaseSetup, Build: w.buildBootstrap},
		{Name: PhaseCelebrityFanOut, Tag: metrics.PhaseSetup, Build: w.buildCelebrityFanOut},
		{Name: PhaseSocialGraph, Tag: metrics.PhaseSetup, Build: w.buildSocialGraph, SettleAfter: w.settings.SettleDelay},
		{Name: PhaseCreateTweets, Tag: metrics.PhaseRuntime, Build: w.buildCreateTweets, SettleAfter: w.settings.SettleDelay},
		{Name: PhaseReadTimelines, Tag: metrics.PhaseRuntime, Build: w.buildReadTimelines},
		{Name: PhaseCheckProfiles, Tag: metrics.PhaseRuntime, Build: w.buildCheckProfiles},
		{Name: PhaseUnfollow, Tag: metrics.PhaseRuntime, Build: w.buildUnfollow},
		{Name: PhaseMixedActivity, Tag: metrics.PhaseRuntime, Build: w.buildMixedActivity},
	}
}

// buildBootstrap creates every user implicitly through a first tweet
func (w *Workload) buildBootstrap() []Task {
	w.mu.Lock()
	defer w.mu.Unlock()

	tasks := make([]Task, 0, w.settings.RegularUsers+w.settings.Celebrities)
	for i := 0; i < w.settings.RegularUsers; i++ {
		user := w.newID()
		w.regular = append(w.regular, user)
		tasks = append(tasks, w.tweetTask(user, fmt.Sprintf("Hello! I'm regular user %d", i+1)))
	}
	for i := 0; i < w.settings.Celebrities; i++ {
		user := w.newID()
		w.celebrities = append(w.celebrities, user)
		tasks = append(tasks, w.tweetTask(user, fmt.Sprintf("Hello! I'm celebrity %d", i+1)))
	}
	return tasks
}

// buildCelebrityFanOut pushes each celebrity over the follower threshold
// with fresh follower accounts
func (w *Workload) buildCelebrityFanOut() []Task {
	w.mu.Lock()
	defer w.mu.Unlock()

	threshold := w.settings.CelebrityFollowerThreshold
	tasks := make([]Task, 0, len(w.celebrities)*threshold)
	for _, celeb := range w.celebrities {
		for i := 0; i < threshold; i++ {
			follower := w.newID()
			w.celebrityFollowers++
			tasks = append(tasks, w.followTask(follower, celeb))
		}
	}
	return tasks
}

// buildSocialGraph has each regular user follow a random sample of other
// regular users plus every celebrity
func (w *Workload) buildSocialGraph() []Task {
	w.mu.Lock()
	defer w.mu.Unlock()

	var tasks []Task
	for _, user := range w.regular {
		others := make([]string, 0, len(w.regular)-1)
		for _, u := range w.regular {
			if u != user {
				others = append(others, u)
			}
		}
		w.rng.Shuffle(len(others), func(i, j int) { others[i], others[j] = others[j], others[i] })
		n := min(w.settings.FollowsPerRegularUser, len(others))

		targets := make([]string, 0, n+len(w.celebrities))
		targets = append(targets, others[:n]...)
		targets = append(targets, w.celebrities...)
		w.following[user] = targets

		for _, target := range targets {
			tasks = append(tasks, w.followTask(user, target))
		}
	}
	return tasks
}

// buildCreateTweets runs TweetsPerUser rounds over all users
func (w *Workload) buildCreateTweets() []Task {
	w.mu.Lock()
	defer w.mu.Unlock()

	var tasks []Task
	for round := 0; round < w.settings.TweetsPerUser; round++ {
		for _, user := range w.regular {
			tasks = append(tasks, w.tweetTask(user, fmt.Sprintf("Tweet %d from user - %s", round+1, w.shortTag())))
		}
		for _, user := range w.celebrities {
			tasks = append(tasks, w.tweetTask(user, fmt.Sprintf("Tweet %d from celebrity - %s", round+1, w.shortTag())))
		}
	}
	return tasks
}

// buildReadTimelines walks every regular user's timeline
func (w *Workload) buildReadTimelines() []Task {
	w.mu.Lock()
	defer w.mu.Unlock()

	pageSize := w.settings.PageSize
	var tasks []Task
	for i := 0; i < w.settings.TimelineReadsPerUser; i++ {
		for _, user := range w.regular {
			tasks = append(tasks, func(ctx context.Context) error {
				_, err := w.client.PaginateTimeline(ctx, user, pageSize)
				return err
			})
		}
	}
	return tasks
}

// buildCheckProfiles pages through each user's tweets, then reads their
// followers and following
func (w *Workload) buildCheckProfiles() []Task {
	w.mu.Lock()
	defer w.mu.Unlock()

	pageSize := w.settings.PageSize
	profilePage := w.settings.ProfilePageSize
	users := w.allUsersLocked()

	tasks := make([]Task, 0, len(users))
	for _, user := range users {
		tasks = append(tasks, func(ctx context.Context) error {
			if _, err := w.client.PaginateTweets(ctx, user, pageSize); err != nil {
				return err
			}
			if _, err := w.client.Followers(ctx, user, profilePage); err != nil {
				return err
			}
			_, err := w.client.Following(ctx, user, profilePage)
			return err
		})
	}
	return tasks
}

// buildUnfollow has each regular user drop its first few regular followees
func (w *Workload) buildUnfollow() []Task {
	w.mu.Lock()
	defer w.mu.Unlock()

	celebs := make(map[string]struct{}, len(w.celebrities))
	for _, c := range w.celebrities {
		celebs[c] = struct{}{}
	}

	var tasks []Task
	for _, user := range w.regular {
		var regularFollowees []string
		for _, f := range w.following[user] {
			if _, isCeleb := celebs[f]; !isCeleb {
				regularFollowees = append(regularFollowees, f)
			}
		}

		n := min(w.settings.UnfollowsPerUser, len(regularFollowees))
		dropped := regularFollowees[:n]
		for _, target := range dropped {
			tasks = append(tasks, func(ctx context.Context) error {
				_, err := w.client.Unfollow(ctx, user, target)
				return err
			})
		}
		w.following[user] = removeAll(w.following[user], dropped)
	}
	return tasks
}

// buildMixedActivity runs MixedRounds of tweet, follow-someone-new and
// timeline walk for every regular user. Follow targets are drawn here so
// rounds do not pick the same account twice.
func (w *Workload) buildMixedActivity() []Task {
	w.mu.Lock()
	defer w.mu.Unlock()

	pageSize := w.settings.PageSize
	var tasks []Task
	for round := 0; round < w.settings.MixedRounds; round++ {
		for _, user := range w.regular {
			content := fmt.Sprintf("Live tweet %d - %s", round+1, w.shortTag())
			target := w.pickNotFollowedLocked(user)
			if target != "" {
				w.following[user] = append(w.following[user], target)
			}

			tasks = append(tasks, func(ctx context.Context) error {
				if _, err := w.client.CreateTweet(ctx, user, content); err != nil {
					return err
				}
				if target != "" {
					if _, err := w.client.Follow(ctx, user, target); err != nil {
						return err
					}
				}
				_, err := w.client.PaginateTimeline(ctx, user, pageSize)
				return err
			})
		}
	}
	return tasks
}

func (w *Workload) tweetTask(user, content string) Task {
	return func(ctx context.Context) error {
		_, err := w.client.CreateTweet(ctx, user, content)
		return err
	}
}

func (w *Workload) followTask(follower, followee string) Task {
	return func(ctx context.Context) error {
		_, err := w.client.Follow(ctx, follower, followee)
		return err
	}
}

func (w *Workload) allUsersLocked() []string {
	users := make([]string, 0, len(w.regular)+len(w.celebrities))
	users = append(users, w.regular...)
	return append(users, w.celebrities...)
}

func (w *Workload) pickNotFollowedLocked(user string) string {
	followed := make(map[string]struct{}, len(w.following[user]))
	for _, f := range w.following[user] {
		followed[f] = struct{}{}
	}

	var candidates []string
	for _, u := range w.regular {
		if u == user {
			continue
		}
		if _, ok := followed[u]; !ok {
			candidates = append(candidates, u)
		}
	}
	if len(candidates) == 0 {
		return ""
	}
	return candidates[w.rng.Intn(len(candidates))]
}

// shortTag makes tweet bodies unique
func (w *Workload) shortTag() string {
	return fmt.Sprintf("%08x", w.rng.Uint32())
}

func removeAll(list, drop []string) []string {
	if len(drop) == 0 {
		return list
	}
	skip := make(map[string]struct{}, len(drop))
	for _, d := range drop {
		skip[d] = struct{}{}
	}
	out := list[:0:0]
	for _, v := range list {
		if _, ok := skip[v]; !ok {
			out = append(out, v)
		}
	}
	return out
}
