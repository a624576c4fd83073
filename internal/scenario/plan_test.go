package scenario

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/studiowebux/chirpload/internal/metrics"
	"github.com/studiowebux/chirpload/internal/verdict"
)

func runWorkload(t *testing.T, transport *chirpTransport, settings Settings, keep int) *Result {
	t.Helper()

	collector := metrics.NewCollector()
	client := newTestClient(t, transport, collector)
	workload := NewWorkload(client, settings)

	phases := workload.Phases()
	if keep > 0 {
		phases = phases[:keep]
	}

	runner, err := NewRunner(RunnerConfig{
		Phases:     phases,
		Collector:  collector,
		Thresholds: verdict.Thresholds{MaxErrorRatePercent: 5, MaxP95: time.Second},
	})
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}
	result, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	return result
}

func TestWorkload_TweetsOnlyRuntime(t *testing.T) {
	transport := &chirpTransport{}
	settings := Settings{
		RegularUsers:  10,
		TweetsPerUser: 1,
		PageSize:      10,
		Seed:          1,
	}

	// Only phases 1-5 run. Phase 6 always reads three profile pages per
	// user and phase 8 writes and reads for every mixed round (default 2),
	// so "one runtime outcome per tweet" holds for the truncated plan only.
	// With zero reads phases 4-5 produce exactly one tweet per user.
	result := runWorkload(t, transport, settings, 5)

	runtime := result.Snapshot.Phases[metrics.PhaseRuntime]
	if runtime.Total != 10 {
		t.Fatalf("runtime total = %d, want 10", runtime.Total)
	}
	if runtime.ErrorRate() != 0 {
		t.Errorf("runtime error rate = %.1f, want 0", runtime.ErrorRate())
	}
	if setup := result.Snapshot.Phases[metrics.PhaseSetup].Total; setup != 10 {
		t.Errorf("setup total = %d, want 10 bootstrap tweets", setup)
	}
	if !result.Verdict.Passed {
		t.Errorf("verdict failed: %v", result.Verdict.Reasons)
	}
}

func TestWorkload_FullPlanCounts(t *testing.T) {
	transport := &chirpTransport{}
	settings := Settings{
		RegularUsers:               4,
		Celebrities:                1,
		CelebrityFollowerThreshold: 3,
		TweetsPerUser:              2,
		TimelineReadsPerUser:       1,
		FollowsPerRegularUser:      2,
		UnfollowsPerUser:           1,
		PageSize:                   10,
		ProfilePageSize:            20,
		MixedRounds:                1,
		Seed:                       7,
	}

	result := runWorkload(t, transport, settings, 0)

	// setup: 5 bootstrap tweets, 3 celebrity followers, 4*(2+1) graph follows
	if got := result.Snapshot.Phases[metrics.PhaseSetup].Total; got != 20 {
		t.Errorf("setup total = %d, want 20", got)
	}
	// runtime: 10 tweets, 4 timelines, 5*3 profile reads, 4 unfollows,
	// 4*(tweet+follow+timeline) mixed
	if got := result.Snapshot.Phases[metrics.PhaseRuntime].Total; got != 45 {
		t.Errorf("runtime total = %d, want 45", got)
	}
	if got := transport.count(http.MethodDelete); got != 4 {
		t.Errorf("unfollow requests = %d, want 4", got)
	}
	if got := result.Snapshot.Global.Failed; got != 0 {
		t.Errorf("failed = %d, want 0", got)
	}
}

func TestWorkload_BuildMatchesPlanTotals(t *testing.T) {
	settings := Settings{
		RegularUsers:               6,
		Celebrities:                2,
		CelebrityFollowerThreshold: 4,
		TweetsPerUser:              3,
		TimelineReadsPerUser:       2,
		FollowsPerRegularUser:      10, // more than there are other users
		UnfollowsPerUser:           2,
		MixedRounds:                2,
		Seed:                       42,
	}

	workload := NewWorkload(NewClient(nil, nil), settings)
	plan := PlanTotals(settings)
	phases := workload.Phases()

	if len(plan) != len(phases) {
		t.Fatalf("plan has %d phases, workload %d", len(plan), len(phases))
	}
	for i, p := range phases {
		tasks := p.Build()
		if len(tasks) != plan[i].Ops {
			t.Errorf("%s: built %d tasks, plan says %d", p.Name, len(tasks), plan[i].Ops)
		}
		if p.Tag != plan[i].Tag {
			t.Errorf("%s: tag %s, plan says %s", p.Name, p.Tag, plan[i].Tag)
		}
	}

	pop := workload.Population()
	if pop.Regular != 6 || pop.Celebrities != 2 || pop.CelebrityFollowers != 8 {
		t.Errorf("population = %+v", pop)
	}
	if pop.Total() != 16 {
		t.Errorf("population total = %d, want 16", pop.Total())
	}
}

func TestWorkload_SettleAfterWritePhases(t *testing.T) {
	workload := NewWorkload(NewClient(nil, nil), Settings{SettleDelay: time.Second})
	for _, p := range workload.Phases() {
		wantSettle := p.Name == PhaseSocialGraph || p.Name == PhaseCreateTweets
		if (p.SettleAfter > 0) != wantSettle {
			t.Errorf("%s: SettleAfter = %v", p.Name, p.SettleAfter)
		}
	}
}

func TestWorkload_FailuresAreRecordedNotRetried(t *testing.T) {
	transport := &chirpTransport{failPath: "/timeline", failCode: http.StatusServiceUnavailable}
	settings := Settings{
		RegularUsers:         3,
		TweetsPerUser:        1,
		TimelineReadsPerUser: 2,
		PageSize:             10,
		Seed:                 3,
	}

	result := runWorkload(t, transport, settings, 5)

	runtime := result.Snapshot.Phases[metrics.PhaseRuntime]
	if runtime.Total != 9 || runtime.Failed != 6 {
		t.Fatalf("runtime total=%d failed=%d, want 9 and 6", runtime.Total, runtime.Failed)
	}
	if result.Verdict.Passed {
		t.Error("verdict should fail with a 66% error rate")
	}
	if got := runtime.FailureReasons["HTTP 503"]; got != 6 {
		t.Errorf("HTTP 503 count = %d, want 6", got)
	}
}

func TestClient_RequestShapes(t *testing.T) {
	transport := &chirpTransport{}
	client := newTestClient(t, transport, metrics.NewCollector())
	ctx := context.Background()

	if _, err := client.CreateTweet(ctx, "alice", "hi"); err != nil {
		t.Fatal(err)
	}
	if _, err := client.Follow(ctx, "alice", "bob"); err != nil {
		t.Fatal(err)
	}
	if _, err := client.Timeline(ctx, "alice", 10, "abc"); err != nil {
		t.Fatal(err)
	}
	if _, err := client.Followers(ctx, "bob", 20); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"POST /api/v1/tweets",
		"POST /api/v1/users/alice/follow/bob",
		"GET /api/v1/users/alice/timeline?cursor=abc&limit=10",
		"GET /api/v1/users/bob/followers?limit=20",
	}
	for i, w := range want {
		if transport.requests[i] != w {
			t.Errorf("request %d = %q, want %q", i, transport.requests[i], w)
		}
	}
	for i, h := range transport.headers {
		if h.Get("Content-Type") != "application/json" {
			t.Errorf("request %d missing content type", i)
		}
	}
	if got := transport.headers[1].Get("X-User-Id"); got != "alice" {
		t.Errorf("follow X-User-Id = %q, want alice", got)
	}
	if got := transport.headers[3].Get("X-User-Id"); got != "bob" {
		t.Errorf("followers X-User-Id = %q, want bob", got)
	}
}

func TestSmoke_WalksEveryEndpoint(t *testing.T) {
	transport := &chirpTransport{pagedOnce: true}
	client := newTestClient(t, transport, metrics.NewCollector())

	var reported int
	steps, err := Smoke(context.Background(), client, SmokeOptions{}, func(SmokeStep) { reported++ })
	if err != nil {
		t.Fatalf("Smoke() error = %v", err)
	}
	if len(steps) != 13 || reported != 13 {
		t.Fatalf("steps = %d reported = %d, want 13", len(steps), reported)
	}
	if !SmokePassed(steps) {
		for _, s := range steps {
			if !s.OK {
				t.Errorf("step %q failed: %d %s", s.Title, s.Status, s.Reason)
			}
		}
	}
	if !strings.Contains(steps[6].Path, "cursor=c1") {
		t.Errorf("next page path = %q, want cursor=c1", steps[6].Path)
	}
}

func TestSmoke_SkipsNextPageWithoutCursor(t *testing.T) {
	transport := &chirpTransport{}
	client := newTestClient(t, transport, metrics.NewCollector())

	steps, err := Smoke(context.Background(), client, SmokeOptions{UserA: "a", UserB: "b"}, nil)
	if err != nil {
		t.Fatalf("Smoke() error = %v", err)
	}
	if len(steps) != 11 {
		t.Fatalf("steps = %d, want 11", len(steps))
	}
	if got := transport.count(http.MethodGet + " /api/v1/users/a/timeline"); got != 1 {
		t.Errorf("timeline requests = %d, want 1", got)
	}
}

func TestTruncatePayload(t *testing.T) {
	long := strings.Repeat("x", SmokePayloadLimit+10)
	got := truncatePayload([]byte(long), SmokePayloadLimit)
	if len(got) != SmokePayloadLimit+3 || !strings.HasSuffix(got, "...") {
		t.Errorf("truncated length = %d", len(got))
	}
	if truncatePayload([]byte("short"), SmokePayloadLimit) != "short" {
		t.Error("short payload should be unchanged")
	}
}

func TestTruncatePayload_IndentsJSON(t *testing.T) {
	got := truncatePayload([]byte(`{"id":"t1"}`), SmokePayloadLimit)
	if got != "{\n  \"id\": \"t1\"\n}" {
		t.Errorf("payload = %q", got)
	}
}
