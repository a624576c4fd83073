/*
Package scenario drives the chirp workload through ordered phases.

# Phases

A Runner executes a list of Phase values. Each phase materializes its
tasks when it starts, launches one goroutine per task and waits for all
of them before the next phase begins. Nothing from phase k+1 is
dispatched until every request of phase k has been recorded.

The chirp workload (Workload.Phases) has eight phases:

  1. Initialize Users           setup    one tweet per account
  2. Build Celebrity Followers  setup    threshold fresh followers per celebrity
  3. Build Social Graph         setup    random regular follows plus every celebrity
  4. Create Tweets              runtime  TweetsPerUser rounds over all accounts
  5. Read Timelines             runtime  full timeline walk per regular user
  6. Check Profiles             runtime  tweets walk, followers, following
  7. Unfollow Some              runtime  drop the first regular followees
  8. Mixed Activity             runtime  tweet, follow someone new, read timeline

The collector switches from setup to runtime exactly once, after phase 3.
SettleDelay pauses the run after phase 3 and after phase 4 so that
asynchronous fan-out in the service can catch up.

# Lifecycle

	Idle -> Setup -> Running <-> Transition -> Completed
	                      \-> Aborted

A failed health probe aborts before any load is sent. Cancelling the
context aborts the current phase; the partial snapshot is returned with
ErrAborted and no verdict.

# Pagination

Pager follows continuation cursors found by a JMESPath expression
(default "pagination.nextCursor || nextCursor") until a page fails, is
empty, has no cursor, repeats a cursor, or the page cap is reached.
*/
package scenario
