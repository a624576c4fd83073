/*
Package progress surfaces a running scenario to people and tools.

Every type here implements scenario.Listener:

  - Tracker keeps the latest state for pollers. The bubbletea Model reads
    it every 100ms and draws one line per phase plus a bar for the active
    one. Pressing q cancels the run.
  - Hub streams JSON events to websocket clients connected on /ws.
  - LogListener writes quarter-mark progress through zap when there is no
    terminal to draw on.

Task callbacks arrive from many goroutines; none of these block on them.
*/
package progress
