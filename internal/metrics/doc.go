/*
Package metrics aggregates request outcomes for a load run.

Every dispatched request produces exactly one Outcome. The Collector files
it under three views at once:

  - the global aggregate (all phases)
  - the aggregate of the active phase (setup or runtime)
  - the bucket of its endpoint, keyed by "METHOD /normalized/path"

Bucket keys come from BucketKey, which drops the query string and folds
UUID path segments into "{id}".

Latencies are kept in a LatencySketch per view. Quantiles use the
nearest-rank-down convention index = floor(n*q), clamped to [0, n-1], so
p95 over 20 samples is the 20th smallest value and an empty sketch
reports 0.

The phase tag only moves forward. The scenario runner flips it from setup
to runtime once every setup request has been recorded, and the verdict
reads the runtime aggregate only.
*/
package metrics
