/*
Package dispatch executes HTTP requests against the target under a global
concurrency ceiling.

# Permit Pool

A Dispatcher owns a weighted semaphore with MaxConcurrency permits
(default 50). Dispatch blocks until a permit is free. That wait is the
only backpressure in a run: scenario phases spawn one goroutine per task
and let the pool decide how many reach the network at once.

An optional token bucket (RequestsPerSecond) caps the request rate. It is
a fixed ceiling, not a feedback loop.

# Request Lifecycle

  1. Wait for a rate token (when configured)
  2. Acquire a permit
  3. Call the Transport once under RequestTimeout (default 30s)
  4. Classify: expected status, unexpected status, transport failure
  5. Record the Outcome with the metrics recorder
  6. Release the permit (deferred, runs on every path)

Latency covers step 3 only; time spent waiting for a permit is excluded.

Requests are never retried. A timeout or connection error is a failed
outcome with a short reason such as "timeout" or "connection refused";
an unexpected status is a failed outcome with reason "HTTP 503".

If the caller's context ends while waiting or in flight, the request is
abandoned: nothing is recorded and ErrAbandoned is returned.

# Transport

HTTPTransport wraps a shared http.Client whose connection pool is sized
to the permit pool, with dial, TLS handshake and response header
timeouts. Optional TLS settings cover insecure mode, client certificates
and a custom CA.
*/
package dispatch
