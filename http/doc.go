// Package http provides the outbound API client: a Fetcher that retries
// transient failures with exponential backoff, and a base-URL aware Client
// with default headers and request interceptors built on top of it.
//
// Classification
//   - 2xx responses and 404 are resolved and returned immediately.
//   - Any other status is retryable and carried as *StatusError.
//   - Transport faults, body read failures and attempt timeouts are retryable.
//   - Interceptor and validation errors are surfaced without retrying.
//
// Backoff Strategy
//   - Retry k waits InitialBackoff * Multiplier^k (300ms, 600ms, 1200ms by default).
//   - Optional jitter scales each delay within [1-Jitter, 1+Jitter).
//   - MaxRetries = n allows at most n+1 attempts.
//
// Errors
//   - *Exhausted wraps the fault of the last attempt once the budget is spent.
//   - *Cancelled reports that the caller's context ended; it is never retried.
//
// Notes
//   - The request is rebuilt on every attempt so bodies are re-sent.
//   - Response bodies of failed attempts are read fully and closed.
package http
