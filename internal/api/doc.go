// Package api provides HTTP client functionality for communicating with the
// Facegate backend, a Supabase project exposing a PostgREST data API and an
// object storage API. It handles authentication, request/response
// serialization, and automatic retry with exponential backoff for transient
// failures.
//
// # Authentication
//
// Every request carries the service key twice, in the apikey header and as a
// bearer token, which is how Supabase expects service-role access.
//
// # Endpoints
//
// The client speaks to two surfaces under one base URL:
//
//   - /rest/v1/ for the products and user_profiles tables, queried with
//     PostgREST filter syntax (column=eq.value).
//   - /storage/v1/object/ for downloading encrypted image items from the
//     configured bucket.
//
// # Retry Behavior
//
// Failed requests are retried with exponential backoff and jitter. By
// default, up to 3 retries are attempted for these HTTP status codes:
//
//   - 408 Request Timeout
//   - 429 Too Many Requests
//   - 500 Internal Server Error
//   - 502 Bad Gateway
//   - 503 Service Unavailable
//   - 504 Gateway Timeout
//
// Transport-level failures retry on the same schedule. Configure the
// schedule with [WithRetries] and [WithRetryOn].
//
// # Error Handling
//
// The package defines sentinel errors for common backend error conditions:
//
//   - [ErrUnauthorized]: Invalid or revoked service key (401, 403).
//   - [ErrProductNotFound]: No product row matches the product key.
//   - [ErrProfileNotFound]: The user has no enrollment profile.
//   - [ErrItemNotFound]: Storage object does not exist (404).
//   - [ErrRateLimited]: Rate limit exceeded (429).
//
// Use errors.Is to check for specific conditions:
//
//	if errors.Is(err, api.ErrProfileNotFound) {
//	    // Nothing enrolled for this user yet.
//	}
//
// # Thread Safety
//
// The [Client] type is safe for concurrent use. Multiple goroutines may call
// methods on a single Client simultaneously.
package api
