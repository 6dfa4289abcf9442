// Package guard composes the session store, rate limiter, cache, and input
// validators into the security policy facade a web layer calls.
//
// Request-time data flows one direction: facade, then rate limiter check,
// then session store operation, with the cache consulted for user record
// lookups. Background sweeps run independently inside the stores.
//
// Failures follow a strict taxonomy. Malformed input is rejected before it
// reaches any store. Authentication failures are uniform and never explain
// themselves. Capacity refusals (session cap reached with nothing
// evictable) are retryable and distinct from authorization. Infrastructure
// failures are recovered locally and never surface as security failures.
// Hijack detection is an advisory flag; the facade reports it and leaves
// revocation to the caller.
package guard
