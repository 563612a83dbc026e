// Package credential implements the credential gate that fronts every call
// to the Qwen3-Coder API.
//
// The gate trades a long-lived API key for a short-lived bearer token at the
// token endpoint and keeps that token in memory until it is about to expire.
// The cached expiry is the server-declared lifetime minus a refresh margin
// (five minutes unless configured), so a token is renewed before the server
// stops honouring it.
//
// # Caching
//
// At most one token is cached. It is held as a single immutable
// *oauth2.Token behind an atomic pointer, so readers never observe an access
// token paired with another token's expiry. A token whose expiry has been
// reached is never returned; the next call performs a fresh exchange.
//
// # Concurrency
//
// Callers that find the cache empty or stale at the same moment share one
// in-flight exchange. Each caller still waits on its own context, so
// abandoning a call does not cancel the exchange other callers are waiting on.
//
// # Failure
//
// Any exchange failure is returned as *AuthenticationError wrapping the
// cause. A failed exchange leaves the cache exactly as it was; there are no
// automatic retries.
package credential
