// Package ratelimit counts requests per origin address over a rolling window.
//
// Each address gets a counter and a window start. The first request after
// the window lapses starts a new window. A request that would push the
// counter above the ceiling is denied and not counted, so a client that
// keeps hammering is admitted again as soon as its window resets.
//
// The Limiter is safe for concurrent use. Run it alongside the HTTP server
// so lapsed entries are swept and memory stays bounded by the number of
// addresses seen in the last window.
package ratelimit
