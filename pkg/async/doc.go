// Package async runs background work with panic recovery and timeouts.
//
// SafeGo is used for one-off tasks such as the purchase sweep at startup,
// Every for periodic housekeeping such as rate limiter cleanup. Both log
// through an observability.Logger and return a channel that closes when
// the goroutine exits.
package async
