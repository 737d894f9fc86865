// Package middleware provides HTTP middleware for authentication,
// authorization and rate limiting.
//
// # Authentication
//
// Auth reads the session token from the access_token cookie, falling back
// to an "Authorization: Bearer" header, and stores the verified claims and
// user ID in the request context:
//
//	authn := middleware.NewAuth(issuer, "access_token")
//	api.Use(authn.Handler)
//	api.Handle("/expert/...", middleware.RequireRole(auth.RoleExpert)(h))
//
// # Rate Limiting
//
// RateLimitMiddleware limits requests per user (or per client IP before
// authentication) through a Limiter. RateLimiter is an in-process token
// bucket; DistributedRateLimiter shares a fixed window across instances
// through Redis and fails open when Redis is unavailable.
package middleware
