// Package api is the HTTP backend for credit-gated expert messaging.
//
// # Endpoints
//
// Authenticated with the access_token session cookie or a Bearer token:
//
//	GET    /api/chat-count                      - remaining message credits
//	GET    /api/messages                        - the caller's thread, oldest first
//	POST   /api/messages                        - send a message, spending one credit
//	POST   /api/buy-messages                    - start a Khalti payment for credits
//	POST   /api/chat-requests                   - request a live session
//	GET    /api/chat-requests                   - list session requests (expert)
//	PATCH  /api/chat-requests/{id}              - accept or reject a request (expert)
//	GET    /api/expert/users/{id}/messages      - read a user's thread (expert)
//	POST   /api/expert/users/{id}/messages      - reply to a user (expert)
//
// Public:
//
//	GET    /api/payments/khalti/return          - payment return; settles and redirects
//	GET    /health/live, /health/ready          - health checks
//	GET    /metrics                             - Prometheus metrics
//
// # Errors
//
// Errors are JSON bodies of the form {"error": code, "message": text}. A
// send with no credits left is 402 with code insufficient_credits, and a
// payment the gateway refused to start is 502 with code payment_failed.
//
// # Payment return
//
// Khalti redirects the payer to the return endpoint with a pidx query
// parameter. The server settles the purchase and redirects to the frontend
// chat screen with pidx preserved, so the client re-reads its balance once
// and strips the parameter.
package api
