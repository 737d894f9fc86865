// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Helpers
//
//	httputil.WriteJSON(w, http.StatusOK, chat.ChatCountResponse{ChatCount: n})
//	httputil.WriteCreated(w, msg)
//	httputil.WritePaymentRequired(w, "no message credits left")
//
// Every error body has the shape {"error": code, "message": text}. The code
// is derived from the status unless WriteErrorCode is used.
//
// # Request Parsing
//
//	var req chat.SendMessageRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // error response already written
//	}
//	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggerMiddleware(logger),
//		httputil.RecoveryMiddleware,
//		httputil.LoggingMiddleware,
//		httputil.CORSMiddleware(origins),
//		httputil.MaxBytesMiddleware(64<<10),
//	)(router)
//
// # Related Packages
//
//   - pkg/middleware: authentication, role checks and rate limiting
package httputil
