// Package httputil provides the HTTP plumbing shared by the organization API
// and the operations server.
//
// # Responses
//
// Successful responses are JSON bodies written with WriteJSON. Failures use
// a single error shape:
//
//	{"errorMessage": "...", "statusCode": 404, "timestamp": 1718000000000}
//
// WriteFault maps a classified error from pkg/faults onto that shape:
//
//	NotFound          404
//	Unauthorized      401
//	ValidationFailed  400
//	Unavailable       503
//	Timeout           503
//	Rejected          503
//	Unknown           500
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//		httputil.RateLimitMiddleware(100, 200),
//		httputil.MaxBytesMiddleware(1<<20),
//	)
package httputil
