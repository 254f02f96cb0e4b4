// Package api provides the HTTP surface of the organization service.
//
// Routes live under /api/v1/organization:
//
//	GET    /all           list every organization
//	GET    /{id}          fetch one organization
//	POST   /              create an organization
//	PUT    /{id}          update the supplied fields
//	DELETE /{id}          delete, answering 202 with a confirmation text
//	GET    /license/{id}  licenses of the organization; needs Authorization
//
// Errors are rendered by httputil.WriteFault, which maps the fault kind to
// a status code. A degraded read still answers 200 with a placeholder body
// marked "degraded": true.
//
// Server.Handler wraps the router in request id, logging, recovery, rate
// limiting, body size and content type middleware, and in an OpenTelemetry
// server span when tracing is enabled:
//
//	server := api.NewServer(service, logger, api.Options{
//		MaxBodyBytes: 1 << 20,
//		Metrics:      m,
//		Tracing:      true,
//	})
//	http.ListenAndServe(":8080", server.Handler())
package api
