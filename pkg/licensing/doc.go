// Package licensing is the client of the licensing service, which owns the
// licenses issued to each organization.
//
// The client performs a single call, fetching the licenses of one
// organization, and forwards the caller's Authorization header as-is. HTTP
// outcomes are mapped onto pkg/faults kinds so that callers can tell an
// authorization failure from an outage:
//
//	200                  licenses
//	401, 403             faults.Unauthorized
//	404                  faults.NotFound
//	408, 504             faults.Timeout
//	429, 5xx             faults.Unavailable
//	transport failures   faults.Unavailable or faults.Timeout
//
// Retries and fallbacks are not applied here; callers wrap FetchLicenses in
// a resilience policy.
package licensing
