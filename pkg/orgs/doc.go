// Package orgs implements the organization orchestrator.
//
// Service is the only component with business rules. It validates input,
// assigns identities, merges partial updates and coordinates the record
// store, the licensing service and the change notifier. Every outbound call
// runs inside a resilience policy:
//
//	store reads    resilience.PolicyStoreRead
//	store writes   resilience.PolicyStoreWrite
//	licensing      resilience.PolicyRemoteLicense
//
// # Failure behavior
//
// Domain failures reach the caller unchanged: a missing organization is
// faults.NotFound, a rejected credential is faults.Unauthorized and bad
// input is faults.ValidationFailed.
//
// Infrastructure failures degrade differently on each path. Reads return a
// placeholder marked Degraded that carries the sentinel text
// "Unable to fetch data". Writes return faults.Unavailable with a
// "try again later" message and never report a success that did not happen.
//
// # Change events
//
// Create, Update and Delete emit a change event only after the store
// accepted the mutation. Emission is fire-and-forget; its failure is never
// seen by the caller.
package orgs
