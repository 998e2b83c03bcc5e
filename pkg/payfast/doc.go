// Package payfast implements the signed HTTP client for the recurring-billing
// provider's subscription endpoints.
//
// # Overview
//
// Every outbound request is authenticated with a deterministic MD5 signature
// computed over the request fields and the merchant passphrase (see Sign).
// The provider wraps every response, success or failure, in the same outer
// envelope; decodeEnvelope turns it into a tagged union of *Result and
// *BusinessError so callers never probe optional fields.
//
// # Endpoints
//
//	PUT   /subscriptions/{token}/cancel
//	PUT   /subscriptions/{token}/pause    {"cycles": n}
//	PUT   /subscriptions/{token}/unpause
//	PATCH /subscriptions/{token}/update   subset of {amount, frequency, cycles, run_date}
//	GET   /subscriptions/{token}/fetch
//
// # Error model
//
// Transport failures (connection refused, timeouts) are returned as plain
// wrapped errors and are eligible for retry. A *BusinessError is a well-formed
// rejection from the provider and is terminal. A *StatusError is a non-envelope
// response carrying only its HTTP status code. The success/rejection
// distinction is made on the body shape, never on the HTTP status code; the
// provider is known to return 200 with an error-shaped body.
package payfast
