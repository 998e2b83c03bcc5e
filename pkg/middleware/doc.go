// Package middleware provides the HTTP request plumbing shared by every
// API endpoint: bearer-token authentication, Redis-backed per-user rate
// limiting, request IDs, and panic recovery.
package middleware
