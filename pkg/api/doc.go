// Package api exposes the subscription service over HTTP. All routes live
// under /api/v1, require a bearer token, and answer with the
// {success, message, data} envelope regardless of outcome.
package api
