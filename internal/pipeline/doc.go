// Package pipeline is the HTTP client for the remote video analysis service.
//
// The client submits media as a streamed multipart upload, fetches and lists
// job records, and downloads finished artifacts. Every request carries the
// bearer credential, a User-Agent and an X-Request-ID. Non-success responses
// become *services.RemoteError values so callers can branch on
// services.ErrUnauthorized, services.ErrNotFound and friends.
package pipeline
