// Package auth decides whether an inbound request is authenticated and who
// the caller is. The gateway only depends on the Authenticator interface; JWT
// is the shipped implementation, accepting HS256 tokens from the
// Authorization header or the session cookie.
package auth
