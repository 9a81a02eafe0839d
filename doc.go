// Package auth is the authentication core of the clinic backend: the
// credential store, JWT issuance, the session registry and the fiber
// middleware and routes built on them.
//
// Sessions:
//   - A token is accepted only when it verifies and the issued_tokens
//     registry still holds a live row for it. Logout, password reset and
//     status changes delete rows, so revocation does not wait for expiry.
//   - Refresh rotation deletes the presented refresh row with a
//     conditional delete. Only the caller that removed the row gets a new
//     pair, concurrent reuse fails with InvalidRefreshToken.
//
// User lifecycle:
//   - Users are active, inactive or suspended. Inactive and suspended users
//     cannot log in, refresh or use existing access tokens.
//   - ChangeStatus moves a user through the state machine and revokes every
//     session when the user leaves active.
//
// Activity sinks:
//   - ActivitySink receives registration, login, logout, password reset,
//     verification and status events. Sinks run best-effort, errors are
//     logged and never fail the operation.
//
// Claims decoration:
//   - ClaimsDecorator runs before a token is signed and may only write the
//     metadata claim. Any change to identity claims fails the issue.
//
// Errors:
//   - Every failure is a go-errors error carrying an HTTP status and a
//     numeric text code. NewErrorHandler turns them into the JSON envelope
//     returned by all routes.
package auth
