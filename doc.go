// Package identity provides an approval-gated identity layer: email/password
// registration with mandatory email confirmation, an administrative approval
// gate, three flat roles, and single-use account tokens.
//
// Account lifecycle:
//   - Users are created unconfirmed and unapproved. A single-use confirmation
//     token proves control of the email address; an Admin or Manager then
//     approves the account. Authenticate only succeeds once both gates hold
//     and the password matches, and reports which gate blocked the attempt.
//   - Tokens (confirm-email, reset-password) are random opaque values stored
//     as digests. Redemption is atomic: of two concurrent attempts exactly one
//     succeeds, the other observes an already-used token.
//
// Capabilities such as password hashing (PasswordHasher), session issuance
// (SessionIssuer), and email delivery (Notifier) are injected so they can be
// substituted in tests.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by the account manager
//     and admin workflow to describe registration, confirmation, approval,
//     role grants, logins, and password resets. Sinks run best-effort (errors
//     are logged) so you can forward to a database or queue without blocking
//     authentication.
package identity
