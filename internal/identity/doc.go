// Package identity provides authentication for Folioline Core.
//
// It implements the session authenticator that gates every live connection
// and REST request:
//   - Argon2id password hashing (OWASP 2025 recommendation)
//   - Short-lived HS256 JWT access tokens
//   - One store lookup per authentication, resolving the token subject
//     to an immutable Identity {user_id, email, name}
//
// Authentication failures are classified as credential-missing,
// credential-invalid, or subject-not-found so transports can surface a
// precise refusal reason without leaking store internals.
package identity
