// Package database provides SQLite persistence for Folioline Core.
//
// It wraps database/sql with:
//   - Connection setup (WAL mode, busy timeout, foreign keys)
//   - Embedded schema migrations applied at startup
//   - Health checks for readiness probes
//
// SQLite is configured with a single writer connection; the identity and
// portfolio repositories share it. All queries take a context.Context.
package database
