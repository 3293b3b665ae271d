// Package auth is the authentication and authorization core of a multi
// tenant platform: password login, signed session tokens, refresh token
// rotation, role switching and a session registry bound to device
// fingerprints.
//
// Tokens:
//   - TokenService signs HS256 tokens with the current key and verifies
//     them against the current and previous keys by kid. Claims are
//     normalized into an IdentityContext; the tenant a token was issued for
//     never changes for the lifetime of the session lineage.
//
// Role switching:
//   - RoleSwitcher re-issues a token acting as a lower role. The legal role,
//     the subject and the tenant are carried over unchanged, and every
//     switch is recorded through the ActivitySink.
//
// Sessions:
//   - SessionRegistry stores one record per issued token. Records minted by
//     a switch or a refresh share the lineage of the login record, so a
//     logout with any token of the chain closes all of them.
//   - RefreshLedger stores the SHA-256 hash of single use refresh secrets.
//
// Side effects:
//   - Audit events, login attempt rows and session bookkeeping are best
//     effort. Failures are reported as an Effect, logged and counted, and
//     never fail the primary operation.
//
// Persistence lives in the repository package (bun over SQLite or
// PostgreSQL); the HTTP surface is built on fiber.
package auth
