// Package session implements the hub's session and authorization engine
// (spec §4.F): SID cookie derivation and issuance, rotating per-SID auth
// tokens, the SHA1 challenge/response login protocol, and the
// regex-pattern permission rule evaluator.
//
// Persistence for session directories, credential records, and auth
// tokens is a key/value store rather than hub addresses — these are
// server bookkeeping, not content the hub data API exposes — so Store
// wraps a fiber.Storage, the same storage abstraction the teacher uses for
// its login session middleware (bbolt for a persistent deployment, memory
// for tests), adapted here to the hub's own record shapes instead of
// gofiber/session's opaque blobs.
package session
