// Package responder implements the responder registry (spec §4.G): an
// ordered list of {criteria, implementation} entries evaluated in
// reverse-insertion order, and the concrete responders the core ships —
// Directory, Standard/Data/Empty/Exec, Image, Redirect, and (in
// internal/hubapi) the hub data API.
//
// Matching is grounded on the teacher's rule-matched rate limiter and
// auth-middleware shape (internal/web/ratelimit.go): small
// criteria structs evaluated top-to-bottom, composed with fiber.Handler
// functions rather than a generic visitor hierarchy.
package responder
