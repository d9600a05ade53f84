// Package web is the HTTP edge of the hub server: it translates inbound
// Fiber requests into sysctx.Request values, hands them to an
// internal/lifecycle.Driver, and writes the returned sysctx.Response back
// onto the wire. Everything that interprets a request — address
// resolution, authentication, responder selection, caching — lives in
// internal/lifecycle and the packages it composes; this package owns only
// the translation at the edge plus the handful of routes that sit outside
// the hub's own address space (login, health, debug).
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│  Fiber (routing, middleware)        │
//	│  • /sys/login, /sys/health*, /sys/debug/*  registered directly
//	│  • everything else → hubHandler
//	└─────────────────────────────────────┘
//	            ↓
//	┌─────────────────────────────────────┐
//	│  internal/lifecycle.Driver.Handle   │
//	│  • map-to-storage → header-parse →  │
//	│    fixup → respond → send → cleanup │
//	└─────────────────────────────────────┘
//
// App owns one Hub, one lifecycle.Driver, and the ambient Fiber machinery
// (session store, CSRF handler, rate limiter, asset manifest) for one
// virtual host.
//
// # Request handling
//
//   - handlers.go: requestFromCtx/writeResponse translate between
//     *fiber.Ctx and sysctx.Request/Response; hubHandler is the catch-all
//     route and follows a responder's internal_redirect (spec §4.G) across
//     a bounded number of hops.
//   - auth.go: /sys/login and /sys/logout, the one place outside the
//     driver that needs to derive a session cookie key and run the login
//     protocol (spec §4.F), since those routes must work before any
//     resource is resolved.
//   - health.go: /sys/health, /sys/health/ready, /sys/health/live —
//     routing-layer endpoints, never routed through the hub address space.
//   - server.go: App construction, Fiber middleware, route registration,
//     graceful shutdown.
//
// # Session management
//
// Fiber's own session middleware backs CSRF token storage only; the hub's
// actual SID/auth-token session state (internal/session) is independent of
// it and stored through the same fiber.Storage backend (bbolt or memory,
// selected by options.Opts.PersistSessions).
//
// # Security
//
//   - CSRF protection on /sys/login's POST.
//   - Security headers via helmet (CSP, X-Frame-Options, HSTS).
//   - Rate limiting on login attempts (ratelimit.go).
//   - Every other request's authorization is the permissions table spec
//     §4.F describes, evaluated by internal/lifecycle, not this package.
//
// # Related packages
//
//   - internal/lifecycle: the seven-phase request driver this package calls.
//   - internal/hub: the address space the driver resolves against.
//   - internal/session: SID/auth-token sessions and the permissions table.
//   - internal/options: process bootstrap configuration.
//   - internal/web/templates: the login page and error page Templ components.
package web
