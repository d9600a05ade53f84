// Package sysctx holds the per-request mutable state a hub request carries
// through the lifecycle driver (spec §4.E): the inbound Request (method,
// scheme, hostname, uri, query string, cookies, headers, cgi params,
// XArgs), the outbound Response being assembled, and the request
// fingerprint ("rtag") the response cache keys on.
//
// This is request-exclusive state — never shared between concurrent
// requests — in contrast to internal/hub's Hub and internal/rcache's
// Store, which are shared read-mostly structures (spec §5). It is built
// fresh by internal/web for every incoming HTTP request and threaded
// through internal/lifecycle by pointer.
package sysctx
