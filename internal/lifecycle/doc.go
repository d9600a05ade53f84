// Package lifecycle drives the ordered request phases that bind a raw HTTP
// request to a hub resource and responder (spec §4.J): new-request-cycle,
// map-to-storage, header-parse, fixup, respond, send, cleanup. It is the
// glue between internal/hub, internal/sysctx, internal/session,
// internal/rcache and internal/responder/internal/hubapi — internal/web
// constructs one Driver per vhost and calls Handle once per inbound
// request, translating to/from Fiber at the edges.
//
// Grounded on the teacher's App.setupRoutes + RequireAuth/OptionalAuth
// middleware chain (internal/web/server.go): the same "resolve identity,
// check permission, run handler, write response" shape, generalized from
// a fixed LDAP-backed route table to a hub address space where the
// responder and permission check are data-driven per request.
package lifecycle
