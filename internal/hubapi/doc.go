// Package hubapi implements the hub data API responder (spec §4.I): a
// JSON RPC mounted at /api/hub whose verbs (fetch, store, update, insert,
// remove, rename, copy, move, reorder, create, upload, download,
// upload_progress, download_progress, batch) correspond to the hub's own
// resolution and mutation semantics (internal/hub).
//
// Dispatch is grounded on the teacher's LDAPClient interface pattern
// (internal/ldap_cache.LDAPClient): one narrow interface per capability a
// verb needs from the Hub, so each verb handler is independently testable
// against a fake. The outbound transport pool backing the download verb
// adapts the teacher's internal/ldap/pool.go connection-pooling pattern to
// plain net/http clients.
package hubapi
