// Package rcache implements the dependency-tracked response cache (spec
// §4.H): a request-fingerprint ("rtag") keyed meta record naming every
// filesystem path read while compiling the response, plus the entity body
// stored under its own tag. A cached response is valid only as long as
// every recorded dependency's mtime, and the config aggregate mtime, have
// not advanced past what was recorded at compile time.
//
// Storage is plain files under a per-vhost cache directory (spec data
// layout: requests/<rtag>/meta.json, responses/<etag>), written with the
// same write-to-temp-then-rename discipline internal/hub's File.Save uses,
// so concurrent readers never observe a partial artifact (spec §5).
package rcache
