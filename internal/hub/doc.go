// Package hub implements the root hierarchical container that unifies the
// local filesystem, mounted foreign subtrees, and structured data files
// (hashfile / JSON) into one address space (spec §4.C). It also owns the
// config-hashfile overlay loader (spec §4.D) since the two are the same
// kind of machinery: a stack of storage-backed Mapping nodes merged into a
// single logical view, refreshed when any source's mtime changes.
//
// Resolution, mounts, and the abstract-address query evaluator are grounded
// on the teacher's own "one coordinating Manager + generic indexed Cache"
// shape (internal/ldap_cache in the teacher repo): Hub plays the Manager
// role, AccessLog/ChangeLog play the Cache role, and the background
// config-refresh loop is a direct generalization of the teacher's
// ticker-driven Manager.Run/Refresh loop.
package hub
