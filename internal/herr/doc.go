// Package herr defines the hub's error taxonomy (spec §7): a small,
// closed set of error kinds the lifecycle driver's compile phase catches
// and converts to an HTTP status, with everything else falling through to
// 500 as "Programatic".
package herr
