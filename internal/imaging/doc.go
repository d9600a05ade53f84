// Package imaging implements the transform backend for the hub's Image
// responder (spec §4.G "Image responder"): decode a jpg/gif/png source,
// resize and/or apply a watermark overlay, re-encode, and write the
// result to a deterministic cache path under the vhost's tmp directory so
// repeat requests for the same (source, options) pair reuse the file.
//
// golang.org/x/image/draw supplies the resampling kernel; stdlib
// image/jpeg, image/png, and image/gif cover decode/encode for the three
// formats the Image responder matches on.
package imaging
