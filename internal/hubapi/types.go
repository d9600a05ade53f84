package hubapi

import "time"

// Head is the envelope metadata attached to every hub data API response
// (spec §4.I): "head/meta = {addr, type, mtime, size, prev, content?,
// checksum?}".
type Head struct {
	Addr     string    `json:"addr"`
	Type     string    `json:"type"`
	MTime    time.Time `json:"mtime"`
	Size     int64     `json:"size"`
	Prev     string    `json:"prev,omitempty"`
	Content  string    `json:"content,omitempty"`
	Checksum string    `json:"checksum,omitempty"`
}

// Envelope is the full response body of one verb invocation.
type Envelope struct {
	Head Head `json:"head"`
	Body any  `json:"body"`
}

// ChildSummary is one entry of a Directory fetch's body map: child name ->
// {addr, type, mtime, size, length}.
type ChildSummary struct {
	Addr   string    `json:"addr"`
	Type   string    `json:"type"`
	MTime  time.Time `json:"mtime"`
	Size   int64     `json:"size"`
	Length int       `json:"length,omitempty"`
}

// BatchItemResult is one entry of a batch verb's accumulated results
// (spec §4.I "batch": "per-item errors are attached to that item, not the
// envelope").
type BatchItemResult struct {
	Result *Envelope `json:"result,omitempty"`
	Error  string    `json:"error,omitempty"`
}
