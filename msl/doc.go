// Copyright (C) 2026 the msl authors.
// See LICENSE for copying information.

// Package msl implements the metadata storage layer: a multi-tenant,
// versioned, append-only registry of objects, their typed tag content, and
// free-standing configuration entries, addressable across five SQL
// dialects through the dialect subpackage's Adapter.
//
// Store is the package's single entry point. Every write is append-only:
// a new object definition or tag version supersedes whatever was
// previously latest rather than overwriting it, and callers can select a
// row by explicit version, by as-of instant, or by "whatever is latest
// right now." Batch reads resolve their caller-supplied keys to backing
// primary keys through a per-transaction scratch relation (see
// scratch.go), joined once per resolution step instead of one lookup
// query per key.
package msl
