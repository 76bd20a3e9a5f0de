// Copyright (C) 2026 the msl authors.
// See LICENSE for copying information.

package msl

import "github.com/outpost-labs/msl/dialect"

// Config carries the Facade's deployment parameters. It is a plain
// struct populated by the caller, not loaded from any config file by
// this package.
type Config struct {
	// Adapter is the dialect adapter to use for all connections.
	Adapter dialect.Adapter

	// DataSourceName is passed to Adapter.Open.
	DataSourceName string

	// MaxOpenConns bounds the underlying *sql.DB connection pool.
	MaxOpenConns int

	// ApplicationName is carried in the Config only; this package does not
	// attach it to any connection.
	ApplicationName string

	// SearchLimit caps the number of rows the Search Executor returns.
	// Zero means use the default of 100 (Open Question (b) in DESIGN.md).
	SearchLimit int
}

// searchLimit returns the effective search cap.
func (c Config) searchLimit() int {
	if c.SearchLimit <= 0 {
		return 100
	}
	return c.SearchLimit
}
