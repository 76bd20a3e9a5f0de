// Copyright (C) 2026 the msl authors.
// See LICENSE for copying information.

// Package msltest is the test harness for package msl: it spins up a
// Store against each configured dialect, runs a caller-supplied test body
// against it, and offers a handful of random-value generators and
// assertion helpers used throughout the msl test suite.
package msltest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/outpost-labs/msl"
	"github.com/outpost-labs/msl/dialect"
)

// Opt configures a Run invocation.
type Opt func(*options)

type options struct {
	adapters []dialect.Adapter
	config   msl.Config
}

// WithConfig overrides the default Config passed to the Store under test.
func WithConfig(cfg msl.Config) Opt {
	return func(o *options) { o.config = cfg }
}

// WithAdapters restricts Run to the given adapters instead of the default
// set (the in-process H2 stand-in only, so the suite runs without any
// external database in CI; the Postgres/MySQL/SQL Server/Oracle adapters
// run only when passed here, with a live DSN supplied through WithConfig).
func WithAdapters(adapters ...dialect.Adapter) Opt {
	return func(o *options) { o.adapters = adapters }
}

// Run constructs a fresh Store per configured dialect and runs fn against
// each in turn, named as a subtest after the dialect.
func Run(t *testing.T, fn func(ctx context.Context, t *testing.T, db *msl.DB, store *msl.Store), opt ...Opt) {
	t.Helper()

	opts := options{adapters: []dialect.Adapter{dialect.H2Adapter{}}}
	for _, o := range opt {
		o(&opts)
	}

	for _, adapter := range opts.adapters {
		adapter := adapter
		t.Run(adapter.DialectCode().String(), func(t *testing.T) {
			ctx := context.Background()
			log := zaptest.NewLogger(t)

			cfg := opts.config
			cfg.Adapter = adapter
			if cfg.DataSourceName == "" {
				cfg.DataSourceName = ":memory:"
			}
			if cfg.MaxOpenConns == 0 {
				// Each *sql.DB connection to sqlite3's ":memory:" DSN is its
				// own separate database; pinning the pool to one connection
				// is what makes state (and locking) shared across the whole
				// test, including across the goroutines in concurrency tests.
				cfg.MaxOpenConns = 1
			}

			db := msl.OpenDB(log, cfg)
			require.NoError(t, db.Start())
			defer func() { require.NoError(t, db.Stop()) }()

			sqlDB := msl.TestingSQLDB(db)
			require.NoError(t, msl.CreateSchema(ctx, sqlDB, adapter))

			tenants := msl.NewTenantRegistry(log)
			conn, err := sqlDB.Conn(ctx)
			require.NoError(t, err)
			_, err = conn.ExecContext(ctx, `INSERT INTO tenant (tenant_id, code, description) VALUES (1, 'default', 'default test tenant')`)
			require.NoError(t, err)
			require.NoError(t, tenants.Start(ctx, conn))
			require.NoError(t, conn.Close())

			store := msl.NewStore(log, db, tenants, cfg)
			fn(ctx, t, db, store)
		})
	}
}

// DefaultTenant is the tenant ID Run's bootstrap always provisions.
const DefaultTenant msl.TenantID = 1

// Now truncates to millisecond precision, matching the precision SQLite's
// TIMESTAMP columns round-trip; using full nanosecond precision in
// generated test timestamps would make exact equality assertions flaky
// against that backend specifically.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
