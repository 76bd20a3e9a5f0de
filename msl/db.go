// Copyright (C) 2026 the msl authors.
// See LICENSE for copying information.

package msl

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/outpost-labs/msl/dialect"
)

// DB holds the single configured dialect adapter and the underlying
// connection pool. A deployment with more than one physical backend would
// route tenants to distinct adapters through ChooseAdapter; today there is
// exactly one adapter and ChooseAdapter always returns it, but the seam
// exists so that routing can be added without reshaping every call site.
type DB struct {
	log     *zap.Logger
	config  Config
	adapter dialect.Adapter
	sqlDB   *sql.DB
}

// OpenDB constructs a DB from Config but does not yet establish a
// connection; call Start to do so.
func OpenDB(log *zap.Logger, config Config) *DB {
	return &DB{log: log, config: config, adapter: config.Adapter}
}

// Start opens the underlying connection pool and applies MaxOpenConns.
// Failure is reported as ErrStartup.
func (db *DB) Start() error {
	sqlDB, err := db.adapter.Open(db.config.DataSourceName)
	if err != nil {
		return ErrStartup.Wrap(err)
	}
	if db.config.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(db.config.MaxOpenConns)
	}
	db.sqlDB = sqlDB
	return nil
}

// Stop closes the connection pool.
func (db *DB) Stop() error {
	if db.sqlDB == nil {
		return nil
	}
	return db.sqlDB.Close()
}

// Ping verifies connectivity, distinct from Start's one-time setup.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.sqlDB.PingContext(ctx); err != nil {
		return ErrInternal.Wrap(err)
	}
	return nil
}

// TestingSQLDB exposes the underlying *sql.DB for test setup (schema
// creation, seeding the tenant table) that has no business going through
// the Store's transactional API.
func TestingSQLDB(db *DB) *sql.DB {
	return db.sqlDB
}

// ChooseAdapter returns the adapter responsible for a given tenant. All
// tenants share one adapter in this deployment model; the tenant ID
// parameter exists so a future multi-backend router can dispatch on it
// without changing any caller.
func (db *DB) ChooseAdapter(tenant TenantID) dialect.Adapter {
	return db.adapter
}

// beginTx opens a transaction and, when mapping is true, prepares the
// key-mapping scratch table before returning.
func (db *DB) beginTx(ctx context.Context, mapping bool) (*conn, error) {
	tx, err := db.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, ErrInternal.Wrap(err)
	}
	c := &conn{tx: tx, adapter: db.adapter}
	if mapping {
		if err := db.adapter.PrepareMappingTable(ctx, tx); err != nil {
			_ = tx.Rollback()
			return nil, ErrInternal.Wrap(err)
		}
	}
	return c, nil
}

// conn binds a transaction to the adapter responsible for it, so every
// query site writes Postgres-style "$N" placeholders once and gets the
// right bindvar syntax for whichever dialect is actually configured.
type conn struct {
	tx      *sql.Tx
	adapter dialect.Adapter
}

func (c *conn) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return c.tx.ExecContext(ctx, c.adapter.Rebind(query), args...)
}

func (c *conn) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return c.tx.QueryContext(ctx, c.adapter.Rebind(query), args...)
}

func (c *conn) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return c.tx.QueryRowContext(ctx, c.adapter.Rebind(query), args...)
}

func (c *conn) PrepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	return c.tx.PrepareContext(ctx, c.adapter.Rebind(query))
}

func (c *conn) Commit() error   { return c.tx.Commit() }
func (c *conn) Rollback() error { return c.tx.Rollback() }
