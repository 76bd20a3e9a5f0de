// Copyright (C) 2026 the msl authors.
// See LICENSE for copying information.

package msl

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/outpost-labs/msl/dialect"
)

// CreateSchema issues the DDL for the five core tables (object_id,
// object_definition, tag, tag_attr, config_entry) plus the tenant table,
// against whatever dialect adapter is supplied. Real deployments
// run migrations through their own tooling (out of scope per SPEC_FULL.md's
// Non-goals); this exists for test setup and for the in-process H2
// stand-in used by msltest.
func CreateSchema(ctx context.Context, db *sql.DB, adapter dialect.Adapter) error {
	boolType := adapter.BooleanDDLType()
	pk := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if adapter.DialectCode() == dialect.POSTGRESQL {
		pk = "BIGSERIAL PRIMARY KEY"
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tenant (
			tenant_id INTEGER PRIMARY KEY,
			code TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS object_id (
			pk %s,
			tenant_id INTEGER NOT NULL,
			id_hi BIGINT NOT NULL,
			id_lo BIGINT NOT NULL,
			object_type INTEGER NOT NULL,
			UNIQUE (tenant_id, id_hi, id_lo)
		)`, pk),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS object_definition (
			pk %s,
			tenant_id INTEGER NOT NULL,
			object_fk BIGINT NOT NULL REFERENCES object_id(pk),
			object_version INTEGER NOT NULL,
			timestamp TIMESTAMP NOT NULL,
			superseded_at TIMESTAMP,
			is_latest %s NOT NULL,
			meta_format INTEGER NOT NULL,
			meta_version INTEGER NOT NULL,
			payload BLOB NOT NULL,
			UNIQUE (tenant_id, object_fk, object_version)
		)`, pk, boolType),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS tag (
			pk %s,
			tenant_id INTEGER NOT NULL,
			definition_fk BIGINT NOT NULL REFERENCES object_definition(pk),
			tag_version INTEGER NOT NULL,
			timestamp TIMESTAMP NOT NULL,
			superseded_at TIMESTAMP,
			is_latest %s NOT NULL,
			object_type INTEGER NOT NULL,
			UNIQUE (tenant_id, definition_fk, tag_version)
		)`, pk, boolType),
		`CREATE TABLE IF NOT EXISTS tag_attr (
			tenant_id INTEGER NOT NULL,
			tag_fk BIGINT NOT NULL REFERENCES tag(pk),
			attr_name TEXT NOT NULL,
			attr_type TEXT NOT NULL,
			attr_index INTEGER NOT NULL,
			attr_value_bool BOOLEAN,
			attr_value_int BIGINT,
			attr_value_float DOUBLE PRECISION,
			attr_value_string TEXT,
			attr_value_decimal TEXT,
			attr_value_date TIMESTAMP,
			attr_value_datetime TIMESTAMP
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS config_entry (
			pk %s,
			tenant_id INTEGER NOT NULL,
			config_class TEXT NOT NULL,
			config_key TEXT NOT NULL,
			config_version INTEGER NOT NULL,
			timestamp TIMESTAMP NOT NULL,
			superseded_at TIMESTAMP,
			is_latest %s NOT NULL,
			is_deleted %s NOT NULL,
			meta_format INTEGER NOT NULL,
			meta_version INTEGER NOT NULL,
			payload BLOB NOT NULL,
			UNIQUE (tenant_id, config_class, config_key, config_version)
		)`, pk, boolType, boolType),
		`CREATE INDEX IF NOT EXISTS idx_tag_attr_lookup ON tag_attr (tenant_id, tag_fk, attr_name, attr_index)`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return ErrStartup.Wrap(err)
		}
	}
	return nil
}
