// Copyright (C) 2026 the msl authors.
// See LICENSE for copying information.

package dialect

import (
	"context"
	"database/sql"
	"errors"

	"github.com/mattn/go-sqlite3"
)

// H2 stands in for the H2 dialect named in the spec. No Go driver for the
// JVM-embedded H2 database exists; github.com/mattn/go-sqlite3 serves the
// same role in the Go ecosystem (an embedded, file-or-memory, single-
// process database used for local development and unit tests) and is
// used as H2's concrete driver here.
type H2Adapter struct{}

var _ Adapter = H2Adapter{}

func (H2Adapter) DialectCode() Code { return H2 }

func (H2Adapter) SupportsGeneratedKeys() bool { return true }

func (H2Adapter) MappingTableName() string { return "key_mapping" }

func (H2Adapter) BooleanDDLType() string { return "BOOLEAN" }

func (H2Adapter) Open(dsn string) (*sql.DB, error) {
	return sql.Open("sqlite3", dsn)
}

// PrepareMappingTable creates the mapping table if it does not exist and
// deletes any rows left in it; sqlite has
// no notion of a true temp table scoped to a single transaction (its
// "TEMP" tables are connection-scoped, same as MySQL), so the table is
// reset explicitly at the start of every transaction that uses it.
func (h H2Adapter) PrepareMappingTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `CREATE TEMP TABLE IF NOT EXISTS `+h.MappingTableName()+` (`+mappingColumns+`)`)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `DELETE FROM `+h.MappingTableName())
	return err
}

// MapErrorCode translates a sqlite3.Error's extended code.
func (H2Adapter) MapErrorCode(err error) ErrorCode {
	if code, ok := fromAssertion(err); ok {
		return code
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return INSERT_DUPLICATE
		case sqlite3.ErrConstraintForeignKey:
			return INSERT_MISSING_FK
		}
	}
	return UNKNOWN
}

// Rebind converts $N bindvars into SQLite's sequential "?" placeholders.
func (H2Adapter) Rebind(query string) string { return RebindDollar(query) }
