// Copyright (C) 2026 the msl authors.
// See LICENSE for copying information.

package dialect

import (
	"context"
	"database/sql"
	"errors"

	mssql "github.com/denisenkom/go-mssqldb"
)

// SQLServer implements Adapter for Microsoft SQL Server.
type SQLServer struct{}

var _ Adapter = SQLServer{}

func (SQLServer) DialectCode() Code { return SQLSERVER }

func (SQLServer) SupportsGeneratedKeys() bool { return true }

// MappingTableName uses the "#"-prefixed local-temp-table convention:
// SQL Server scopes such tables to the current session, and
// PrepareMappingTable drops and recreates the table at the start of every
// transaction that uses it.
func (SQLServer) MappingTableName() string { return "#key_mapping" }

func (SQLServer) BooleanDDLType() string { return "BIT" }

func (SQLServer) Open(dsn string) (*sql.DB, error) {
	return sql.Open("sqlserver", dsn)
}

func (s SQLServer) PrepareMappingTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `IF OBJECT_ID('tempdb..`+s.MappingTableName()+`') IS NOT NULL DROP TABLE `+s.MappingTableName())
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `CREATE TABLE `+s.MappingTableName()+` (`+mappingColumns+`)`)
	return err
}

// MapErrorCode translates a mssql.Error's native error number. See
// https://learn.microsoft.com/sql/relational-databases/errors-events/database-engine-events-and-errors.
func (SQLServer) MapErrorCode(err error) ErrorCode {
	if code, ok := fromAssertion(err); ok {
		return code
	}
	var sqlErr mssql.Error
	if errors.As(err, &sqlErr) {
		switch sqlErr.Number {
		case 2627, 2601: // unique constraint / unique index violation
			return INSERT_DUPLICATE
		case 547: // FK/check constraint violation
			return INSERT_MISSING_FK
		}
	}
	return UNKNOWN
}

// Rebind converts $N bindvars into sequential "?" placeholders, which
// go-mssqldb accepts and translates to the TDS wire protocol's own
// parameter convention.
func (SQLServer) Rebind(query string) string { return RebindDollar(query) }
