// Copyright (C) 2026 the msl authors.
// See LICENSE for copying information.

package dialect

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"
)

// MySQL implements Adapter for MySQL. MariaDB shares this adapter under a
// distinct Code (the wire protocol and native error numbers the two
// engines report are compatible, and no separate Go driver for MariaDB
// exists in the ecosystem).
type MySQL struct {
	code Code
}

// NewMySQL returns the MySQL adapter.
func NewMySQL() MySQL { return MySQL{code: MYSQL} }

// NewMariaDB returns the MariaDB adapter, identical to MySQL except for
// DialectCode.
func NewMariaDB() MySQL { return MySQL{code: MARIADB} }

var _ Adapter = MySQL{}

func (m MySQL) DialectCode() Code { return m.code }

func (MySQL) SupportsGeneratedKeys() bool { return true }

// MappingTableName returns a name scoped to the current connection's
// session; since MySQL lacks transaction-scoped temp tables, the table is
// connection-local instead; it is not dropped at transaction end, and
// PrepareMappingTable clears its rows at the start of every transaction
// that uses it.
func (MySQL) MappingTableName() string { return "key_mapping" }

func (MySQL) BooleanDDLType() string { return "TINYINT(1)" }

func (MySQL) Open(dsn string) (*sql.DB, error) {
	return sql.Open("mysql", dsn)
}

// PrepareMappingTable creates a connection-scoped temporary table. MySQL
// temporary tables are visible only to the connection that created them
// and are automatically dropped when that connection closes, but they
// outlive any single transaction, so an explicit DELETE is required at
// the start of every use to scope the relation to "this transaction"
// rather than "this connection".
func (m MySQL) PrepareMappingTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `CREATE TEMPORARY TABLE IF NOT EXISTS `+m.MappingTableName()+` (`+mappingColumns+`)`)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `DELETE FROM `+m.MappingTableName())
	return err
}

// MapErrorCode translates a *mysql.MySQLError's error number. See
// https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html.
func (MySQL) MapErrorCode(err error) ErrorCode {
	if code, ok := fromAssertion(err); ok {
		return code
	}
	var mErr *mysql.MySQLError
	if errors.As(err, &mErr) {
		switch mErr.Number {
		case 1062: // ER_DUP_ENTRY
			return INSERT_DUPLICATE
		case 1452: // ER_NO_REFERENCED_ROW_2
			return INSERT_MISSING_FK
		}
	}
	return UNKNOWN
}

// Rebind converts $N bindvars into MySQL's sequential "?" placeholders.
func (MySQL) Rebind(query string) string { return RebindDollar(query) }
