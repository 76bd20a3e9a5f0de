// Copyright (C) 2026 the msl authors.
// See LICENSE for copying information.

package dialect

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

// mappingColumns is the column layout of the per-transaction key-mapping
// scratch relation, shared across dialects; only the CREATE prefix and
// temp-table semantics differ.
const mappingColumns = `
	mapping_stage INTEGER NOT NULL,
	ordering      INTEGER NOT NULL,
	id_hi         BIGINT,
	id_lo         BIGINT,
	fk            BIGINT,
	ver           INTEGER,
	pk            BIGINT
`

// Postgres implements Adapter for PostgreSQL (and PostgreSQL-wire-
// compatible engines such as CockroachDB).
type Postgres struct{}

var _ Adapter = Postgres{}

func (Postgres) DialectCode() Code { return POSTGRESQL }

func (Postgres) SupportsGeneratedKeys() bool { return true }

func (Postgres) MappingTableName() string { return "key_mapping" }

func (Postgres) BooleanDDLType() string { return "BOOLEAN" }

func (Postgres) Open(dsn string) (*sql.DB, error) {
	return sql.Open("postgres", dsn)
}

// PrepareMappingTable creates a session-scoped temp table that is dropped
// automatically when the transaction that created it commits, so no
// explicit teardown is required between transactions.
func (p Postgres) PrepareMappingTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `CREATE TEMP TABLE IF NOT EXISTS `+p.MappingTableName()+` (`+mappingColumns+`) ON COMMIT DROP`)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `TRUNCATE `+p.MappingTableName())
	return err
}

// MapErrorCode translates a *pq.Error's SQLSTATE code into the closed
// taxonomy. See https://www.postgresql.org/docs/current/errcodes-appendix.html.
func (Postgres) MapErrorCode(err error) ErrorCode {
	if code, ok := fromAssertion(err); ok {
		return code
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505": // unique_violation
			return INSERT_DUPLICATE
		case "23503": // foreign_key_violation
			return INSERT_MISSING_FK
		}
	}
	return UNKNOWN
}

// Rebind is the identity function: Postgres natively uses $N bindvars.
func (Postgres) Rebind(query string) string { return query }
