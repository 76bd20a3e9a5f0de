// Copyright (C) 2026 the msl authors.
// See LICENSE for copying information.

package dialect

import (
	"context"
	"database/sql"
	"regexp"
)

// OracleAdapter implements the Adapter contract for Oracle Database. No
// example repo or ecosystem driver for Oracle (godror, go-ora) is wired
// into this module's go.mod: none appears in any retrieved example
// repository (the only "oracle" hit in the pack, juju-juju's
// oracle/oci-go-sdk, is a cloud-management SDK, not a SQL driver).
// OracleAdapter therefore implements the error-code table and DDL shape
// against plain database/sql, but Open deliberately refuses to proceed
// rather than silently registering no driver: deployments that need
// Oracle must import a real driver under a build tag and provide its
// registered name here.
type OracleAdapter struct {
	// DriverName is the database/sql driver name a deployment has
	// registered for Oracle (e.g. via a build-tag-guarded blank import of
	// a real driver package). Left empty, Open fails fast.
	DriverName string
}

var _ Adapter = OracleAdapter{}

func (OracleAdapter) DialectCode() Code { return ORACLE }

func (OracleAdapter) SupportsGeneratedKeys() bool { return false }

func (OracleAdapter) MappingTableName() string { return "key_mapping" }

func (OracleAdapter) BooleanDDLType() string { return "NUMBER(1)" }

func (o OracleAdapter) Open(dsn string) (*sql.DB, error) {
	if o.DriverName == "" {
		return nil, ErrNoOracleDriver
	}
	return sql.Open(o.DriverName, dsn)
}

// ErrNoOracleDriver is returned by OracleAdapter.Open when no Oracle
// database/sql driver has been registered.
var ErrNoOracleDriver = oracleDriverError{}

type oracleDriverError struct{}

func (oracleDriverError) Error() string {
	return "msl: oracle dialect requires a database/sql driver registered under OracleAdapter.DriverName (none compiled in)"
}

// PrepareMappingTable uses Oracle's global-temporary-table convention: a
// single relation is deployed once (by migration tooling, out of scope
// here) with ON COMMIT DELETE ROWS, so preparing it per transaction is a
// no-op beyond clearing any rows a prior, non-committing session left
// behind (Oracle GTT rows are already private per session, so in practice
// this DELETE only guards against session reuse across pooled
// connections).
func (o OracleAdapter) PrepareMappingTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM `+o.MappingTableName())
	return err
}

// oraCodePattern extracts the leading ORA-NNNNN code from an Oracle
// driver error's message; real Oracle drivers do not agree on a common
// Go error type the way lib/pq or go-sql-driver/mysql do, so matching on
// the well-known message prefix is the portable approach.
var oraCodePattern = regexp.MustCompile(`ORA-(\d{5})`)

// MapErrorCode translates the leading ORA-NNNNN code found in a driver
// error's message into the closed taxonomy.
func (OracleAdapter) MapErrorCode(err error) ErrorCode {
	if code, ok := fromAssertion(err); ok {
		return code
	}
	if err == nil {
		return UNKNOWN
	}
	m := oraCodePattern.FindStringSubmatch(err.Error())
	if m == nil {
		return UNKNOWN
	}
	switch m[1] {
	case "00001": // unique constraint violated
		return INSERT_DUPLICATE
	case "02291": // integrity constraint violated - parent key not found
		return INSERT_MISSING_FK
	}
	return UNKNOWN
}

// Rebind converts $N bindvars into sequential ":1".. Oracle bindvars.
func (OracleAdapter) Rebind(query string) string {
	out := make([]byte, 0, len(query))
	n := 0
	for i := 0; i < len(query); i++ {
		c := query[i]
		if c != '$' || i+1 >= len(query) || query[i+1] < '0' || query[i+1] > '9' {
			out = append(out, c)
			continue
		}
		n++
		out = append(out, ':')
		out = append(out, []byte(itoaOracle(n))...)
		i++
		for i < len(query) && query[i] >= '0' && query[i] <= '9' {
			i++
		}
		i--
	}
	return string(out)
}

func itoaOracle(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
