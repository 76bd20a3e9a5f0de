// Copyright (C) 2026 the msl authors.
// See LICENSE for copying information.

package msl

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/outpost-labs/msl/dialect"
)

// scratch drives the per-transaction key-mapping relation: every batch
// read translates caller-supplied keys into backing primary keys
// through this ordered, disposable relation instead of issuing one query
// per input. mappingStage is scoped to the scratch instance (one per
// reader/writer instance, effectively one per Facade call) so that a
// single transaction can run several unrelated batch resolutions back to
// back without their rows colliding.
type scratch struct {
	tx      *conn
	adapter dialect.Adapter
	table   string
	stage   int64
}

func newScratch(tx *conn, adapter dialect.Adapter) *scratch {
	return &scratch{tx: tx, adapter: adapter, table: adapter.MappingTableName()}
}

// nextStage allocates a fresh discriminator for one resolution pass.
func (s *scratch) nextStage() int32 {
	return int32(atomic.AddInt64(&s.stage, 1))
}

// insertIDs loads one row per UUID, ordering = i, split into id_hi/id_lo.
func (s *scratch) insertIDs(ctx context.Context, stage int32, ids []ObjectUUID) error {
	stmt, err := s.tx.PrepareContext(ctx, `INSERT INTO `+s.table+` (mapping_stage, ordering, id_hi, id_lo) VALUES ($1, $2, $3, $4)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, id := range ids {
		hi, lo := uuidHiLo(id.UUID)
		if _, err := stmt.ExecContext(ctx, stage, i, hi, lo); err != nil {
			return err
		}
	}
	return nil
}

// insertFKs loads one row per foreign key, ordering = i.
func (s *scratch) insertFKs(ctx context.Context, stage int32, fks []int64) error {
	stmt, err := s.tx.PrepareContext(ctx, `INSERT INTO `+s.table+` (mapping_stage, ordering, fk) VALUES ($1, $2, $3)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, fk := range fks {
		if _, err := stmt.ExecContext(ctx, stage, i, fk); err != nil {
			return err
		}
	}
	return nil
}

// insertPKs loads one row per resolved primary key, ordering = i.
func (s *scratch) insertPKs(ctx context.Context, stage int32, pks []int64) error {
	stmt, err := s.tx.PrepareContext(ctx, `INSERT INTO `+s.table+` (mapping_stage, ordering, pk) VALUES ($1, $2, $3)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, pk := range pks {
		if _, err := stmt.ExecContext(ctx, stage, i, pk); err != nil {
			return err
		}
	}
	return nil
}

// insertFKVer loads paired (fk, version) rows for version lookups.
func (s *scratch) insertFKVer(ctx context.Context, stage int32, fks []int64, vers []Version) error {
	if len(fks) != len(vers) {
		return ErrInternal.New("insertFKVer: mismatched lengths %d/%d", len(fks), len(vers))
	}
	stmt, err := s.tx.PrepareContext(ctx, `INSERT INTO `+s.table+` (mapping_stage, ordering, fk, ver) VALUES ($1, $2, $3, $4)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i := range fks {
		if _, err := stmt.ExecContext(ctx, stage, i, fks[i], int32(vers[i])); err != nil {
			return err
		}
	}
	return nil
}

// resolveByID resolves object_id.pk for each (tenant_id, id_hi, id_lo)
// loaded via insertIDs, then returns the pks in ordering order.
func (s *scratch) resolveByID(ctx context.Context, stage int32, tenant TenantID) ([]sql.NullInt64, error) {
	update := `UPDATE ` + s.table + ` km SET pk = (
		SELECT o.pk FROM object_id o
		WHERE o.tenant_id = $1 AND o.id_hi = km.id_hi AND o.id_lo = km.id_lo
	) WHERE km.mapping_stage = $2`
	if _, err := s.tx.ExecContext(ctx, update, tenant, stage); err != nil {
		return nil, err
	}
	return s.readPKs(ctx, stage)
}

// resolveByVersion resolves pk in `table` for each (tenant_id, parent_fk,
// version) loaded via insertFKVer, where `table` has columns
// (tenant_id, <parentFKCol>, <versionCol>, pk primary key named pk).
func (s *scratch) resolveByVersion(ctx context.Context, stage int32, tenant TenantID, table, parentFKCol, versionCol string) ([]sql.NullInt64, error) {
	update := fmt.Sprintf(
		`UPDATE %s km SET pk = (
			SELECT t.pk FROM %s t
			WHERE t.tenant_id = $1 AND t.%s = km.fk AND t.%s = km.ver
		) WHERE km.mapping_stage = $2`,
		s.table, table, parentFKCol, versionCol)
	if _, err := s.tx.ExecContext(ctx, update, tenant, stage); err != nil {
		return nil, err
	}
	return s.readPKs(ctx, stage)
}

// resolveByLatest resolves pk in `table` for each parent_fk loaded via
// insertFKs, joining on is_latest = true.
func (s *scratch) resolveByLatest(ctx context.Context, stage int32, tenant TenantID, table, parentFKCol string) ([]sql.NullInt64, error) {
	update := fmt.Sprintf(
		`UPDATE %s km SET pk = (
			SELECT t.pk FROM %s t
			WHERE t.tenant_id = $1 AND t.%s = km.fk AND t.is_latest = TRUE
		) WHERE km.mapping_stage = $2`,
		s.table, table, parentFKCol)
	if _, err := s.tx.ExecContext(ctx, update, tenant, stage); err != nil {
		return nil, err
	}
	return s.readPKs(ctx, stage)
}

// resolveByAsOf resolves pk in `table` for each parent_fk loaded via
// insertFKs, picking the row whose [timestamp, supersededAt) interval
// contains asOf.
func (s *scratch) resolveByAsOf(ctx context.Context, stage int32, tenant TenantID, table, parentFKCol string, asOf time.Time) ([]sql.NullInt64, error) {
	update := fmt.Sprintf(
		`UPDATE %s km SET pk = (
			SELECT t.pk FROM %s t
			WHERE t.tenant_id = $1 AND t.%s = km.fk
			  AND t.timestamp <= $2
			  AND (t.superseded_at IS NULL OR t.superseded_at > $3)
		) WHERE km.mapping_stage = $4`,
		s.table, table, parentFKCol)
	if _, err := s.tx.ExecContext(ctx, update, tenant, asOf, asOf, stage); err != nil {
		return nil, err
	}
	return s.readPKs(ctx, stage)
}

func (s *scratch) readPKs(ctx context.Context, stage int32) ([]sql.NullInt64, error) {
	rows, err := s.tx.QueryContext(ctx, `SELECT pk FROM `+s.table+` WHERE mapping_stage = $1 ORDER BY ordering`, stage)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []sql.NullInt64
	for rows.Next() {
		var pk sql.NullInt64
		if err := rows.Scan(&pk); err != nil {
			return nil, err
		}
		out = append(out, pk)
	}
	return out, rows.Err()
}

// uuidHiLo splits a 16-byte UUID into two signed 64-bit halves for
// storage/comparison in the scratch relation and the object_id table.
func uuidHiLo(u interface{ Bytes() []byte }) (hi, lo int64) {
	b := u.Bytes()
	for i := 0; i < 8; i++ {
		hi = hi<<8 | int64(b[i])
	}
	for i := 8; i < 16; i++ {
		lo = lo<<8 | int64(b[i])
	}
	return hi, lo
}
