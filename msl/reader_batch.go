// Copyright (C) 2026 the msl authors.
// See LICENSE for copying information.

package msl

import (
	"context"
	"database/sql"

	"github.com/outpost-labs/msl/dialect"
)

// batchReader resolves list-valued requests through the key-mapping
// scratch, preserving input order. Every entry point returns an array the
// same length as its input, positionally aligned with it.
type batchReader struct {
	conn    *conn
	adapter dialect.Adapter
	scratch *scratch
}

func newBatchReader(c *conn, adapter dialect.Adapter) *batchReader {
	return &batchReader{conn: c, adapter: adapter, scratch: newScratch(c, adapter)}
}

// resolvedObject is one row of readObjectTypeByID's result.
type resolvedObject struct {
	pk   int64
	typ  ObjectType
	found bool
}

// readObjectTypeByID returns object PKs + objectType for each requested
// UUID, positionally aligned. The caller is responsible for asserting
// that each resolved type matches its request.
func (b *batchReader) readObjectTypeByID(ctx context.Context, tenant TenantID, ids []ObjectUUID) ([]resolvedObject, error) {
	stage := b.scratch.nextStage()
	if err := b.scratch.insertIDs(ctx, stage, ids); err != nil {
		return nil, ErrInternal.Wrap(err)
	}

	query := `
		SELECT km.ordering, o.pk, o.object_type
		FROM ` + b.adapter.MappingTableName() + ` km
		LEFT JOIN object_id o ON o.tenant_id = $1 AND o.id_hi = km.id_hi AND o.id_lo = km.id_lo
		WHERE km.mapping_stage = $2
		ORDER BY km.ordering`
	rows, err := b.conn.QueryContext(ctx, query, tenant, stage)
	if err != nil {
		return nil, ErrInternal.Wrap(err)
	}
	defer rows.Close()

	out := make([]resolvedObject, len(ids))
	seen := 0
	for rows.Next() {
		var ordering int
		var pk sql.NullInt64
		var typ sql.NullInt64
		if err := rows.Scan(&ordering, &pk, &typ); err != nil {
			return nil, ErrInternal.Wrap(err)
		}
		if ordering < 0 || ordering >= len(out) {
			return nil, ErrInternal.New("readObjectTypeByID: ordering %d out of range", ordering)
		}
		out[ordering] = resolvedObject{pk: pk.Int64, typ: ObjectType(typ.Int64), found: pk.Valid}
		seen++
	}
	if err := rows.Err(); err != nil {
		return nil, ErrInternal.Wrap(err)
	}
	if seen != len(ids) {
		return nil, ErrInternal.New("readObjectTypeByID: expected %d rows, scratch returned %d", len(ids), seen)
	}
	return out, nil
}

// readDefinitions resolves one ObjectDefinition per (objectPK, criterion)
// pair, positionally aligned, dispatching to the appropriate §4.3
// resolution pattern per criterion kind. All selectors in one call must
// share the same CriterionKind (GetTags passes its caller's criteria
// through unchanged, so a mixed batch is rejected by resolveVersioned).
func (b *batchReader) readDefinitions(ctx context.Context, tenant TenantID, objectPKs []int64, crits []VersionCriterion) ([]ObjectDefinition, []bool, error) {
	pks, found, err := b.resolveVersioned(ctx, tenant, "object_definition", "object_fk", "object_version", objectPKs, crits)
	if err != nil {
		return nil, nil, err
	}
	defs, err := b.fetchDefinitionsByPK(ctx, tenant, pks, found)
	return defs, found, err
}

// readTags resolves one TagRecord per (definitionPK, criterion) pair.
func (b *batchReader) readTags(ctx context.Context, tenant TenantID, definitionPKs []int64, crits []VersionCriterion) ([]TagRecord, []bool, error) {
	pks, found, err := b.resolveVersioned(ctx, tenant, "tag", "definition_fk", "tag_version", definitionPKs, crits)
	if err != nil {
		return nil, nil, err
	}
	tags, err := b.fetchTagsByPK(ctx, tenant, pks, found)
	return tags, found, err
}

// resolveVersioned is the shared scratch-driven resolution used by both
// readDefinitions and readTags: insert the parent FKs (plus explicit
// version, when requested) then join through whichever §4.3 pattern the
// criteria call for.
func (b *batchReader) resolveVersioned(ctx context.Context, tenant TenantID, table, parentFKCol, versionCol string, fks []int64, crits []VersionCriterion) ([]int64, []bool, error) {
	if len(fks) != len(crits) {
		return nil, nil, ErrInternal.New("resolveVersioned: mismatched lengths %d/%d", len(fks), len(crits))
	}
	if len(fks) == 0 {
		return nil, nil, nil
	}

	kind := crits[0].Kind
	for _, c := range crits {
		if c.Kind != kind {
			return nil, nil, ErrInternal.New("resolveVersioned: mixed criterion kinds in one batch")
		}
	}

	stage := b.scratch.nextStage()

	var results []sql.NullInt64
	var err error
	switch kind {
	case CriterionVersion:
		vers := make([]Version, len(crits))
		for i, c := range crits {
			vers[i] = c.Version
		}
		if err := b.scratch.insertFKVer(ctx, stage, fks, vers); err != nil {
			return nil, nil, ErrInternal.Wrap(err)
		}
		results, err = b.scratch.resolveByVersion(ctx, stage, tenant, table, parentFKCol, versionCol)
	case CriterionLatest:
		if err := b.scratch.insertFKs(ctx, stage, fks); err != nil {
			return nil, nil, ErrInternal.Wrap(err)
		}
		results, err = b.scratch.resolveByLatest(ctx, stage, tenant, table, parentFKCol)
	case CriterionAsOf:
		if err := b.scratch.insertFKs(ctx, stage, fks); err != nil {
			return nil, nil, ErrInternal.Wrap(err)
		}
		// All requests in this batch must share one as-of instant for the
		// single-query join to apply; a batch with differing instants is
		// rejected, the same way a batch with mixed kinds is.
		for _, c := range crits {
			if !c.AsOf.Equal(crits[0].AsOf) {
				return nil, nil, ErrInternal.New("resolveVersioned: mixed as-of instants in one batch")
			}
		}
		results, err = b.scratch.resolveByAsOf(ctx, stage, tenant, table, parentFKCol, crits[0].AsOf)
	}
	if err != nil {
		return nil, nil, ErrInternal.Wrap(err)
	}
	if len(results) != len(fks) {
		return nil, nil, ErrInternal.New("resolveVersioned: expected %d rows, got %d", len(fks), len(results))
	}

	pks := make([]int64, len(results))
	found := make([]bool, len(results))
	for i, r := range results {
		pks[i] = r.Int64
		found[i] = r.Valid
	}
	return pks, found, nil
}

func (b *batchReader) fetchDefinitionsByPK(ctx context.Context, tenant TenantID, pks []int64, found []bool) ([]ObjectDefinition, error) {
	out := make([]ObjectDefinition, len(pks))
	if len(pks) == 0 {
		return out, nil
	}
	stage := b.scratch.nextStage()
	if err := b.scratch.insertPKs(ctx, stage, pks); err != nil {
		return nil, ErrInternal.Wrap(err)
	}
	query := `
		SELECT km.ordering, d.pk, d.object_fk, d.object_version, d.timestamp, d.superseded_at, d.is_latest, d.meta_format, d.meta_version, d.payload
		FROM ` + b.adapter.MappingTableName() + ` km
		JOIN object_definition d ON d.tenant_id = $1 AND d.pk = km.pk
		WHERE km.mapping_stage = $2
		ORDER BY km.ordering`
	rows, err := b.conn.QueryContext(ctx, query, tenant, stage)
	if err != nil {
		return nil, ErrInternal.Wrap(err)
	}
	defer rows.Close()

	seen := 0
	for rows.Next() {
		var ordering int
		var d ObjectDefinition
		if err := rows.Scan(&ordering, &d.PK, &d.ObjectFK, &d.ObjectVersion, &d.Timestamp, &d.SupersededAt, &d.IsLatest, &d.MetaFormat, &d.MetaVersion, &d.Payload); err != nil {
			return nil, ErrInvalidObjectDefinition.Wrap(err)
		}
		d.TenantID = tenant
		out[ordering] = d
		seen++
	}
	if err := rows.Err(); err != nil {
		return nil, ErrInternal.Wrap(err)
	}
	if wantFound(found) != seen {
		return nil, ErrInternal.New("fetchDefinitionsByPK: expected %d rows, got %d", wantFound(found), seen)
	}
	return out, nil
}

func (b *batchReader) fetchTagsByPK(ctx context.Context, tenant TenantID, pks []int64, found []bool) ([]TagRecord, error) {
	out := make([]TagRecord, len(pks))
	if len(pks) == 0 {
		return out, nil
	}
	stage := b.scratch.nextStage()
	if err := b.scratch.insertPKs(ctx, stage, pks); err != nil {
		return nil, ErrInternal.Wrap(err)
	}
	query := `
		SELECT km.ordering, t.pk, t.definition_fk, t.tag_version, t.timestamp, t.superseded_at, t.is_latest, t.object_type
		FROM ` + b.adapter.MappingTableName() + ` km
		JOIN tag t ON t.tenant_id = $1 AND t.pk = km.pk
		WHERE km.mapping_stage = $2
		ORDER BY km.ordering`
	rows, err := b.conn.QueryContext(ctx, query, tenant, stage)
	if err != nil {
		return nil, ErrInternal.Wrap(err)
	}
	defer rows.Close()

	seen := 0
	for rows.Next() {
		var ordering int
		var t TagRecord
		if err := rows.Scan(&ordering, &t.PK, &t.DefinitionFK, &t.TagVersion, &t.Timestamp, &t.SupersededAt, &t.IsLatest, &t.ObjectType); err != nil {
			return nil, ErrInternal.Wrap(err)
		}
		t.TenantID = tenant
		out[ordering] = t
		seen++
	}
	if err := rows.Err(); err != nil {
		return nil, ErrInternal.Wrap(err)
	}
	if wantFound(found) != seen {
		return nil, ErrInternal.New("fetchTagsByPK: expected %d rows, got %d", wantFound(found), seen)
	}
	return out, nil
}

// readTagAttrsBatch resolves attribute maps for every tag PK, order
// preserved.
func (b *batchReader) readTagAttrsBatch(ctx context.Context, tenant TenantID, tagPKs []int64) ([]map[string]AttrValue, error) {
	out := make([]map[string]AttrValue, len(tagPKs))
	if len(tagPKs) == 0 {
		return out, nil
	}
	stage := b.scratch.nextStage()
	if err := b.scratch.insertPKs(ctx, stage, tagPKs); err != nil {
		return nil, ErrInternal.Wrap(err)
	}
	byPK, err := readTagAttrs(ctx, b.conn, b.adapter.MappingTableName(), tenant, stage, tagPKs)
	if err != nil {
		return nil, ErrInternal.Wrap(err)
	}
	for i, pk := range tagPKs {
		if m, ok := byPK[pk]; ok {
			out[i] = m
		} else {
			out[i] = map[string]AttrValue{}
		}
	}
	return out, nil
}

func wantFound(found []bool) int {
	n := 0
	for _, f := range found {
		if f {
			n++
		}
	}
	return n
}
