// Copyright (C) 2026 the msl authors.
// See LICENSE for copying information.

package msl

import "context"

// DebugState is a full, unfiltered dump of one tenant's rows, used only by
// white-box tests to assert exact storage-layer state after a write (e.g.
// confirming that closing the prior-latest row and inserting the new one
// left exactly the rows the test expects, nothing more, nothing less).
type DebugState struct {
	Objects     []ObjectID
	Definitions []ObjectDefinition
	Tags        []TagRecord
	ConfigEntries []ConfigEntry
}

// DebugState dumps every row belonging to tenant across all four tables,
// ordered by primary key, for test assertions. It is not meant for
// production call paths: a busy tenant's table contents do not fit
// comfortably in memory, and no caller should be computing business logic
// over a full table scan.
func (s *Store) DebugState(ctx context.Context, tenant TenantID) (state DebugState, err error) {
	defer mon.Task()(&ctx)(&err)

	err = s.withTx(ctx, tenant, false, func(c *conn, _ interface{}) error {
		objs, err := debugObjects(ctx, c, tenant)
		if err != nil {
			return err
		}
		defs, err := debugDefinitions(ctx, c, tenant)
		if err != nil {
			return err
		}
		tags, err := debugTags(ctx, c, tenant)
		if err != nil {
			return err
		}
		cfgs, err := debugConfigEntries(ctx, c, tenant)
		if err != nil {
			return err
		}
		state = DebugState{Objects: objs, Definitions: defs, Tags: tags, ConfigEntries: cfgs}
		return nil
	})
	return state, err
}

func debugObjects(ctx context.Context, c *conn, tenant TenantID) ([]ObjectID, error) {
	rows, err := c.QueryContext(ctx, `SELECT pk, object_type, id_hi, id_lo FROM object_id WHERE tenant_id = $1 ORDER BY pk`, tenant)
	if err != nil {
		return nil, ErrInternal.Wrap(err)
	}
	defer rows.Close()

	var out []ObjectID
	for rows.Next() {
		var o ObjectID
		var hi, lo int64
		if err := rows.Scan(&o.PK, &o.ObjectType, &hi, &lo); err != nil {
			return nil, ErrInternal.Wrap(err)
		}
		o.TenantID = tenant
		o.UUID = uuidFromHiLo(hi, lo)
		out = append(out, o)
	}
	return out, rows.Err()
}

func debugDefinitions(ctx context.Context, c *conn, tenant TenantID) ([]ObjectDefinition, error) {
	rows, err := c.QueryContext(ctx, `
		SELECT pk, object_fk, object_version, timestamp, superseded_at, is_latest, meta_format, meta_version, payload
		FROM object_definition WHERE tenant_id = $1 ORDER BY pk`, tenant)
	if err != nil {
		return nil, ErrInternal.Wrap(err)
	}
	defer rows.Close()

	var out []ObjectDefinition
	for rows.Next() {
		var d ObjectDefinition
		if err := rows.Scan(&d.PK, &d.ObjectFK, &d.ObjectVersion, &d.Timestamp, &d.SupersededAt, &d.IsLatest, &d.MetaFormat, &d.MetaVersion, &d.Payload); err != nil {
			return nil, ErrInternal.Wrap(err)
		}
		d.TenantID = tenant
		out = append(out, d)
	}
	return out, rows.Err()
}

func debugTags(ctx context.Context, c *conn, tenant TenantID) ([]TagRecord, error) {
	rows, err := c.QueryContext(ctx, `
		SELECT pk, definition_fk, tag_version, timestamp, superseded_at, is_latest, object_type
		FROM tag WHERE tenant_id = $1 ORDER BY pk`, tenant)
	if err != nil {
		return nil, ErrInternal.Wrap(err)
	}
	defer rows.Close()

	var out []TagRecord
	for rows.Next() {
		var t TagRecord
		if err := rows.Scan(&t.PK, &t.DefinitionFK, &t.TagVersion, &t.Timestamp, &t.SupersededAt, &t.IsLatest, &t.ObjectType); err != nil {
			return nil, ErrInternal.Wrap(err)
		}
		t.TenantID = tenant
		out = append(out, t)
	}
	return out, rows.Err()
}

func debugConfigEntries(ctx context.Context, c *conn, tenant TenantID) ([]ConfigEntry, error) {
	rows, err := c.QueryContext(ctx, `
		SELECT pk, config_class, config_key, config_version, timestamp, superseded_at, is_latest, is_deleted, meta_format, meta_version, payload
		FROM config_entry WHERE tenant_id = $1 ORDER BY pk`, tenant)
	if err != nil {
		return nil, ErrInternal.Wrap(err)
	}
	defer rows.Close()

	var out []ConfigEntry
	for rows.Next() {
		var e ConfigEntry
		if err := rows.Scan(&e.PK, &e.ConfigClass, &e.ConfigKey, &e.ConfigVersion, &e.Timestamp, &e.SupersededAt, &e.IsLatest, &e.IsDeleted, &e.MetaFormat, &e.MetaVersion, &e.Payload); err != nil {
			return nil, ErrInternal.Wrap(err)
		}
		e.TenantID = tenant
		out = append(out, e)
	}
	return out, rows.Err()
}
