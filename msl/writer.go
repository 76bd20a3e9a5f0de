// Copyright (C) 2026 the msl authors.
// See LICENSE for copying information.

package msl

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/zeebo/errs"

	"github.com/outpost-labs/msl/dialect"
)

// batchWriter applies the append-only write primitives: new objects, new
// definition versions, new tag versions, and the two preallocated-ID entry
// points used when an object's identity is minted by a caller ahead of the
// definition that will occupy it. Every "new version" primitive follows the
// same close-prior-latest-then-insert sequence so exactly one row per group
// key carries is_latest = true at any instant.
type batchWriter struct {
	conn    *conn
	adapter dialect.Adapter
}

func newBatchWriter(c *conn, adapter dialect.Adapter) *batchWriter {
	return &batchWriter{conn: c, adapter: adapter}
}

// newObjectInput is one object to mint an identity for.
type newObjectInput struct {
	ID   ObjectUUID
	Type ObjectType
}

// saveNewObjects inserts fresh object_id rows and returns their primary
// keys, positionally aligned with in. A UUID already on file for this
// tenant is ErrDuplicateObjectID.
func (w *batchWriter) saveNewObjects(ctx context.Context, tenant TenantID, in []newObjectInput) ([]int64, error) {
	pks := make([]int64, len(in))
	for i, obj := range in {
		hi, lo := uuidHiLo(obj.ID.UUID)
		pk, err := w.insertObjectID(ctx, tenant, hi, lo, obj.Type)
		if err != nil {
			return nil, err
		}
		pks[i] = pk
	}
	return pks, nil
}

// savePreallocatedIds inserts object_id rows for UUIDs a caller has already
// generated (and possibly already communicated downstream) without yet
// attaching a definition. Reusing an ID already on file is
// ErrIDAlreadyInUse; the distinction from saveNewObjects exists purely to
// give the caller a sharper error for the "someone already consumed this
// preallocated ID" case.
func (w *batchWriter) savePreallocatedIds(ctx context.Context, tenant TenantID, in []newObjectInput) ([]int64, error) {
	pks := make([]int64, len(in))
	for i, obj := range in {
		hi, lo := uuidHiLo(obj.ID.UUID)
		pk, err := w.insertObjectID(ctx, tenant, hi, lo, obj.Type)
		if err != nil {
			if ErrDuplicateObjectID.Has(err) {
				return nil, ErrIDAlreadyInUse.Wrap(err)
			}
			return nil, err
		}
		pks[i] = pk
	}
	return pks, nil
}

func (w *batchWriter) insertObjectID(ctx context.Context, tenant TenantID, hi, lo int64, objectType ObjectType) (int64, error) {
	if w.adapter.SupportsGeneratedKeys() {
		var pk int64
		row := w.conn.QueryRowContext(ctx,
			`INSERT INTO object_id (tenant_id, id_hi, id_lo, object_type) VALUES ($1, $2, $3, $4) RETURNING pk`,
			tenant, hi, lo, int32(objectType))
		if err := row.Scan(&pk); err != nil {
			return 0, mapWriteError(w.adapter, err, ErrDuplicateObjectID)
		}
		return pk, nil
	}

	res, err := w.conn.ExecContext(ctx,
		`INSERT INTO object_id (tenant_id, id_hi, id_lo, object_type) VALUES ($1, $2, $3, $4)`,
		tenant, hi, lo, int32(objectType))
	if err != nil {
		return 0, mapWriteError(w.adapter, err, ErrDuplicateObjectID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, ErrInternal.Wrap(err)
	}
	if n != 1 {
		return 0, ErrInternal.Wrap(dialect.NewAssertion(dialect.UNKNOWN, "insertObjectID: expected 1 row affected, got "+itoa(int(n))))
	}

	var pk int64
	row := w.conn.QueryRowContext(ctx,
		`SELECT pk FROM object_id WHERE tenant_id = $1 AND id_hi = $2 AND id_lo = $3`, tenant, hi, lo)
	if err := row.Scan(&pk); err != nil {
		return 0, ErrInternal.Wrap(err)
	}
	return pk, nil
}

// newDefinitionInput is one version to append onto an object. ObjectType is
// the caller's claimed type for the object; saveNewVersions and
// savePreallocatedObjects verify it against the type recorded on the
// object_id row before writing anything.
type newDefinitionInput struct {
	ObjectFK    int64
	ObjectType  ObjectType
	Timestamp   time.Time
	MetaFormat  int32
	MetaVersion int32
	Payload     []byte
}

// saveNewObjectsWithDefinitions preallocates identities and their first
// definition version in one pass, for the common "create" path where the
// caller never needs a bare identity without content.
func (w *batchWriter) saveNewObjectsWithDefinitions(ctx context.Context, tenant TenantID, objs []newObjectInput, defs []newDefinitionInput) ([]int64, []int64, error) {
	if len(objs) != len(defs) {
		return nil, nil, ErrInternal.New("saveNewObjectsWithDefinitions: mismatched lengths %d/%d", len(objs), len(defs))
	}
	objectPKs, err := w.saveNewObjects(ctx, tenant, objs)
	if err != nil {
		return nil, nil, err
	}
	defPKs := make([]int64, len(defs))
	for i, d := range defs {
		d.ObjectFK = objectPKs[i]
		pk, err := w.appendDefinition(ctx, tenant, d, Version(1))
		if err != nil {
			return nil, nil, err
		}
		defPKs[i] = pk
	}
	return objectPKs, defPKs, nil
}

// saveNewVersions appends a new, numerically-increasing version onto an
// existing object, closing the prior latest row first. ErrWrongObjectType if
// the object identity is on file under a different type than the caller
// claims; ErrPriorVersionMissing if the object has no definition rows at all
// yet (the caller should have used the object-creation path instead).
func (w *batchWriter) saveNewVersions(ctx context.Context, tenant TenantID, defs []newDefinitionInput) ([]int64, error) {
	pks := make([]int64, len(defs))
	for i, d := range defs {
		if err := w.checkObjectType(ctx, tenant, d.ObjectFK, d.ObjectType); err != nil {
			return nil, err
		}

		prior, err := w.closeLatestDefinition(ctx, tenant, d.ObjectFK, d.Timestamp)
		if err != nil {
			return nil, err
		}
		pk, err := w.appendDefinition(ctx, tenant, d, prior+1)
		if err != nil {
			return nil, err
		}
		pks[i] = pk
	}
	return pks, nil
}

// checkObjectType resolves the type recorded on the object_id row for
// objectFK, if one exists, and compares it against claimed.
// ErrWrongObjectType on a mismatch. An objectFK with no object_id row at all
// is left alone here; closeLatestDefinition raises ErrPriorVersionMissing for
// that case.
func (w *batchWriter) checkObjectType(ctx context.Context, tenant TenantID, objectFK int64, claimed ObjectType) error {
	recorded, found, err := w.objectType(ctx, tenant, objectFK)
	if err != nil {
		return err
	}
	if found && recorded != claimed {
		return ErrWrongObjectType.New("object %d: requested %d, recorded %d", objectFK, claimed, recorded)
	}
	return nil
}

// objectType looks up the type recorded on the object_id row for objectFK.
// found is false when no such identity exists for this tenant.
func (w *batchWriter) objectType(ctx context.Context, tenant TenantID, objectFK int64) (typ ObjectType, found bool, err error) {
	row := w.conn.QueryRowContext(ctx,
		`SELECT object_type FROM object_id WHERE tenant_id = $1 AND pk = $2`, tenant, objectFK)
	if err := row.Scan(&typ); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, ErrInternal.Wrap(err)
	}
	return typ, true, nil
}

// closeLatestDefinition marks the current latest definition row superseded
// and returns its version number, so the caller knows what version to
// assign the new row. If no row at all exists for objectFK this is
// ErrPriorVersionMissing (the caller should have created the object
// first); if rows exist but none is currently latest, a concurrent writer
// already closed it first and this is ErrVersionSuperseded (see S6 and
// testable property 2) — the caller's retry will see the new latest.
func (w *batchWriter) closeLatestDefinition(ctx context.Context, tenant TenantID, objectFK int64, timestamp time.Time) (Version, error) {
	var version Version
	row := w.conn.QueryRowContext(ctx,
		`SELECT object_version FROM object_definition WHERE tenant_id = $1 AND object_fk = $2 AND is_latest = TRUE`,
		tenant, objectFK)
	if err := row.Scan(&version); err != nil {
		exists, existsErr := w.definitionExists(ctx, tenant, objectFK)
		if existsErr != nil {
			return 0, existsErr
		}
		if !exists {
			return 0, ErrPriorVersionMissing.Wrap(err)
		}
		return 0, ErrVersionSuperseded.Wrap(err)
	}

	res, err := w.conn.ExecContext(ctx,
		`UPDATE object_definition SET is_latest = FALSE, superseded_at = $1 WHERE tenant_id = $2 AND object_fk = $3 AND is_latest = TRUE`,
		timestamp, tenant, objectFK)
	if err != nil {
		return 0, ErrInternal.Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, ErrInternal.Wrap(err)
	}
	switch {
	case n == 1:
		return version, nil
	case n == 0:
		// A concurrent transaction closed this row between our SELECT and
		// our UPDATE.
		return 0, ErrVersionSuperseded.New("object %d version %d already closed", objectFK, version)
	default:
		return 0, ErrInternal.Wrap(dialect.NewAssertion(dialect.UNKNOWN, "closeLatestDefinition: expected 1 row affected, got "+itoa(int(n))))
	}
}

func (w *batchWriter) definitionExists(ctx context.Context, tenant TenantID, objectFK int64) (bool, error) {
	var exists bool
	row := w.conn.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM object_definition WHERE tenant_id = $1 AND object_fk = $2)`,
		tenant, objectFK)
	if err := row.Scan(&exists); err != nil {
		return false, ErrInternal.Wrap(err)
	}
	return exists, nil
}

func (w *batchWriter) appendDefinition(ctx context.Context, tenant TenantID, d newDefinitionInput, version Version) (int64, error) {
	if len(d.Payload) == 0 {
		return 0, ErrInvalidObjectDefinition.New("empty payload for object %d version %d", d.ObjectFK, version)
	}
	if w.adapter.SupportsGeneratedKeys() {
		var pk int64
		row := w.conn.QueryRowContext(ctx,
			`INSERT INTO object_definition (tenant_id, object_fk, object_version, timestamp, is_latest, meta_format, meta_version, payload)
			 VALUES ($1, $2, $3, $4, TRUE, $5, $6, $7) RETURNING pk`,
			tenant, d.ObjectFK, int32(version), d.Timestamp, d.MetaFormat, d.MetaVersion, d.Payload)
		if err := row.Scan(&pk); err != nil {
			return 0, mapWriteError(w.adapter, err, ErrInvalidObjectDefinition)
		}
		return pk, nil
	}
	if _, err := w.conn.ExecContext(ctx,
		`INSERT INTO object_definition (tenant_id, object_fk, object_version, timestamp, is_latest, meta_format, meta_version, payload)
		 VALUES ($1, $2, $3, $4, TRUE, $5, $6, $7)`,
		tenant, d.ObjectFK, int32(version), d.Timestamp, d.MetaFormat, d.MetaVersion, d.Payload); err != nil {
		return 0, mapWriteError(w.adapter, err, ErrInvalidObjectDefinition)
	}
	var pk int64
	row := w.conn.QueryRowContext(ctx,
		`SELECT pk FROM object_definition WHERE tenant_id = $1 AND object_fk = $2 AND object_version = $3`,
		tenant, d.ObjectFK, int32(version))
	if err := row.Scan(&pk); err != nil {
		return 0, ErrInternal.Wrap(err)
	}
	return pk, nil
}

// newTagInput is one tag version to append onto a definition.
type newTagInput struct {
	DefinitionFK int64
	ObjectType   ObjectType
	Timestamp    time.Time
	Attrs        map[string]AttrValue
}

// saveNewTags appends a first tag version onto a freshly-created
// definition (no prior tag exists to close).
func (w *batchWriter) saveNewTags(ctx context.Context, tenant TenantID, tags []newTagInput) ([]int64, error) {
	pks := make([]int64, len(tags))
	for i, t := range tags {
		pk, err := w.appendTag(ctx, tenant, t, Version(1))
		if err != nil {
			return nil, err
		}
		if err := w.insertTagAttrs(ctx, tenant, pk, t.Attrs); err != nil {
			return nil, err
		}
		pks[i] = pk
	}
	return pks, nil
}

// saveNewTagVersions closes each definition's current latest tag and
// appends a new one, mirroring saveNewVersions at the tag level.
// ErrWrongObjectType if a tag already on file for the definition recorded a
// different object type than the caller claims now; ErrPriorTagMissing if no
// tag exists yet for a definition.
func (w *batchWriter) saveNewTagVersions(ctx context.Context, tenant TenantID, tags []newTagInput) ([]int64, error) {
	pks := make([]int64, len(tags))
	for i, t := range tags {
		if err := w.checkTagObjectType(ctx, tenant, t.DefinitionFK, t.ObjectType); err != nil {
			return nil, err
		}

		prior, err := w.closeLatestTag(ctx, tenant, t.DefinitionFK, t.Timestamp)
		if err != nil {
			return nil, err
		}
		pk, err := w.appendTag(ctx, tenant, t, prior+1)
		if err != nil {
			return nil, err
		}
		if err := w.insertTagAttrs(ctx, tenant, pk, t.Attrs); err != nil {
			return nil, err
		}
		pks[i] = pk
	}
	return pks, nil
}

// closeLatestTag mirrors closeLatestDefinition's distinction between a
// definition that never had a tag (ErrPriorTagMissing) and one whose tag
// was already closed by a concurrent writer (ErrTagSuperseded).
func (w *batchWriter) closeLatestTag(ctx context.Context, tenant TenantID, definitionFK int64, timestamp time.Time) (Version, error) {
	var version Version
	row := w.conn.QueryRowContext(ctx,
		`SELECT tag_version FROM tag WHERE tenant_id = $1 AND definition_fk = $2 AND is_latest = TRUE`,
		tenant, definitionFK)
	if err := row.Scan(&version); err != nil {
		exists, existsErr := w.tagExists(ctx, tenant, definitionFK)
		if existsErr != nil {
			return 0, existsErr
		}
		if !exists {
			return 0, ErrPriorTagMissing.Wrap(err)
		}
		return 0, ErrTagSuperseded.Wrap(err)
	}

	res, err := w.conn.ExecContext(ctx,
		`UPDATE tag SET is_latest = FALSE, superseded_at = $1 WHERE tenant_id = $2 AND definition_fk = $3 AND is_latest = TRUE`,
		timestamp, tenant, definitionFK)
	if err != nil {
		return 0, ErrInternal.Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, ErrInternal.Wrap(err)
	}
	switch {
	case n == 1:
		return version, nil
	case n == 0:
		return 0, ErrTagSuperseded.New("definition %d tag version %d already closed", definitionFK, version)
	default:
		return 0, ErrInternal.Wrap(dialect.NewAssertion(dialect.UNKNOWN, "closeLatestTag: expected 1 row affected, got "+itoa(int(n))))
	}
}

// checkTagObjectType compares claimed against the object type recorded on
// the current latest tag row for definitionFK, if one exists. A definition
// with no tag yet is left alone here; closeLatestTag raises ErrPriorTagMissing
// for that case.
func (w *batchWriter) checkTagObjectType(ctx context.Context, tenant TenantID, definitionFK int64, claimed ObjectType) error {
	var recorded ObjectType
	row := w.conn.QueryRowContext(ctx,
		`SELECT object_type FROM tag WHERE tenant_id = $1 AND definition_fk = $2 AND is_latest = TRUE`,
		tenant, definitionFK)
	if err := row.Scan(&recorded); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return ErrInternal.Wrap(err)
	}
	if recorded != claimed {
		return ErrWrongObjectType.New("definition %d: requested %d, recorded %d", definitionFK, claimed, recorded)
	}
	return nil
}

func (w *batchWriter) tagExists(ctx context.Context, tenant TenantID, definitionFK int64) (bool, error) {
	var exists bool
	row := w.conn.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM tag WHERE tenant_id = $1 AND definition_fk = $2)`,
		tenant, definitionFK)
	if err := row.Scan(&exists); err != nil {
		return false, ErrInternal.Wrap(err)
	}
	return exists, nil
}

func (w *batchWriter) appendTag(ctx context.Context, tenant TenantID, t newTagInput, version Version) (int64, error) {
	if w.adapter.SupportsGeneratedKeys() {
		var pk int64
		row := w.conn.QueryRowContext(ctx,
			`INSERT INTO tag (tenant_id, definition_fk, tag_version, timestamp, is_latest, object_type)
			 VALUES ($1, $2, $3, $4, TRUE, $5) RETURNING pk`,
			tenant, t.DefinitionFK, int32(version), t.Timestamp, int32(t.ObjectType))
		if err := row.Scan(&pk); err != nil {
			return 0, ErrInternal.Wrap(err)
		}
		return pk, nil
	}
	if _, err := w.conn.ExecContext(ctx,
		`INSERT INTO tag (tenant_id, definition_fk, tag_version, timestamp, is_latest, object_type) VALUES ($1, $2, $3, $4, TRUE, $5)`,
		tenant, t.DefinitionFK, int32(version), t.Timestamp, int32(t.ObjectType)); err != nil {
		return 0, ErrInternal.Wrap(err)
	}
	var pk int64
	row := w.conn.QueryRowContext(ctx,
		`SELECT pk FROM tag WHERE tenant_id = $1 AND definition_fk = $2 AND tag_version = $3`,
		tenant, t.DefinitionFK, int32(version))
	if err := row.Scan(&pk); err != nil {
		return 0, ErrInternal.Wrap(err)
	}
	return pk, nil
}

func (w *batchWriter) insertTagAttrs(ctx context.Context, tenant TenantID, tagPK int64, attrs map[string]AttrValue) error {
	rows, err := encodeAttrs(tagPK, attrs)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	stmt, err := w.conn.PrepareContext(ctx, `
		INSERT INTO tag_attr (tenant_id, tag_fk, attr_name, attr_type, attr_index,
			attr_value_bool, attr_value_int, attr_value_float, attr_value_string, attr_value_decimal, attr_value_date, attr_value_datetime)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`)
	if err != nil {
		return ErrInternal.Wrap(err)
	}
	defer stmt.Close()

	for _, r := range rows {
		vBool, vInt, vFloat, vString, vDecimal, vDate, vDatetime, err := attrInsertColumns(r.Type, r.Value)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, tenant, tagPK, r.Name, string(r.Type), r.Index,
			vBool, vInt, vFloat, vString, vDecimal, vDate, vDatetime); err != nil {
			return ErrInternal.Wrap(err)
		}
	}
	return nil
}

// savePreallocatedObjects attaches a first definition (and its first tag)
// onto object identities that were already minted via savePreallocatedIds.
// ErrIDNotPreallocated if objectFK does not correspond to any object_id row
// on file; ErrWrongObjectType if it does but was minted under a different
// type than the caller claims now. An objectFK that already carries a
// definition is ErrIDAlreadyInUse, not the generic ErrInvalidObjectDefinition
// a bare unique-constraint hit would otherwise surface.
func (w *batchWriter) savePreallocatedObjects(ctx context.Context, tenant TenantID, defs []newDefinitionInput, tags []newTagInput) ([]int64, []int64, error) {
	if len(defs) != len(tags) {
		return nil, nil, ErrInternal.New("savePreallocatedObjects: mismatched lengths %d/%d", len(defs), len(tags))
	}
	defPKs := make([]int64, len(defs))
	tagPKs := make([]int64, len(tags))
	for i, d := range defs {
		recorded, found, err := w.objectType(ctx, tenant, d.ObjectFK)
		if err != nil {
			return nil, nil, err
		}
		if !found {
			return nil, nil, ErrIDNotPreallocated.New("object %d: no preallocated identity on file", d.ObjectFK)
		}
		if recorded != d.ObjectType {
			return nil, nil, ErrWrongObjectType.New("object %d: requested %d, recorded %d", d.ObjectFK, d.ObjectType, recorded)
		}

		exists, err := w.definitionExists(ctx, tenant, d.ObjectFK)
		if err != nil {
			return nil, nil, err
		}
		if exists {
			return nil, nil, ErrIDAlreadyInUse.New("object %d already has a definition", d.ObjectFK)
		}

		pk, err := w.appendDefinition(ctx, tenant, d, Version(1))
		if err != nil {
			return nil, nil, err
		}
		defPKs[i] = pk

		t := tags[i]
		t.DefinitionFK = pk
		tagPK, err := w.appendTag(ctx, tenant, t, Version(1))
		if err != nil {
			return nil, nil, err
		}
		if err := w.insertTagAttrs(ctx, tenant, tagPK, t.Attrs); err != nil {
			return nil, nil, err
		}
		tagPKs[i] = tagPK
	}
	return defPKs, tagPKs, nil
}

// mapWriteError translates a driver error through the adapter's taxonomy,
// returning dup as the domain error for INSERT_DUPLICATE,
// ErrPriorVersionMissing for INSERT_MISSING_FK, and ErrInternal otherwise.
func mapWriteError(adapter dialect.Adapter, err error, dup errs.Class) error {
	switch adapter.MapErrorCode(err) {
	case dialect.INSERT_DUPLICATE:
		return dup.Wrap(err)
	case dialect.INSERT_MISSING_FK:
		return ErrPriorVersionMissing.Wrap(err)
	default:
		return ErrInternal.Wrap(err)
	}
}
