// Copyright (C) 2026 the msl authors.
// See LICENSE for copying information.

package msl

import (
	"context"
	"database/sql"
	"errors"
)

// loadObjectSingle is the low-latency single-item path: four direct
// parameterized queries, no scratch table. A missing row is
// ErrObjectNotFound; more than one row for a query that is supposed to be
// unique is ErrInternal (an invariant violation).
func loadObjectSingle(ctx context.Context, tx *conn, tenant TenantID, sel TagSelector) (Tag, error) {
	objectPK, objectType, err := singleObjectTypeByUUID(ctx, tx, tenant, sel.ObjectID)
	if err != nil {
		return Tag{}, err
	}
	if objectType != sel.ObjectType {
		return Tag{}, ErrWrongObjectType.New("requested %d, stored %d", sel.ObjectType, objectType)
	}

	def, err := singleDefinition(ctx, tx, tenant, objectPK, sel.ObjectCriterion)
	if err != nil {
		return Tag{}, err
	}

	tag, err := singleTag(ctx, tx, tenant, def.PK, sel.TagCriterion)
	if err != nil {
		return Tag{}, err
	}

	attrs, err := singleTagAttrs(ctx, tx, tenant, tag.PK)
	if err != nil {
		return Tag{}, err
	}

	return Tag{
		ObjectType:         objectType,
		ObjectUUID:         sel.ObjectID,
		ObjectVersion:      def.ObjectVersion,
		TagVersion:         tag.TagVersion,
		ObjectTimestamp:    def.Timestamp,
		ObjectSupersededAt: def.SupersededAt,
		IsLatestObject:     def.IsLatest,
		TagTimestamp:       tag.Timestamp,
		TagSupersededAt:    tag.SupersededAt,
		IsLatestTag:        tag.IsLatest,
		MetaFormat:         def.MetaFormat,
		MetaVersion:        def.MetaVersion,
		Payload:            def.Payload,
		Attrs:              attrs,
	}, nil
}

func singleObjectTypeByUUID(ctx context.Context, tx *conn, tenant TenantID, id ObjectUUID) (int64, ObjectType, error) {
	var pk int64
	var ot ObjectType
	row := tx.QueryRowContext(ctx, `SELECT pk, object_type FROM object_id WHERE tenant_id = $1 AND id_hi = $2 AND id_lo = $3`, tenant, hiOf(id), loOf(id))
	if err := row.Scan(&pk, &ot); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, 0, ErrObjectNotFound.Wrap(err)
		}
		return 0, 0, ErrInternal.Wrap(err)
	}
	return pk, ot, nil
}

func singleDefinition(ctx context.Context, tx *conn, tenant TenantID, objectPK int64, crit VersionCriterion) (ObjectDefinition, error) {
	query, args := definitionCriterionQuery(tenant, objectPK, crit)
	var d ObjectDefinition
	row := tx.QueryRowContext(ctx, query, args...)
	if err := row.Scan(&d.PK, &d.ObjectVersion, &d.Timestamp, &d.SupersededAt, &d.IsLatest, &d.MetaFormat, &d.MetaVersion, &d.Payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ObjectDefinition{}, ErrObjectNotFound.Wrap(err)
		}
		return ObjectDefinition{}, ErrInternal.Wrap(err)
	}
	d.TenantID = tenant
	d.ObjectFK = objectPK
	return d, nil
}

func definitionCriterionQuery(tenant TenantID, objectPK int64, crit VersionCriterion) (string, []interface{}) {
	base := `SELECT pk, object_version, timestamp, superseded_at, is_latest, meta_format, meta_version, payload FROM object_definition WHERE tenant_id = $1 AND object_fk = $2`
	switch crit.Kind {
	case CriterionVersion:
		return base + ` AND object_version = $3`, []interface{}{tenant, objectPK, int32(crit.Version)}
	case CriterionAsOf:
		return base + ` AND timestamp <= $3 AND (superseded_at IS NULL OR superseded_at > $4)`, []interface{}{tenant, objectPK, crit.AsOf, crit.AsOf}
	default:
		return base + ` AND is_latest = TRUE`, []interface{}{tenant, objectPK}
	}
}

func singleTag(ctx context.Context, tx *conn, tenant TenantID, definitionPK int64, crit VersionCriterion) (TagRecord, error) {
	base := `SELECT pk, tag_version, timestamp, superseded_at, is_latest, object_type FROM tag WHERE tenant_id = $1 AND definition_fk = $2`
	var query string
	var args []interface{}
	switch crit.Kind {
	case CriterionVersion:
		query = base + ` AND tag_version = $3`
		args = []interface{}{tenant, definitionPK, int32(crit.Version)}
	case CriterionAsOf:
		query = base + ` AND timestamp <= $3 AND (superseded_at IS NULL OR superseded_at > $4)`
		args = []interface{}{tenant, definitionPK, crit.AsOf, crit.AsOf}
	default:
		query = base + ` AND is_latest = TRUE`
		args = []interface{}{tenant, definitionPK}
	}

	var t TagRecord
	row := tx.QueryRowContext(ctx, query, args...)
	if err := row.Scan(&t.PK, &t.TagVersion, &t.Timestamp, &t.SupersededAt, &t.IsLatest, &t.ObjectType); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TagRecord{}, ErrObjectNotFound.Wrap(err)
		}
		return TagRecord{}, ErrInternal.Wrap(err)
	}
	t.TenantID = tenant
	t.DefinitionFK = definitionPK
	return t, nil
}

func singleTagAttrs(ctx context.Context, tx *conn, tenant TenantID, tagPK int64) (map[string]AttrValue, error) {
	query := `
		SELECT attr_name, attr_type, attr_index,
		       attr_value_bool, attr_value_int, attr_value_float,
		       attr_value_string, attr_value_decimal, attr_value_date, attr_value_datetime
		FROM tag_attr WHERE tenant_id = $1 AND tag_fk = $2
		ORDER BY attr_name, attr_index`
	rows, err := tx.QueryContext(ctx, query, tenant, tagPK)
	if err != nil {
		return nil, ErrInternal.Wrap(err)
	}
	defer rows.Close()

	result := make(map[string]AttrValue)
	for rows.Next() {
		var (
			name               string
			typ                string
			index              int32
			vBool              sql.NullBool
			vInt               sql.NullInt64
			vFloat             sql.NullFloat64
			vString, vDecimal  sql.NullString
			vDate, vDatetime   sql.NullTime
		)
		if err := rows.Scan(&name, &typ, &index, &vBool, &vInt, &vFloat, &vString, &vDecimal, &vDate, &vDatetime); err != nil {
			return nil, ErrInternal.Wrap(err)
		}
		value := decodeAttrColumn(AttrPrimitiveType(typ), vBool, vInt, vFloat, vString, vDecimal, vDate, vDatetime)
		if index < 0 {
			result[name] = AttrValue{Type: AttrPrimitiveType(typ), Scalar: value}
			continue
		}
		existing := result[name]
		existing.Type = AttrPrimitiveType(typ)
		existing.Array = append(existing.Array, value)
		result[name] = existing
	}
	return result, rows.Err()
}

// loadConfigEntrySingle composes optional predicates (version, asOf,
// latest); passing no selection criterion at all is a caller error, not a
// silent "any row" match.
func loadConfigEntrySingle(ctx context.Context, tx *conn, tenant TenantID, key ConfigKey, includeDeleted bool) (ConfigEntry, error) {
	if err := key.validate(); err != nil {
		return ConfigEntry{}, err
	}

	query := `SELECT pk, config_version, timestamp, superseded_at, is_latest, is_deleted, meta_format, meta_version, payload
		FROM config_entry WHERE tenant_id = $1 AND config_class = $2 AND config_key = $3`
	args := []interface{}{tenant, key.ConfigClass, key.ConfigKey}

	if key.HasVersion {
		query += ` AND config_version = $` + placeholderIndex(len(args)+1)
		args = append(args, int32(key.Version))
	}
	if key.HasTimestamp {
		query += ` AND timestamp <= $` + placeholderIndex(len(args)+1) + ` AND (superseded_at IS NULL OR superseded_at > $` + placeholderIndex(len(args)+2) + `)`
		args = append(args, key.Timestamp, key.Timestamp)
	}
	if key.Latest {
		query += ` AND is_latest = TRUE`
	}
	if !includeDeleted {
		query += ` AND is_deleted = FALSE`
	}

	var e ConfigEntry
	row := tx.QueryRowContext(ctx, query, args...)
	if err := row.Scan(&e.PK, &e.ConfigVersion, &e.Timestamp, &e.SupersededAt, &e.IsLatest, &e.IsDeleted, &e.MetaFormat, &e.MetaVersion, &e.Payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ConfigEntry{}, ErrConfigNotFound.Wrap(err)
		}
		return ConfigEntry{}, ErrInternal.Wrap(err)
	}
	e.TenantID = tenant
	e.ConfigClass = key.ConfigClass
	e.ConfigKey = key.ConfigKey
	return e, nil
}

func placeholderIndex(n int) string {
	return itoa(n)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func hiOf(id ObjectUUID) int64 {
	hi, _ := uuidHiLo(id.UUID)
	return hi
}

func loOf(id ObjectUUID) int64 {
	_, lo := uuidHiLo(id.UUID)
	return lo
}
