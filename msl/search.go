// Copyright (C) 2026 the msl authors.
// See LICENSE for copying information.

package msl

import (
	"context"

	uuid "github.com/satori/go.uuid"
)

// SearchRequest is a caller-supplied predicate over tag attributes: a WHERE
// clause fragment, authored in "$N" placeholder form like every other
// query in this package, plus its bound arguments. The Facade does not
// validate the fragment's SQL; callers are trusted internal services, not
// external tenants, so this is the one place raw SQL crosses the API
// boundary.
type SearchRequest struct {
	ObjectType ObjectType
	Where      string
	Args       []interface{}
	Limit      int
}

// SearchResult is one matching tag, identified by its ObjectUUID and
// versions rather than the full decoded Tag (callers re-load what they
// need through the normal selector path; search only locates candidates).
type SearchResult struct {
	ObjectUUID    ObjectUUID
	ObjectVersion Version
	TagVersion    Version
}

// search runs req against the latest object definition and latest tag for
// each object of req.ObjectType, capped at the lesser of req.Limit and the
// configured ceiling. A cap of zero or negative falls back to the
// configured default rather than running unbounded.
func search(ctx context.Context, tx *conn, tenant TenantID, cfg Config, req SearchRequest) ([]SearchResult, error) {
	limit := req.Limit
	if limit <= 0 || limit > cfg.searchLimit() {
		limit = cfg.searchLimit()
	}

	query := `
		SELECT o.id_hi, o.id_lo, d.object_version, t.tag_version
		FROM object_id o
		JOIN object_definition d ON d.tenant_id = o.tenant_id AND d.object_fk = o.pk AND d.is_latest = TRUE
		JOIN tag t ON t.tenant_id = o.tenant_id AND t.definition_fk = d.pk AND t.is_latest = TRUE
		JOIN tag_attr a ON a.tenant_id = o.tenant_id AND a.tag_fk = t.pk
		WHERE o.tenant_id = $1 AND o.object_type = $2 AND (` + req.Where + `)
		ORDER BY o.pk
		LIMIT $` + itoa(len(req.Args)+3)

	args := append([]interface{}{tenant, int32(req.ObjectType)}, req.Args...)
	args = append(args, limit)
	// req.Where's own placeholders are authored starting at $3 by the
	// caller and the LIMIT placeholder is numbered after them, so the
	// argument order matches both Postgres's numbered binding and the
	// sequential "?" that every other adapter's Rebind pass produces in
	// textual order.

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ErrInternal.Wrap(err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var hi, lo int64
		var r SearchResult
		if err := rows.Scan(&hi, &lo, &r.ObjectVersion, &r.TagVersion); err != nil {
			return nil, ErrInternal.Wrap(err)
		}
		r.ObjectUUID = uuidFromHiLo(hi, lo)
		out = append(out, r)
	}
	return out, rows.Err()
}

// searchConfigKeys returns the latest, non-deleted entries of a
// configClass that match the supplied predicate, ordered by configKey and
// capped the same way search is.
func searchConfigKeys(ctx context.Context, tx *conn, tenant TenantID, cfg Config, configClass, where string, args []interface{}, limit int) ([]ConfigEntry, error) {
	if limit <= 0 || limit > cfg.searchLimit() {
		limit = cfg.searchLimit()
	}

	query := `
		SELECT pk, config_key, config_version, timestamp, superseded_at, is_latest, is_deleted, meta_format, meta_version, payload
		FROM config_entry
		WHERE tenant_id = $1 AND config_class = $2 AND is_latest = TRUE AND is_deleted = FALSE AND (` + where + `)
		ORDER BY config_key
		LIMIT $3`

	fullArgs := append([]interface{}{tenant, configClass}, args...)
	fullArgs = append(fullArgs, limit)

	rows, err := tx.QueryContext(ctx, query, fullArgs...)
	if err != nil {
		return nil, ErrInternal.Wrap(err)
	}
	defer rows.Close()

	var out []ConfigEntry
	for rows.Next() {
		var e ConfigEntry
		if err := rows.Scan(&e.PK, &e.ConfigKey, &e.ConfigVersion, &e.Timestamp, &e.SupersededAt, &e.IsLatest, &e.IsDeleted, &e.MetaFormat, &e.MetaVersion, &e.Payload); err != nil {
			return nil, ErrInternal.Wrap(err)
		}
		e.TenantID = tenant
		e.ConfigClass = configClass
		out = append(out, e)
	}
	return out, rows.Err()
}

func uuidFromHiLo(hi, lo int64) ObjectUUID {
	var b [16]byte
	for i := 7; i >= 0; i-- {
		b[i] = byte(hi)
		hi >>= 8
	}
	for i := 15; i >= 8; i-- {
		b[i] = byte(lo)
		lo >>= 8
	}
	u, _ := uuid.FromBytes(b[:])
	return ObjectUUID{UUID: u}
}
