// Copyright (C) 2026 the msl authors.
// See LICENSE for copying information.

package msl

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/outpost-labs/msl/dialect"
)

// configWriter appends and supersedes config_entry rows under the same
// close-then-insert discipline as object/tag versions, plus a soft-delete
// flag that object/tag rows do not carry.
type configWriter struct {
	conn    *conn
	adapter dialect.Adapter
}

func newConfigWriter(c *conn, adapter dialect.Adapter) *configWriter {
	return &configWriter{conn: c, adapter: adapter}
}

type NewConfigEntryRequest struct {
	ConfigClass string
	ConfigKey   string
	Timestamp   time.Time
	MetaFormat  int32
	MetaVersion int32
	Payload     []byte
	Deleted     bool
}

// saveConfigEntries appends one new version per entry, closing whatever
// is currently latest for the same (configClass, configKey). Requests
// carry no version: each new row is numbered one past the current latest
// (version 1 when no prior row exists), so there is no version gap to
// detect and ErrPriorConfigMissing is not raised here. Deleting and
// immediately recreating the same key is legal: a new latest row with
// Deleted=false after a Deleted=true row simply resurrects it.
func (w *configWriter) saveConfigEntries(ctx context.Context, tenant TenantID, entries []NewConfigEntryRequest) ([]int64, error) {
	pks := make([]int64, len(entries))
	for i, e := range entries {
		version, err := w.closeLatestConfig(ctx, tenant, e.ConfigClass, e.ConfigKey, e.Timestamp)
		if err != nil {
			return nil, err
		}
		pk, err := w.insertConfig(ctx, tenant, e, version+1)
		if err != nil {
			return nil, err
		}
		pks[i] = pk
	}
	return pks, nil
}

// closeLatestConfig returns (0, nil) when no prior row exists (so the
// caller assigns version 1), distinguishing "no prior row" from a SQL
// error. ErrDuplicateConfig never originates here; it is raised by the
// unique constraint on the INSERT itself.
func (w *configWriter) closeLatestConfig(ctx context.Context, tenant TenantID, class, key string, timestamp time.Time) (Version, error) {
	var version Version
	row := w.conn.QueryRowContext(ctx,
		`SELECT config_version FROM config_entry WHERE tenant_id = $1 AND config_class = $2 AND config_key = $3 AND is_latest = TRUE`,
		tenant, class, key)
	if err := row.Scan(&version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, ErrInternal.Wrap(err)
	}

	res, err := w.conn.ExecContext(ctx,
		`UPDATE config_entry SET is_latest = FALSE, superseded_at = $1 WHERE tenant_id = $2 AND config_class = $3 AND config_key = $4 AND is_latest = TRUE`,
		timestamp, tenant, class, key)
	if err != nil {
		return 0, ErrInternal.Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, ErrInternal.Wrap(err)
	}
	if n != 1 {
		return 0, ErrInternal.New("closeLatestConfig: expected 1 row affected, got %d", n)
	}
	return version, nil
}

func (w *configWriter) insertConfig(ctx context.Context, tenant TenantID, e NewConfigEntryRequest, version Version) (int64, error) {
	if w.adapter.SupportsGeneratedKeys() {
		var pk int64
		row := w.conn.QueryRowContext(ctx, `
			INSERT INTO config_entry (tenant_id, config_class, config_key, config_version, timestamp, is_latest, is_deleted, meta_format, meta_version, payload)
			VALUES ($1, $2, $3, $4, $5, TRUE, $6, $7, $8, $9) RETURNING pk`,
			tenant, e.ConfigClass, e.ConfigKey, int32(version), e.Timestamp, e.Deleted, e.MetaFormat, e.MetaVersion, e.Payload)
		if err := row.Scan(&pk); err != nil {
			return 0, mapWriteError(w.adapter, err, ErrDuplicateConfig)
		}
		return pk, nil
	}

	if _, err := w.conn.ExecContext(ctx, `
		INSERT INTO config_entry (tenant_id, config_class, config_key, config_version, timestamp, is_latest, is_deleted, meta_format, meta_version, payload)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6, $7, $8, $9)`,
		tenant, e.ConfigClass, e.ConfigKey, int32(version), e.Timestamp, e.Deleted, e.MetaFormat, e.MetaVersion, e.Payload); err != nil {
		return 0, mapWriteError(w.adapter, err, ErrDuplicateConfig)
	}
	var pk int64
	row := w.conn.QueryRowContext(ctx,
		`SELECT pk FROM config_entry WHERE tenant_id = $1 AND config_class = $2 AND config_key = $3 AND config_version = $4`,
		tenant, e.ConfigClass, e.ConfigKey, int32(version))
	if err := row.Scan(&pk); err != nil {
		return 0, ErrInternal.Wrap(err)
	}
	return pk, nil
}

// listConfigEntries returns the latest entry of every key in a
// configClass, ordered by configKey; soft-deleted latest entries are
// omitted unless includeDeleted is set. A class with no rows at all is
// ErrConfigClassNotFound; a class whose latest entries are all
// soft-deleted returns an empty list when includeDeleted is false.
func listConfigEntries(ctx context.Context, tx *conn, tenant TenantID, configClass string, includeDeleted bool) ([]ConfigEntry, error) {
	query := `SELECT pk, config_key, config_version, timestamp, superseded_at, is_latest, is_deleted, meta_format, meta_version, payload
		FROM config_entry WHERE tenant_id = $1 AND config_class = $2 AND is_latest = TRUE`
	if !includeDeleted {
		query += ` AND is_deleted = FALSE`
	}
	query += ` ORDER BY config_key`

	rows, err := tx.QueryContext(ctx, query, tenant, configClass)
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
	if err := rows.Err(); err != nil {
		return nil, ErrInternal.Wrap(err)
	}
	if len(out) == 0 {
		exists, err := configClassHasAnyEntry(ctx, tx, tenant, configClass)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, ErrConfigClassNotFound.New("%s", configClass)
		}
	}
	return out, nil
}

func configClassHasAnyEntry(ctx context.Context, tx *conn, tenant TenantID, configClass string) (bool, error) {
	var exists bool
	row := tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM config_entry WHERE tenant_id = $1 AND config_class = $2)`,
		tenant, configClass)
	if err := row.Scan(&exists); err != nil {
		return false, ErrInternal.Wrap(err)
	}
	return exists, nil
}
