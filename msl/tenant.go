// Copyright (C) 2026 the msl authors.
// See LICENSE for copying information.

package msl

import (
	"context"
	"database/sql"
	"sync"

	"go.uber.org/zap"
)

// Tenant is an administratively-managed row resolving a tenant code to a
// compact numeric ID. Tenants are never deleted by the MSL.
type Tenant struct {
	ID          TenantID
	Code        string
	Description string
}

// tenantMap is the atomically-swapped, read-mostly snapshot held by the
// registry.
type tenantMap struct {
	byCode map[string]Tenant
	all    []Tenant
}

// TenantRegistry resolves tenant codes to numeric tenant IDs. The full map
// is loaded synchronously on Start and may be refreshed under a short
// critical section; readers always observe either the old or the new full
// map, never a partial one.
type TenantRegistry struct {
	log *zap.Logger

	mu  sync.RWMutex
	cur *tenantMap
}

// NewTenantRegistry constructs a registry; call Start before use.
func NewTenantRegistry(log *zap.Logger) *TenantRegistry {
	return &TenantRegistry{log: log}
}

// Start loads the full code -> tenantID map in a single synchronous call.
// Failure is reported as ErrStartup.
func (r *TenantRegistry) Start(ctx context.Context, conn *sql.Conn) error {
	m, err := r.load(ctx, conn)
	if err != nil {
		return ErrStartup.Wrap(err)
	}
	r.mu.Lock()
	r.cur = m
	r.mu.Unlock()
	return nil
}

// Refresh re-reads the full tenant table and swaps it in atomically.
func (r *TenantRegistry) Refresh(ctx context.Context, conn *sql.Conn) error {
	m, err := r.load(ctx, conn)
	if err != nil {
		return ErrInternal.Wrap(err)
	}
	r.mu.Lock()
	r.cur = m
	r.mu.Unlock()
	return nil
}

func (r *TenantRegistry) load(ctx context.Context, conn *sql.Conn) (*tenantMap, error) {
	rows, err := conn.QueryContext(ctx, `SELECT tenant_id, code, description FROM tenant ORDER BY tenant_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	m := &tenantMap{byCode: make(map[string]Tenant)}
	for rows.Next() {
		var t Tenant
		if err := rows.Scan(&t.ID, &t.Code, &t.Description); err != nil {
			return nil, err
		}
		m.byCode[t.Code] = t
		m.all = append(m.all, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

// GetTenantID resolves a tenant code, or raises ErrTenantNotFound.
func (r *TenantRegistry) GetTenantID(code string) (TenantID, error) {
	r.mu.RLock()
	m := r.cur
	r.mu.RUnlock()
	if m == nil {
		return 0, ErrInternal.New("tenant registry not started")
	}
	t, ok := m.byCode[code]
	if !ok {
		return 0, ErrTenantNotFound.New("%s", code)
	}
	return t.ID, nil
}

// ListTenants returns the full set of (code, description) pairs.
func (r *TenantRegistry) ListTenants() []Tenant {
	r.mu.RLock()
	m := r.cur
	r.mu.RUnlock()
	if m == nil {
		return nil
	}
	out := make([]Tenant, len(m.all))
	copy(out, m.all)
	return out
}
