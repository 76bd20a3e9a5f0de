// Copyright (C) 2026 the msl authors.
// See LICENSE for copying information.

package msl_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/outpost-labs/msl"
	"github.com/outpost-labs/msl/msltest"
)

func saveConfig(ctx context.Context, t *testing.T, store *msl.Store, class, key string, ts time.Time, deleted bool, payload []byte) int64 {
	t.Helper()
	pks, err := store.SaveConfigEntries(ctx, msltest.DefaultTenant, []msl.NewConfigEntryRequest{{
		ConfigClass: class,
		ConfigKey:   key,
		Timestamp:   ts,
		MetaFormat:  msl.MetaFormatProto,
		MetaVersion: msl.MetaVersionCurrent,
		Payload:     payload,
		Deleted:     deleted,
	}})
	require.NoError(t, err)
	require.Len(t, pks, 1)
	return pks[0]
}

// TestConfigUpdateDeleteResurrect covers S5 and testable property 6: a
// config key updated, soft-deleted, then resurrected with a new payload.
func TestConfigUpdateDeleteResurrect(t *testing.T) {
	msltest.Run(t, func(ctx context.Context, t *testing.T, db *msl.DB, store *msl.Store) {
		t1 := msltest.Now()
		t2 := t1.Add(time.Minute)
		t3 := t1.Add(2 * time.Minute)

		saveConfig(ctx, t, store, "c", "k", t1, false, []byte("v1"))

		list, err := store.ListConfigEntries(ctx, msltest.DefaultTenant, "c", false)
		require.NoError(t, err)
		require.Len(t, list, 1)

		saveConfig(ctx, t, store, "c", "k", t2, true, []byte("v2"))

		listAfterDelete, err := store.ListConfigEntries(ctx, msltest.DefaultTenant, "c", false)
		require.NoError(t, err)
		require.Empty(t, listAfterDelete)

		listAfterDeleteIncl, err := store.ListConfigEntries(ctx, msltest.DefaultTenant, "c", true)
		require.NoError(t, err)
		require.Len(t, listAfterDeleteIncl, 1)
		require.True(t, listAfterDeleteIncl[0].IsDeleted)

		v2, err := store.LoadConfigEntry(ctx, msltest.DefaultTenant, msl.ConfigKey{ConfigClass: "c", ConfigKey: "k", HasVersion: true, Version: 2}, true)
		require.NoError(t, err)
		require.True(t, v2.IsDeleted)

		saveConfig(ctx, t, store, "c", "k", t3, false, []byte("v3"))

		latest, err := store.LoadConfigEntry(ctx, msltest.DefaultTenant, msl.ConfigKey{ConfigClass: "c", ConfigKey: "k", Latest: true}, false)
		require.NoError(t, err)
		require.Equal(t, msl.Version(3), latest.ConfigVersion)
		require.Equal(t, []byte("v3"), latest.Payload)
		require.False(t, latest.IsDeleted)

		listFinal, err := store.ListConfigEntries(ctx, msltest.DefaultTenant, "c", true)
		require.NoError(t, err)
		require.Len(t, listFinal, 1)
		require.Equal(t, msl.Version(3), listFinal[0].ConfigVersion)
	})
}

// TestConfigClassNotFound covers Open Question (a): a class with zero
// entries at all is distinct from a class whose only entries are deleted.
func TestConfigClassNotFound(t *testing.T) {
	msltest.Run(t, func(ctx context.Context, t *testing.T, db *msl.DB, store *msl.Store) {
		_, err := store.ListConfigEntries(ctx, msltest.DefaultTenant, "never-seen", false)
		require.Error(t, err)
		require.True(t, msl.ErrConfigClassNotFound.Has(err))
	})
}

// TestConfigMultiCriterionAgreement covers testable property 7: a
// ConfigKey with both version and timestamp must agree on one row.
func TestConfigMultiCriterionAgreement(t *testing.T) {
	msltest.Run(t, func(ctx context.Context, t *testing.T, db *msl.DB, store *msl.Store) {
		t1 := msltest.Now()
		t2 := t1.Add(time.Minute)
		saveConfig(ctx, t, store, "c", "k", t1, false, []byte("v1"))
		saveConfig(ctx, t, store, "c", "k", t2, false, []byte("v2"))

		agree, err := store.LoadConfigEntry(ctx, msltest.DefaultTenant, msl.ConfigKey{
			ConfigClass: "c", ConfigKey: "k",
			HasVersion: true, Version: 2,
			HasTimestamp: true, Timestamp: t2,
		}, false)
		require.NoError(t, err)
		require.Equal(t, msl.Version(2), agree.ConfigVersion)

		_, err = store.LoadConfigEntry(ctx, msltest.DefaultTenant, msl.ConfigKey{
			ConfigClass: "c", ConfigKey: "k",
			HasVersion: true, Version: 1,
			HasTimestamp: true, Timestamp: t2,
		}, false)
		require.Error(t, err)
		require.True(t, msl.ErrConfigNotFound.Has(err))
	})
}

// TestConfigTenantIsolation covers testable property 5 for config
// entries: identical (class, key) under two tenants never cross-observe.
func TestConfigTenantIsolation(t *testing.T) {
	msltest.Run(t, func(ctx context.Context, t *testing.T, db *msl.DB, store *msl.Store) {
		ts := msltest.Now()
		saveConfig(ctx, t, store, "c", "k", ts, false, []byte("tenant-a"))

		_, err := store.LoadConfigEntry(ctx, msltest.DefaultTenant+1, msl.ConfigKey{ConfigClass: "c", ConfigKey: "k", Latest: true}, false)
		require.Error(t, err)
		require.True(t, msl.ErrConfigNotFound.Has(err))
	})
}
