// Copyright (C) 2026 the msl authors.
// See LICENSE for copying information.

package msl_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/outpost-labs/msl"
	"github.com/outpost-labs/msl/msltest"
)

// TestBatchAtomicity covers S4: a batch of preallocations where the
// second entry collides with an already-reserved ID must leave none of
// the batch's other entries persisted either, even though the first
// entry's INSERT by itself would have succeeded.
func TestBatchAtomicity(t *testing.T) {
	msltest.Run(t, func(ctx context.Context, t *testing.T, db *msl.DB, store *msl.Store) {
		taken := msl.NewObjectUUID()
		_, err := store.PreallocateObjectIDs(ctx, msltest.DefaultTenant, []msl.PreallocateIDRequest{
			{ID: taken, Type: objectTypeCustom},
		})
		require.NoError(t, err)

		before, err := store.DebugState(ctx, msltest.DefaultTenant)
		require.NoError(t, err)

		fresh := msl.NewObjectUUID()
		_, err = store.PreallocateObjectIDs(ctx, msltest.DefaultTenant, []msl.PreallocateIDRequest{
			{ID: fresh, Type: objectTypeCustom},
			{ID: taken, Type: objectTypeCustom},
		})
		require.Error(t, err)
		require.True(t, msl.ErrIDAlreadyInUse.Has(err))

		after, err := store.DebugState(ctx, msltest.DefaultTenant)
		require.NoError(t, err)
		require.Equal(t, before, after, "fresh's reservation must not have survived the batch's rollback")
	})
}

// TestConcurrentVersionAppend covers S6: two writers racing to append the
// next version of the same object. Exactly one succeeds; the loser sees
// ErrVersionSuperseded, not ErrPriorVersionMissing, because a prior
// definition did exist - it was simply closed out from under it.
func TestConcurrentVersionAppend(t *testing.T) {
	msltest.Run(t, func(ctx context.Context, t *testing.T, db *msl.DB, store *msl.Store) {
		ts := msltest.Now()
		res := saveOne(ctx, t, store, ts, nil, []byte{0x01})

		const writers = 4
		var wg sync.WaitGroup
		errs := make([]error, writers)
		var start sync.WaitGroup
		start.Add(1)

		for i := 0; i < writers; i++ {
			i := i
			wg.Add(1)
			go func() {
				defer wg.Done()
				start.Wait()
				_, err := store.SaveNewVersions(ctx, msltest.DefaultTenant, []msl.NewVersionRequest{{
					ObjectFK:    res.ObjectFK,
					ObjectType:  objectTypeCustom,
					Timestamp:   ts.Add(time.Duration(i+1) * time.Minute),
					MetaFormat:  msl.MetaFormatProto,
					MetaVersion: msl.MetaVersionCurrent,
					Payload:     []byte{byte(i + 2)},
				}})
				errs[i] = err
			}()
		}
		start.Done()
		wg.Wait()

		var succeeded, superseded int
		for _, err := range errs {
			switch {
			case err == nil:
				succeeded++
			case msl.ErrVersionSuperseded.Has(err):
				superseded++
			default:
				t.Fatalf("unexpected error from concurrent writer: %v", err)
			}
		}
		require.Equal(t, 1, succeeded, "exactly one concurrent append should win")
		require.Equal(t, writers-1, superseded, "every loser should see ErrVersionSuperseded, never ErrPriorVersionMissing")

		latest, err := store.GetTag(ctx, msltest.DefaultTenant, msl.TagSelector{
			ObjectType:      objectTypeCustom,
			ObjectID:        res.UUID,
			ObjectCriterion: msl.Latest(),
			TagCriterion:    msl.Latest(),
		})
		require.NoError(t, err)
		require.Equal(t, msl.Version(2), latest.ObjectVersion)
	})
}

// TestOrderPreservation covers testable property 4: GetTags returns
// results positionally aligned with the request, regardless of any
// internal batch-resolution reordering.
func TestOrderPreservation(t *testing.T) {
	msltest.Run(t, func(ctx context.Context, t *testing.T, db *msl.DB, store *msl.Store) {
		ts := msltest.Now()
		const n = 8
		ids := make([]msl.ObjectUUID, n)
		payloads := make([][]byte, n)
		for i := 0; i < n; i++ {
			res := saveOne(ctx, t, store, ts, nil, []byte{byte(i)})
			ids[i] = res.UUID
			payloads[i] = []byte{byte(i)}
		}

		// Request in reverse order; the response must still line up
		// positionally with this (reversed) request order, not insertion
		// order.
		reqIDs := make([]msl.ObjectUUID, n)
		objectCrits := make([]msl.VersionCriterion, n)
		tagCrits := make([]msl.VersionCriterion, n)
		for i := 0; i < n; i++ {
			reqIDs[i] = ids[n-1-i]
			objectCrits[i] = msl.Latest()
			tagCrits[i] = msl.Latest()
		}

		tags, err := store.GetTags(ctx, msltest.DefaultTenant, objectTypeCustom, reqIDs, objectCrits, tagCrits)
		require.NoError(t, err)
		require.Len(t, tags, n)
		for i := 0; i < n; i++ {
			require.Equal(t, payloads[n-1-i], tags[i].Payload, "position %d", i)
			require.Equal(t, reqIDs[i], tags[i].ObjectUUID, "position %d", i)
		}
	})
}

// TestObjectTenantIsolation covers testable property 5 for objects/tags:
// identical UUIDs under two tenants never cross-observe.
func TestObjectTenantIsolation(t *testing.T) {
	msltest.Run(t, func(ctx context.Context, t *testing.T, db *msl.DB, store *msl.Store) {
		ts := msltest.Now()
		res := saveOne(ctx, t, store, ts, nil, []byte{0x01})

		_, err := store.GetTag(ctx, msltest.DefaultTenant+1, msl.TagSelector{
			ObjectType:      objectTypeCustom,
			ObjectID:        res.UUID,
			ObjectCriterion: msl.Latest(),
			TagCriterion:    msl.Latest(),
		})
		require.Error(t, err)
		require.True(t, msl.ErrObjectNotFound.Has(err))
	})
}

// TestArrayAttrRoundTrip covers testable property 8: an array-valued
// attribute round-trips in element order.
func TestArrayAttrRoundTrip(t *testing.T) {
	msltest.Run(t, func(ctx context.Context, t *testing.T, db *msl.DB, store *msl.Store) {
		ts := msltest.Now()
		attrs := map[string]msl.AttrValue{
			"tags": {Type: msl.AttrString, Array: []interface{}{"alpha", "beta", "gamma"}},
		}
		res := saveOne(ctx, t, store, ts, attrs, []byte{0x01})

		tag, err := store.GetTag(ctx, msltest.DefaultTenant, msl.TagSelector{
			ObjectType:      objectTypeCustom,
			ObjectID:        res.UUID,
			ObjectCriterion: msl.Latest(),
			TagCriterion:    msl.Latest(),
		})
		require.NoError(t, err)
		require.True(t, tag.Attrs["tags"].IsArray())
		require.Equal(t, []interface{}{"alpha", "beta", "gamma"}, tag.Attrs["tags"].Array)
	})
}

// TestPreallocatedObjectRoundTrip covers the preallocated-ID workflow:
// reserve an identity, attach its first definition later, and confirm
// reusing either step correctly is rejected.
func TestPreallocatedObjectRoundTrip(t *testing.T) {
	msltest.Run(t, func(ctx context.Context, t *testing.T, db *msl.DB, store *msl.Store) {
		ts := msltest.Now()
		id := msl.NewObjectUUID()

		objectFKs, err := store.PreallocateObjectIDs(ctx, msltest.DefaultTenant, []msl.PreallocateIDRequest{
			{ID: id, Type: objectTypeCustom},
		})
		require.NoError(t, err)
		require.Len(t, objectFKs, 1)

		_, err = store.PreallocateObjectIDs(ctx, msltest.DefaultTenant, []msl.PreallocateIDRequest{
			{ID: id, Type: objectTypeCustom},
		})
		require.Error(t, err)
		require.True(t, msl.ErrIDAlreadyInUse.Has(err))

		tagPKs, err := store.SavePreallocatedObjects(ctx, msltest.DefaultTenant, []msl.PreallocatedObjectRequest{{
			ObjectFK: objectFKs[0], ObjectType: objectTypeCustom, Timestamp: ts,
			MetaFormat: msl.MetaFormatProto, MetaVersion: msl.MetaVersionCurrent, Payload: []byte{0x01},
		}})
		require.NoError(t, err)
		require.Len(t, tagPKs, 1)

		tag, err := store.GetTag(ctx, msltest.DefaultTenant, msl.TagSelector{
			ObjectType:      objectTypeCustom,
			ObjectID:        id,
			ObjectCriterion: msl.Latest(),
			TagCriterion:    msl.Latest(),
		})
		require.NoError(t, err)
		require.Equal(t, msl.Version(1), tag.ObjectVersion)
		require.Equal(t, []byte{0x01}, tag.Payload)

		_, err = store.SavePreallocatedObjects(ctx, msltest.DefaultTenant, []msl.PreallocatedObjectRequest{{
			ObjectFK: objectFKs[0], ObjectType: objectTypeCustom, Timestamp: ts.Add(time.Minute),
			MetaFormat: msl.MetaFormatProto, MetaVersion: msl.MetaVersionCurrent, Payload: []byte{0x02},
		}})
		require.Error(t, err)
		require.True(t, msl.ErrIDAlreadyInUse.Has(err))
	})
}
