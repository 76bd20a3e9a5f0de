// Copyright (C) 2026 the msl authors.
// See LICENSE for copying information.

package msl

import (
	"context"
	"time"

	"go.uber.org/zap"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"

	"github.com/outpost-labs/msl/dialect"
)

var mon = monkit.Package()

// Store is the Facade: the one type application code talks to. Every
// exported method opens its own transaction (batch methods prepare the
// key-mapping scratch table first), runs to completion, and commits or
// rolls back before returning — no method leaves a transaction open
// across a call boundary.
type Store struct {
	log     *zap.Logger
	db      *DB
	tenants *TenantRegistry
	config  Config
}

// NewStore constructs a Store. Call db.Start and tenants.Start before
// the Store is used.
func NewStore(log *zap.Logger, db *DB, tenants *TenantRegistry, config Config) *Store {
	return &Store{log: log, db: db, tenants: tenants, config: config}
}

// ResolveTenant looks up a tenant code through the registry.
func (s *Store) ResolveTenant(code string) (TenantID, error) {
	return s.tenants.GetTenantID(code)
}

// Start loads the tenant registry synchronously and opens the connection
// pool. Failure is ErrStartup.
func (s *Store) Start(ctx context.Context) error {
	if err := s.db.Start(); err != nil {
		return err
	}
	conn, err := s.db.sqlDB.Conn(ctx)
	if err != nil {
		return ErrStartup.Wrap(err)
	}
	defer conn.Close()
	return s.tenants.Start(ctx, conn)
}

// Stop closes the connection pool.
func (s *Store) Stop() error {
	return s.db.Stop()
}

// ListTenants returns every registered tenant's (code, description).
func (s *Store) ListTenants() []Tenant {
	return s.tenants.ListTenants()
}

// GetTag loads a single tag by selector (defer mon.Task()(&ctx)(&err)).
func (s *Store) GetTag(ctx context.Context, tenant TenantID, sel TagSelector) (tag Tag, err error) {
	defer mon.Task()(&ctx)(&err)

	return tag, s.withTx(ctx, tenant, false, func(c *conn, adapter interface{}) error {
		t, err := loadObjectSingle(ctx, c, tenant, sel)
		if err != nil {
			return err
		}
		tag = t
		return nil
	})
}

// GetTags loads a batch of tags by selector, one per entry in sels,
// positionally aligned. All selectors must agree on CriterionKind for
// both the object and tag criterion (the batch reader resolves one kind
// per call), and CriterionAsOf selectors must also share one instant;
// mixed batches are rejected and should be split by the caller.
func (s *Store) GetTags(ctx context.Context, tenant TenantID, objectType ObjectType, ids []ObjectUUID, objectCrits, tagCrits []VersionCriterion) (tags []Tag, err error) {
	defer mon.Task()(&ctx)(&err)

	err = s.withTxAdapter(ctx, tenant, true, func(c *conn, adapter dialect.Adapter) error {
		br := newBatchReader(c, adapter)

		resolved, err := br.readObjectTypeByID(ctx, tenant, ids)
		if err != nil {
			return err
		}
		objectPKs := make([]int64, len(resolved))
		for i, r := range resolved {
			if !r.found {
				return ErrObjectNotFound.New("uuid %s", ids[i].UUID.String())
			}
			if r.typ != objectType {
				return ErrWrongObjectType.New("requested %d, stored %d", objectType, r.typ)
			}
			objectPKs[i] = r.pk
		}

		defs, defsFound, err := br.readDefinitions(ctx, tenant, objectPKs, objectCrits)
		if err != nil {
			return err
		}
		for i, found := range defsFound {
			if !found {
				return ErrObjectNotFound.New("uuid %s: no object definition matches the requested criterion", ids[i].UUID.String())
			}
		}
		defPKs := make([]int64, len(defs))
		for i, d := range defs {
			defPKs[i] = d.PK
		}

		tagRecs, tagsFound, err := br.readTags(ctx, tenant, defPKs, tagCrits)
		if err != nil {
			return err
		}
		for i, found := range tagsFound {
			if !found {
				return ErrObjectNotFound.New("uuid %s: no tag matches the requested criterion", ids[i].UUID.String())
			}
		}
		tagPKs := make([]int64, len(tagRecs))
		for i, t := range tagRecs {
			tagPKs[i] = t.PK
		}

		attrs, err := br.readTagAttrsBatch(ctx, tenant, tagPKs)
		if err != nil {
			return err
		}

		tags = make([]Tag, len(ids))
		for i := range ids {
			tags[i] = Tag{
				ObjectType:         objectType,
				ObjectUUID:         ids[i],
				ObjectVersion:      defs[i].ObjectVersion,
				TagVersion:         tagRecs[i].TagVersion,
				ObjectTimestamp:    defs[i].Timestamp,
				ObjectSupersededAt: defs[i].SupersededAt,
				IsLatestObject:     defs[i].IsLatest,
				TagTimestamp:       tagRecs[i].Timestamp,
				TagSupersededAt:    tagRecs[i].SupersededAt,
				IsLatestTag:        tagRecs[i].IsLatest,
				MetaFormat:         defs[i].MetaFormat,
				MetaVersion:        defs[i].MetaVersion,
				Payload:            defs[i].Payload,
				Attrs:              attrs[i],
			}
		}
		return nil
	})
	return tags, err
}

// LoadPriorObjects batch-loads historical (non-latest) object definitions:
// objectCrits must each be CriterionVersion or CriterionAsOf, never
// CriterionLatest — use GetTags for the latest-row path. The distinction
// exists in the taxonomy because a "prior" selector that happens to resolve
// to the current latest row is still a legitimate as-of/version query, but a
// batch that mixes prior and latest criteria cannot share one scratch
// resolution pass (§4.3); callers must partition their selectors by kind
// before calling either entry point.
func (s *Store) LoadPriorObjects(ctx context.Context, tenant TenantID, objectType ObjectType, ids []ObjectUUID, objectCrits, tagCrits []VersionCriterion) (tags []Tag, err error) {
	defer mon.Task()(&ctx)(&err)

	for _, c := range objectCrits {
		if c.Kind == CriterionLatest {
			return nil, ErrInvalidRequest.New("LoadPriorObjects: objectCrits must not be CriterionLatest")
		}
	}
	return s.GetTags(ctx, tenant, objectType, ids, objectCrits, tagCrits)
}

// LoadPriorTags batch-loads historical (non-latest) tag versions of
// otherwise-current objects: tagCrits must each be CriterionVersion or
// CriterionAsOf. See LoadPriorObjects for why this is a distinct entry
// point rather than an implicit mode of GetTags.
func (s *Store) LoadPriorTags(ctx context.Context, tenant TenantID, objectType ObjectType, ids []ObjectUUID, objectCrits, tagCrits []VersionCriterion) (tags []Tag, err error) {
	defer mon.Task()(&ctx)(&err)

	for _, c := range tagCrits {
		if c.Kind == CriterionLatest {
			return nil, ErrInvalidRequest.New("LoadPriorTags: tagCrits must not be CriterionLatest")
		}
	}
	return s.GetTags(ctx, tenant, objectType, ids, objectCrits, tagCrits)
}

// NewObjectRequest is one object + first definition + first tag to create
// together in one call.
type NewObjectRequest struct {
	Type        ObjectType
	Timestamp   time.Time
	MetaFormat  int32
	MetaVersion int32
	Payload     []byte
	Attrs       map[string]AttrValue
}

// NewObjectResult carries the minted identity back to the caller.
type NewObjectResult struct {
	UUID         ObjectUUID
	ObjectFK     int64
	DefinitionFK int64
	TagFK        int64
}

// CreateObjects mints fresh identities and their first definition+tag,
// all in one transaction. Either every object in the batch is created or
// none are.
func (s *Store) CreateObjects(ctx context.Context, tenant TenantID, reqs []NewObjectRequest) (results []NewObjectResult, err error) {
	defer mon.Task()(&ctx)(&err)

	err = s.withTxAdapter(ctx, tenant, false, func(c *conn, adapter dialect.Adapter) error {
		r, err := createObjectsTx(ctx, c, adapter, tenant, reqs)
		if err != nil {
			return err
		}
		results = r
		return nil
	})
	return results, err
}

// createObjectsTx is the transaction-scoped body shared by CreateObjects and
// SaveBatchUpdate's newObjects sublist.
func createObjectsTx(ctx context.Context, c *conn, adapter dialect.Adapter, tenant TenantID, reqs []NewObjectRequest) ([]NewObjectResult, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	writer := newBatchWriter(c, adapter)

	ids := make([]ObjectUUID, len(reqs))
	objs := make([]newObjectInput, len(reqs))
	defs := make([]newDefinitionInput, len(reqs))
	for i, r := range reqs {
		ids[i] = NewObjectUUID()
		objs[i] = newObjectInput{ID: ids[i], Type: r.Type}
		defs[i] = newDefinitionInput{ObjectType: r.Type, Timestamp: r.Timestamp, MetaFormat: r.MetaFormat, MetaVersion: r.MetaVersion, Payload: r.Payload}
	}

	objectPKs, defPKs, err := writer.saveNewObjectsWithDefinitions(ctx, tenant, objs, defs)
	if err != nil {
		return nil, err
	}

	tags := make([]newTagInput, len(reqs))
	for i, r := range reqs {
		tags[i] = newTagInput{DefinitionFK: defPKs[i], ObjectType: r.Type, Timestamp: r.Timestamp, Attrs: r.Attrs}
	}
	tagPKs, err := writer.saveNewTags(ctx, tenant, tags)
	if err != nil {
		return nil, err
	}

	results := make([]NewObjectResult, len(reqs))
	for i := range reqs {
		results[i] = NewObjectResult{UUID: ids[i], ObjectFK: objectPKs[i], DefinitionFK: defPKs[i], TagFK: tagPKs[i]}
	}
	return results, nil
}

// PreallocateIDRequest mints a bare object identity with no content yet,
// for callers that hand out the UUID before the definition it will
// eventually carry is ready.
type PreallocateIDRequest struct {
	ID   ObjectUUID
	Type ObjectType
}

// PreallocateObjectIDs reserves identities without attaching any
// definition. Reusing an ID already on file is ErrIDAlreadyInUse rather
// than the ErrDuplicateObjectID CreateObjects' fresh-UUID path would never
// otherwise hit.
func (s *Store) PreallocateObjectIDs(ctx context.Context, tenant TenantID, reqs []PreallocateIDRequest) (objectFKs []int64, err error) {
	defer mon.Task()(&ctx)(&err)

	err = s.withTxAdapter(ctx, tenant, false, func(c *conn, adapter dialect.Adapter) error {
		pks, err := preallocateObjectIDsTx(ctx, c, adapter, tenant, reqs)
		if err != nil {
			return err
		}
		objectFKs = pks
		return nil
	})
	return objectFKs, err
}

// preallocateObjectIDsTx is the transaction-scoped body shared by
// PreallocateObjectIDs and SaveBatchUpdate's preallocIds sublist.
func preallocateObjectIDsTx(ctx context.Context, c *conn, adapter dialect.Adapter, tenant TenantID, reqs []PreallocateIDRequest) ([]int64, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	writer := newBatchWriter(c, adapter)
	objs := make([]newObjectInput, len(reqs))
	for i, r := range reqs {
		objs[i] = newObjectInput{ID: r.ID, Type: r.Type}
	}
	return writer.savePreallocatedIds(ctx, tenant, objs)
}

// PreallocatedObjectRequest attaches the first definition+tag onto an
// identity previously reserved through PreallocateObjectIDs.
type PreallocatedObjectRequest struct {
	ObjectFK    int64
	ObjectType  ObjectType
	Timestamp   time.Time
	MetaFormat  int32
	MetaVersion int32
	Payload     []byte
	Attrs       map[string]AttrValue
}

// SavePreallocatedObjects attaches the first version onto each identity in
// the batch, all in one transaction. ErrIDAlreadyInUse if an objectFK
// already carries a definition.
func (s *Store) SavePreallocatedObjects(ctx context.Context, tenant TenantID, reqs []PreallocatedObjectRequest) (tagPKs []int64, err error) {
	defer mon.Task()(&ctx)(&err)

	err = s.withTxAdapter(ctx, tenant, false, func(c *conn, adapter dialect.Adapter) error {
		pks, err := savePreallocatedObjectsTx(ctx, c, adapter, tenant, reqs)
		if err != nil {
			return err
		}
		tagPKs = pks
		return nil
	})
	return tagPKs, err
}

// savePreallocatedObjectsTx is the transaction-scoped body shared by
// SavePreallocatedObjects and SaveBatchUpdate's preallocObjects sublist.
func savePreallocatedObjectsTx(ctx context.Context, c *conn, adapter dialect.Adapter, tenant TenantID, reqs []PreallocatedObjectRequest) ([]int64, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	writer := newBatchWriter(c, adapter)

	defs := make([]newDefinitionInput, len(reqs))
	tags := make([]newTagInput, len(reqs))
	for i, r := range reqs {
		defs[i] = newDefinitionInput{ObjectFK: r.ObjectFK, ObjectType: r.ObjectType, Timestamp: r.Timestamp, MetaFormat: r.MetaFormat, MetaVersion: r.MetaVersion, Payload: r.Payload}
		tags[i] = newTagInput{ObjectType: r.ObjectType, Timestamp: r.Timestamp, Attrs: r.Attrs}
	}
	_, pks, err := writer.savePreallocatedObjects(ctx, tenant, defs, tags)
	if err != nil {
		return nil, err
	}
	return pks, nil
}

// NewVersionRequest appends a new definition+tag version onto an existing
// object, addressed by its objectFK (resolved by the caller via GetTag or
// GetTags ahead of time).
type NewVersionRequest struct {
	ObjectFK    int64
	ObjectType  ObjectType
	Timestamp   time.Time
	MetaFormat  int32
	MetaVersion int32
	Payload     []byte
	Attrs       map[string]AttrValue
}

// SaveNewVersions closes the prior-latest definition for each object and
// appends a new definition carrying its own first tag, all in one
// transaction. The prior definition's tags are left as they are.
func (s *Store) SaveNewVersions(ctx context.Context, tenant TenantID, reqs []NewVersionRequest) (tagPKs []int64, err error) {
	defer mon.Task()(&ctx)(&err)

	err = s.withTxAdapter(ctx, tenant, false, func(c *conn, adapter dialect.Adapter) error {
		pks, err := saveNewVersionsTx(ctx, c, adapter, tenant, reqs)
		if err != nil {
			return err
		}
		tagPKs = pks
		return nil
	})
	return tagPKs, err
}

// saveNewVersionsTx is the transaction-scoped body shared by SaveNewVersions
// and SaveBatchUpdate's newVersions sublist.
func saveNewVersionsTx(ctx context.Context, c *conn, adapter dialect.Adapter, tenant TenantID, reqs []NewVersionRequest) ([]int64, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	writer := newBatchWriter(c, adapter)

	defs := make([]newDefinitionInput, len(reqs))
	for i, r := range reqs {
		defs[i] = newDefinitionInput{ObjectFK: r.ObjectFK, ObjectType: r.ObjectType, Timestamp: r.Timestamp, MetaFormat: r.MetaFormat, MetaVersion: r.MetaVersion, Payload: r.Payload}
	}
	defPKs, err := writer.saveNewVersions(ctx, tenant, defs)
	if err != nil {
		return nil, err
	}

	tags := make([]newTagInput, len(reqs))
	for i, r := range reqs {
		tags[i] = newTagInput{DefinitionFK: defPKs[i], ObjectType: r.ObjectType, Timestamp: r.Timestamp, Attrs: r.Attrs}
	}
	return writer.saveNewTags(ctx, tenant, tags)
}

// NewTagRequest appends a new tag version onto an existing definition
// without changing the object's version — the "re-tag the same content"
// operation, distinct from SaveNewVersions which appends a new definition
// too.
type NewTagRequest struct {
	DefinitionFK int64
	ObjectType   ObjectType
	Timestamp    time.Time
	Attrs        map[string]AttrValue
}

// SaveNewTags closes the prior-latest tag for each definition and appends a
// new one, all in one transaction. ErrPriorTagMissing if a definition has
// no tag yet at all; ErrTagSuperseded if a concurrent writer closed it
// first (see S6 and testable property 2 at the tag level).
func (s *Store) SaveNewTags(ctx context.Context, tenant TenantID, reqs []NewTagRequest) (tagPKs []int64, err error) {
	defer mon.Task()(&ctx)(&err)

	err = s.withTxAdapter(ctx, tenant, false, func(c *conn, adapter dialect.Adapter) error {
		pks, err := saveNewTagsTx(ctx, c, adapter, tenant, reqs)
		if err != nil {
			return err
		}
		tagPKs = pks
		return nil
	})
	return tagPKs, err
}

// saveNewTagsTx is the transaction-scoped body shared by SaveNewTags and
// SaveBatchUpdate's newTags sublist.
func saveNewTagsTx(ctx context.Context, c *conn, adapter dialect.Adapter, tenant TenantID, reqs []NewTagRequest) ([]int64, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	writer := newBatchWriter(c, adapter)
	tags := make([]newTagInput, len(reqs))
	for i, r := range reqs {
		tags[i] = newTagInput{DefinitionFK: r.DefinitionFK, ObjectType: r.ObjectType, Timestamp: r.Timestamp, Attrs: r.Attrs}
	}
	return writer.saveNewTagVersions(ctx, tenant, tags)
}

// SaveConfigEntries appends one new config version per entry.
func (s *Store) SaveConfigEntries(ctx context.Context, tenant TenantID, entries []NewConfigEntryRequest) (pks []int64, err error) {
	defer mon.Task()(&ctx)(&err)

	err = s.withTx(ctx, tenant, false, func(c *conn, _ interface{}) error {
		p, err := saveConfigEntriesTx(ctx, c, s.db.ChooseAdapter(tenant), tenant, entries)
		if err != nil {
			return err
		}
		pks = p
		return nil
	})
	return pks, err
}

// saveConfigEntriesTx is the transaction-scoped body shared by
// SaveConfigEntries and SaveBatchUpdate's configEntries sublist.
func saveConfigEntriesTx(ctx context.Context, c *conn, adapter dialect.Adapter, tenant TenantID, entries []NewConfigEntryRequest) ([]int64, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	w := newConfigWriter(c, adapter)
	return w.saveConfigEntries(ctx, tenant, entries)
}

// BatchUpdate composes every write primitive into one request; only the
// non-empty sublists run. SaveBatchUpdate executes all of them in a single
// transaction: either every sublist's effects land, or none do.
type BatchUpdate struct {
	PreallocIds     []PreallocateIDRequest
	PreallocObjects []PreallocatedObjectRequest
	NewObjects      []NewObjectRequest
	NewVersions     []NewVersionRequest
	NewTags         []NewTagRequest
	ConfigEntries   []NewConfigEntryRequest
}

// BatchUpdateResult carries the positionally-aligned identities minted or
// affected by each non-empty sublist of the BatchUpdate that produced it.
type BatchUpdateResult struct {
	PreallocatedObjectFKs []int64
	PreallocatedTagPKs    []int64
	NewObjects            []NewObjectResult
	NewVersionTagPKs      []int64
	NewTagPKs             []int64
	ConfigPKs             []int64
}

// SaveBatchUpdate runs preallocIds, preallocObjects, newObjects, newVersions,
// newTags and saveConfigEntries in that order inside one transaction,
// skipping any sublist that is empty. A failure partway through (e.g. a
// duplicate UUID in NewObjects) rolls back every effect already applied by
// earlier sublists in the same call (S4).
func (s *Store) SaveBatchUpdate(ctx context.Context, tenant TenantID, batch BatchUpdate) (result BatchUpdateResult, err error) {
	defer mon.Task()(&ctx)(&err)

	err = s.withTxAdapter(ctx, tenant, false, func(c *conn, adapter dialect.Adapter) error {
		if len(batch.PreallocIds) > 0 {
			pks, err := preallocateObjectIDsTx(ctx, c, adapter, tenant, batch.PreallocIds)
			if err != nil {
				return err
			}
			result.PreallocatedObjectFKs = pks
		}
		if len(batch.PreallocObjects) > 0 {
			pks, err := savePreallocatedObjectsTx(ctx, c, adapter, tenant, batch.PreallocObjects)
			if err != nil {
				return err
			}
			result.PreallocatedTagPKs = pks
		}
		if len(batch.NewObjects) > 0 {
			r, err := createObjectsTx(ctx, c, adapter, tenant, batch.NewObjects)
			if err != nil {
				return err
			}
			result.NewObjects = r
		}
		if len(batch.NewVersions) > 0 {
			pks, err := saveNewVersionsTx(ctx, c, adapter, tenant, batch.NewVersions)
			if err != nil {
				return err
			}
			result.NewVersionTagPKs = pks
		}
		if len(batch.NewTags) > 0 {
			pks, err := saveNewTagsTx(ctx, c, adapter, tenant, batch.NewTags)
			if err != nil {
				return err
			}
			result.NewTagPKs = pks
		}
		if len(batch.ConfigEntries) > 0 {
			pks, err := saveConfigEntriesTx(ctx, c, adapter, tenant, batch.ConfigEntries)
			if err != nil {
				return err
			}
			result.ConfigPKs = pks
		}
		return nil
	})
	return result, err
}

// LoadConfigEntry resolves a single config entry by key.
func (s *Store) LoadConfigEntry(ctx context.Context, tenant TenantID, key ConfigKey, includeDeleted bool) (entry ConfigEntry, err error) {
	defer mon.Task()(&ctx)(&err)

	err = s.withTx(ctx, tenant, false, func(c *conn, _ interface{}) error {
		e, err := loadConfigEntrySingle(ctx, c, tenant, key, includeDeleted)
		if err != nil {
			return err
		}
		entry = e
		return nil
	})
	return entry, err
}

// LoadConfigEntries resolves a batch of config entries by key, positionally
// aligned with keys. Each key is resolved independently (config entries have
// no scratch-batched path in the source; the spec's single-query-per-key
// composition in §4.4 is cheap enough that a per-key loop within one
// transaction satisfies the order-preservation property without a second
// batching mechanism).
func (s *Store) LoadConfigEntries(ctx context.Context, tenant TenantID, keys []ConfigKey, includeDeleted bool) (entries []ConfigEntry, err error) {
	defer mon.Task()(&ctx)(&err)

	err = s.withTx(ctx, tenant, false, func(c *conn, _ interface{}) error {
		out := make([]ConfigEntry, len(keys))
		for i, k := range keys {
			e, err := loadConfigEntrySingle(ctx, c, tenant, k, includeDeleted)
			if err != nil {
				return err
			}
			out[i] = e
		}
		entries = out
		return nil
	})
	return entries, err
}

// ListConfigEntries returns the latest entry of every key in a
// configClass; soft-deleted ones are included only when includeDeleted is
// set.
func (s *Store) ListConfigEntries(ctx context.Context, tenant TenantID, configClass string, includeDeleted bool) (entries []ConfigEntry, err error) {
	defer mon.Task()(&ctx)(&err)

	err = s.withTx(ctx, tenant, false, func(c *conn, _ interface{}) error {
		e, err := listConfigEntries(ctx, c, tenant, configClass, includeDeleted)
		if err != nil {
			return err
		}
		entries = e
		return nil
	})
	return entries, err
}

// Search runs a predicate-based search over the latest tag of every
// object of the given type.
func (s *Store) Search(ctx context.Context, tenant TenantID, req SearchRequest) (results []SearchResult, err error) {
	defer mon.Task()(&ctx)(&err)

	err = s.withTx(ctx, tenant, false, func(c *conn, _ interface{}) error {
		r, err := search(ctx, c, tenant, s.config, req)
		if err != nil {
			return err
		}
		results = r
		return nil
	})
	return results, err
}

// SearchConfigKeys runs a predicate-based search over a configClass's
// live entries.
func (s *Store) SearchConfigKeys(ctx context.Context, tenant TenantID, configClass, where string, args []interface{}, limit int) (entries []ConfigEntry, err error) {
	defer mon.Task()(&ctx)(&err)

	err = s.withTx(ctx, tenant, false, func(c *conn, _ interface{}) error {
		e, err := searchConfigKeys(ctx, c, tenant, s.config, configClass, where, args, limit)
		if err != nil {
			return err
		}
		entries = e
		return nil
	})
	return entries, err
}

// withTx runs fn inside a fresh transaction against tenant's adapter,
// committing on success and rolling back (logging any rollback failure,
// which is informational only) on error. mapping requests the key-mapping
// scratch table be prepared before fn runs.
func (s *Store) withTx(ctx context.Context, tenant TenantID, mapping bool, fn func(c *conn, adapter interface{}) error) error {
	c, err := s.db.beginTx(ctx, mapping)
	if err != nil {
		return err
	}

	if err := fn(c, nil); err != nil {
		if rbErr := c.Rollback(); rbErr != nil {
			s.log.Warn("rollback failed", zap.Error(rbErr))
		}
		return err
	}
	if err := c.Commit(); err != nil {
		return ErrInternal.Wrap(err)
	}
	return nil
}

// withTxAdapter is withTx with the resolved dialect.Adapter threaded to
// fn, for call sites that construct a batchReader/batchWriter.
func (s *Store) withTxAdapter(ctx context.Context, tenant TenantID, mapping bool, fn func(c *conn, adapter dialect.Adapter) error) error {
	adapter := s.db.ChooseAdapter(tenant)
	c, err := s.db.beginTx(ctx, mapping)
	if err != nil {
		return err
	}

	if err := fn(c, adapter); err != nil {
		if rbErr := c.Rollback(); rbErr != nil {
			s.log.Warn("rollback failed", zap.Error(rbErr))
		}
		return err
	}
	if err := c.Commit(); err != nil {
		return ErrInternal.Wrap(err)
	}
	return nil
}
