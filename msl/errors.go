// Copyright (C) 2026 the msl authors.
// See LICENSE for copying information.

package msl

import "github.com/zeebo/errs"

// Error classes exposed to callers. Each public operation either returns
// one of these (wrapped with additional context) or ErrInternal.
var (
	// ErrTenantNotFound is returned when a tenant code has no registered ID.
	ErrTenantNotFound = errs.Class("msl: tenant not found")

	// ErrObjectNotFound is returned when a selector resolves to no row.
	ErrObjectNotFound = errs.Class("msl: object not found")

	// ErrWrongObjectType is returned when a request's objectType disagrees
	// with the type recorded for the object.
	ErrWrongObjectType = errs.Class("msl: wrong object type")

	// ErrDuplicateObjectID is returned when a new object's (tenant, uuid)
	// already exists.
	ErrDuplicateObjectID = errs.Class("msl: duplicate object id")

	// ErrIDAlreadyInUse is returned when savePreallocatedObjects targets an
	// object that already has a definition.
	ErrIDAlreadyInUse = errs.Class("msl: id already in use")

	// ErrIDNotPreallocated is returned when savePreallocatedObjects targets
	// an object ID that was never reserved.
	ErrIDNotPreallocated = errs.Class("msl: id not preallocated")

	// ErrPriorVersionMissing is returned by saveNewVersions when the
	// immediately preceding object version does not exist.
	ErrPriorVersionMissing = errs.Class("msl: prior version missing")

	// ErrVersionSuperseded is returned by saveNewVersions when the close of
	// the prior-latest definition row raced with a concurrent writer.
	ErrVersionSuperseded = errs.Class("msl: version superseded")

	// ErrPriorTagMissing is returned by saveNewTags when the immediately
	// preceding tag version does not exist.
	ErrPriorTagMissing = errs.Class("msl: prior tag missing")

	// ErrTagSuperseded is returned by saveNewTags when the close of the
	// prior-latest tag row raced with a concurrent writer.
	ErrTagSuperseded = errs.Class("msl: tag superseded")

	// ErrPriorConfigMissing names a config entry whose predecessor version
	// does not exist. saveConfigEntries assigns each entry's version itself
	// (one past the current latest), so it does not raise this class.
	ErrPriorConfigMissing = errs.Class("msl: prior config version missing")

	// ErrDuplicateConfig is returned when a config entry's
	// (tenant, class, key, version) already exists.
	ErrDuplicateConfig = errs.Class("msl: duplicate config entry")

	// ErrConfigNotFound is returned when a ConfigKey selector resolves to
	// no row, or when supplied criteria disagree on which row they pick.
	ErrConfigNotFound = errs.Class("msl: config entry not found")

	// ErrConfigClassNotFound is returned by listConfigEntries when a
	// configClass has no rows at all.
	ErrConfigClassNotFound = errs.Class("msl: config class not found")

	// ErrInvalidObjectDefinition is returned when a stored object
	// definition payload fails to decode.
	ErrInvalidObjectDefinition = errs.Class("msl: invalid object definition")

	// ErrInvalidConfigEntry is returned when a stored config entry payload
	// fails to decode.
	ErrInvalidConfigEntry = errs.Class("msl: invalid config entry")

	// ErrStartup is returned by Start when tenant loading or dialect setup
	// fails.
	ErrStartup = errs.Class("msl: startup")

	// ErrInvalidRequest is returned for malformed caller input that never
	// reaches the database (e.g. a ConfigKey with no selection criterion).
	ErrInvalidRequest = errs.Class("msl: invalid request")

	// ErrInternal covers unexpected driver errors, invariant violations
	// (short/overlong batch results that are not attributable to a missing
	// ID), and dialect misconfiguration.
	ErrInternal = errs.Class("msl: internal")
)
