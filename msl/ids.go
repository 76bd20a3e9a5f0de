// Copyright (C) 2026 the msl authors.
// See LICENSE for copying information.

package msl

import (
	"database/sql/driver"
	"fmt"

	uuid "github.com/satori/go.uuid"
)

// TenantID is the compact internal numeric identifier for a tenant.
type TenantID int32

// ObjectType enumerates the kinds of domain objects the MSL tracks.
// The concrete set of types is defined by the caller's domain; the MSL
// only requires that a type value round-trips and that it matches across
// versions of the same object.
type ObjectType int32

// ObjectUUID identifies an object across all of its versions, independent
// of the tenant-scoped numeric ObjectID primary key.
type ObjectUUID struct {
	uuid.UUID
}

// ParseObjectUUID parses the string form of an object UUID.
func ParseObjectUUID(s string) (ObjectUUID, error) {
	u, err := uuid.FromString(s)
	if err != nil {
		return ObjectUUID{}, ErrInvalidRequest.Wrap(err)
	}
	return ObjectUUID{UUID: u}, nil
}

// NewObjectUUID generates a fresh random object UUID.
func NewObjectUUID() ObjectUUID {
	return ObjectUUID{UUID: uuid.NewV4()}
}

// Value implements driver.Valuer so an ObjectUUID can be bound directly as
// a query parameter.
func (id ObjectUUID) Value() (driver.Value, error) {
	return id.UUID.Bytes(), nil
}

// Scan implements sql.Scanner.
func (id *ObjectUUID) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		u, err := uuid.FromBytes(v)
		if err != nil {
			return err
		}
		id.UUID = u
		return nil
	case string:
		u, err := uuid.FromString(v)
		if err != nil {
			return err
		}
		id.UUID = u
		return nil
	default:
		return fmt.Errorf("msl: cannot scan %T into ObjectUUID", src)
	}
}

// ObjectID is the tenant-scoped row identifying an object across all of
// its versions.
type ObjectID struct {
	PK         int64
	TenantID   TenantID
	ObjectType ObjectType
	UUID       ObjectUUID
}

// Version is a positive, monotonically-assigned version number for either
// an object definition or a tag record.
type Version int32

// Valid reports whether v is a legal version number (positive).
func (v Version) Valid() bool {
	return v > 0
}
