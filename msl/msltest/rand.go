// Copyright (C) 2026 the msl authors.
// See LICENSE for copying information.

package msltest

import (
	"math/rand"

	"github.com/outpost-labs/msl"
)

// RandObjectUUID returns a fresh random object UUID, for tests that need
// an identity guaranteed not to collide with anything already written.
func RandObjectUUID() msl.ObjectUUID {
	return msl.NewObjectUUID()
}

// RandAttrs builds a small, deterministically-shaped attribute map with
// BOOLEAN, INTEGER, FLOAT and STRING scalars plus one STRING array; the
// DECIMAL, DATE and DATETIME types are not generated.
func RandAttrs(r *rand.Rand) map[string]msl.AttrValue {
	return map[string]msl.AttrValue{
		"flag":   {Type: msl.AttrBoolean, Scalar: r.Intn(2) == 0},
		"count":  {Type: msl.AttrInteger, Scalar: int64(r.Intn(1000))},
		"weight": {Type: msl.AttrFloat, Scalar: r.Float64()},
		"label":  {Type: msl.AttrString, Scalar: randString(r, 8)},
		"tags": {Type: msl.AttrString, Array: []interface{}{
			randString(r, 4), randString(r, 4), randString(r, 4),
		}},
	}
}

func randString(r *rand.Rand, n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[r.Intn(len(alphabet))]
	}
	return string(b)
}
