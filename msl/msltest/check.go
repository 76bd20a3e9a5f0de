// Copyright (C) 2026 the msl authors.
// See LICENSE for copying information.

package msltest

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zeebo/errs"
)

// RequireClass asserts that err is non-nil and belongs to class, the same
// "ErrClass assertion" idiom the msl test suite uses throughout instead of
// matching on error text.
func RequireClass(t *testing.T, class errs.Class, err error) {
	t.Helper()
	require.Error(t, err)
	require.True(t, class.Has(err), "expected error class %v, got %v", class, err)
}

// RequireNoError is require.NoError with the t.Helper() marker every msl
// test helper in this package carries, so failures report the caller's
// line rather than this file's.
func RequireNoError(t *testing.T, err error) {
	t.Helper()
	require.NoError(t, err)
}
