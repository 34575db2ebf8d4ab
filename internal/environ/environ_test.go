// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package environ

import (
	"context"
	"errors"
	"os/user"
	"testing"

	"github.com/matt-FFFFFF/myrepo/internal/memo"
	"github.com/prashantv/gostub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsername_FromEnv(t *testing.T) {
	t.Setenv("USER", "builder")

	got, err := Username(context.Background(), memo.New())
	require.NoError(t, err)
	assert.Equal(t, "builder", got)
}

func TestUsername_FallbackToUserDatabase(t *testing.T) {
	t.Setenv("USER", "")

	stubs := gostub.Stub(&currentUser, func() (*user.User, error) {
		return &user.User{Username: "rpmbuild"}, nil
	})
	defer stubs.Reset()

	got, err := Username(context.Background(), memo.New())
	require.NoError(t, err)
	assert.Equal(t, "rpmbuild", got)
}

func TestUsername_Error(t *testing.T) {
	t.Setenv("USER", "")

	stubs := gostub.Stub(&currentUser, func() (*user.User, error) {
		return nil, errors.New("no passwd entry")
	})
	defer stubs.Reset()

	_, err := Username(context.Background(), memo.New())
	require.ErrorIs(t, err, ErrNoUsername)
}

func TestHostname_Memoized(t *testing.T) {
	calls := 0

	stubs := gostub.Stub(&hostname, func() (string, error) {
		calls++
		return "buildhost.example.com", nil
	})
	defer stubs.Reset()

	tbl := memo.New()

	for range 3 {
		got, err := Hostname(context.Background(), tbl)
		require.NoError(t, err)
		assert.Equal(t, "buildhost.example.com", got)
	}

	assert.Equal(t, 1, calls)
}
