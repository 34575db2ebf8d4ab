// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package environ looks up facts about the local machine and memoizes them.
package environ

import (
	"context"
	"errors"
	"os"
	"os/user"

	"github.com/matt-FFFFFF/myrepo/internal/memo"
)

const (
	usernameKey = "environ:username"
	hostnameKey = "environ:hostname"
)

// ErrNoUsername is returned when neither $USER nor the user database yield a name.
var ErrNoUsername = errors.New("could not determine the current username")

// These are variables so tests can stub them.
var (
	currentUser = user.Current
	hostname    = os.Hostname
)

// Username returns $USER, falling back to the user database.
func Username(ctx context.Context, tbl *memo.Table) (string, error) {
	return memo.Get(ctx, tbl, usernameKey, func(context.Context) (string, error) {
		if u := os.Getenv("USER"); u != "" {
			return u, nil
		}

		u, err := currentUser()
		if err != nil {
			return "", errors.Join(ErrNoUsername, err)
		}

		if u.Username == "" {
			return "", ErrNoUsername
		}

		return u.Username, nil
	})
}

// Hostname returns the kernel host name.
func Hostname(ctx context.Context, tbl *memo.Table) (string, error) {
	return memo.Get(ctx, tbl, hostnameKey, func(context.Context) (string, error) {
		return hostname()
	})
}
