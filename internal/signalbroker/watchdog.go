// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package signalbroker

import (
	"context"
	"os"
)

// Watch consumes sigCh until ctx is done or sigCh is closed.
// It cancels the context on the second signal of a given type.
func Watch(ctx context.Context, sigCh <-chan os.Signal, cancel context.CancelFunc) {
	seen := make(map[os.Signal]struct{})

	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-sigCh:
			if !ok {
				return
			}

			if _, dup := seen[sig]; dup {
				logWarn(ctx, "second signal received, cancelling in-flight operations", sig)
				cancel()

				return
			}

			logWarn(ctx, "signal received, send again to cancel", sig)

			seen[sig] = struct{}{}
		}
	}
}
