//go:build windows

package session

import "context"

// watchResize is a no-op: Windows consoles have no SIGWINCH.
func watchResize(ctx context.Context, fn func()) {}
