//go:build tools
// +build tools

// Package tools pins the Go-based tools invoked via `go generate` (mockgen)
// as module dependencies.
package room_sync

import (
	_ "go.uber.org/mock/mockgen"
)
