package connection

import "errors"

// Sentinel errors returned by Connection's public operations, per
// spec.md §7 "Error Handling Design". callers are expected to use
// errors.Is against these, never to string-match a message.
var (
	// ErrNoSuchNode is returned when a caller names a node that isn't
	// present in configuration at all.
	ErrNoSuchNode = errors.New("no such node")

	// ErrNoSuchInstance is returned when a caller names an instance id
	// that doesn't show up in any configured node's inventory.
	ErrNoSuchInstance = errors.New("no such instance")

	// ErrNodeOutOfCapacity is returned by StartInstance when honoring the
	// request would exceed the target node's slot budget.
	ErrNodeOutOfCapacity = errors.New("node out of capacity")
)
