// Package adapters holds the clients for the external services tools act on.
// Each adapter owns exactly one concern (archive, scheduling, asset search or
// notification) behind a small interface, so the dispatcher and tests can swap
// implementations freely.
//
// Every call takes a context; callers bound it with a timeout.
package adapters
