// Package cmd is a transport-agnostic command core: a command has a name, a
// description and Run(ctx, invocation). Registration and dispatch for a given
// transport (Discord slash commands here) live in adapters that wrap it.
package cmd

import "context"

// Invocation carries what any runner can pass: the caller, the resolved
// operation and an opaque transport payload in Data.
type Invocation struct {
	// Operation is the leaf name being run, e.g. "skip" for "/music skip".
	Operation string
	UserID    string
	GuildID   string
	Args      []string
	Data      any
}

// Command is identity plus execution.
type Command interface {
	Name() string
	Description() string
	Run(ctx context.Context, inv *Invocation) error
}
