// Package api defines the typed command surface the transport exposes.
// Every operation is a Command registered by name in a Registry built once
// at startup; the transport resolves names through the registry instead of
// switching on strings.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
)

// Command is one callable operation. Execute receives the raw argument
// object and returns a JSON-serializable result; errors flow back through
// the transport's error mapping.
type Command interface {
	Name() string
	Description() string

	// InputSchema returns the JSON Schema describing the argument object,
	// served verbatim in tool listings.
	InputSchema() json.RawMessage

	Execute(ctx context.Context, args json.RawMessage) (any, error)
}

// Registry is the name -> Command lookup table. Built at startup and
// read-only afterwards.
type Registry struct {
	commands map[string]Command
}

// NewRegistry builds a registry from the given commands. Duplicate names
// are a programming error and panic at startup.
func NewRegistry(commands ...Command) *Registry {
	r := &Registry{commands: make(map[string]Command, len(commands))}
	for _, c := range commands {
		if _, exists := r.commands[c.Name()]; exists {
			panic(fmt.Sprintf("api: duplicate command %q", c.Name()))
		}
		r.commands[c.Name()] = c
	}
	return r
}

// Lookup resolves a command by name.
func (r *Registry) Lookup(name string) (Command, bool) {
	c, ok := r.commands[name]
	return c, ok
}

// Names returns the registered command names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns the commands in name order, for tool listings.
func (r *Registry) All() []Command {
	names := r.Names()
	out := make([]Command, 0, len(names))
	for _, name := range names {
		out = append(out, r.commands[name])
	}
	return out
}
