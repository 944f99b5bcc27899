// Package command parses inbound chat text and routes prefix commands
// through a registry of named handlers.
package command

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"zelador/internal/store"
)

// HandlerFunc runs one command against its parsed envelope.
type HandlerFunc func(ctx context.Context, env *Envelope) error

// Command is one registered chat command. The flags gate who may run it
// and where; the dispatcher enforces them before Run is invoked.
type Command struct {
	Name      string
	Help      string
	Usage     string
	GroupOnly bool
	AdminOnly bool
	BotAdmin  bool
	OwnerOnly bool
	Run       HandlerFunc
}

// Registry maps command names to handlers.
type Registry struct {
	byName map[string]*Command
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Command)}
}

// Register adds commands. A duplicate name is a programming error and
// panics at boot rather than shadowing silently.
func (r *Registry) Register(cmds ...*Command) {
	for _, cmd := range cmds {
		name := strings.ToLower(cmd.Name)
		if _, exists := r.byName[name]; exists {
			panic("command: duplicate name " + name)
		}
		r.byName[name] = cmd
	}
}

// Lookup resolves a command by name, case-insensitively.
func (r *Registry) Lookup(name string) (*Command, bool) {
	cmd, ok := r.byName[strings.ToLower(name)]
	return cmd, ok
}

// Commands returns every registered command, sorted by name.
func (r *Registry) Commands() []*Command {
	out := make([]*Command, 0, len(r.byName))
	for _, cmd := range r.byName {
		out = append(out, cmd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered commands.
func (r *Registry) Len() int {
	return len(r.byName)
}

// Envelope carries one parsed inbound message through the command layer.
// Sender is always the canonical id; the raw form stays on Event.
type Envelope struct {
	Event   *events.Message
	Record  *store.Message
	Chat    types.JID
	Sender  types.JID
	IsGroup bool

	Text    string
	Command string
	Tail    string
	Args    []string

	Prefix     string
	Settings   *store.GroupSettings
	Expiration uint32
}

// Arg returns the i-th argument, or "" when out of range.
func (e *Envelope) Arg(i int) string {
	if i < 0 || i >= len(e.Args) {
		return ""
	}
	return e.Args[i]
}

// TailAfter returns the raw text following the first n arguments, interior
// whitespace preserved. Used by commands whose payload is free text.
func (e *Envelope) TailAfter(n int) string {
	rest := e.Tail
	for ; n > 0; n-- {
		rest = strings.TrimLeftFunc(rest, unicode.IsSpace)
		i := strings.IndexFunc(rest, unicode.IsSpace)
		if i < 0 {
			return ""
		}
		rest = rest[i:]
	}
	return strings.TrimSpace(rest)
}

// splitCommand separates the command name from its raw argument text.
func splitCommand(s string) (string, string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ""
	}
	if i := strings.IndexFunc(s, unicode.IsSpace); i >= 0 {
		return s[:i], strings.TrimSpace(s[i:])
	}
	return s, ""
}
