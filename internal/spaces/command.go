package spaces

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/heavy-go/hv/internal/core/ecs"
)

type commandKind uint8

const (
	cmdSpawn commandKind = iota
	cmdDespawn
	cmdInsert
	cmdRemove
)

func (k commandKind) String() string {
	switch k {
	case cmdSpawn:
		return "spawn"
	case cmdDespawn:
		return "despawn"
	case cmdInsert:
		return "insert"
	case cmdRemove:
		return "remove"
	}
	return "unknown"
}

type command struct {
	kind    commandKind
	target  Object
	builder *ecs.Builder
	remove  func(*Space, Object) error
}

// CommandBuffer records structural changes to apply to a Space later, usually
// after a query over that space has finished. Commands run in the order they
// were recorded.
type CommandBuffer struct {
	commands []command
	builders []*ecs.Builder
}

func NewCommandBuffer() *CommandBuffer {
	return &CommandBuffer{}
}

func (cb *CommandBuffer) builder(components []ecs.Component) *ecs.Builder {
	var b *ecs.Builder
	if n := len(cb.builders); n > 0 {
		b = cb.builders[n-1]
		cb.builders = cb.builders[:n-1]
	} else {
		b = ecs.NewBuilder()
	}
	return b.Add(components...)
}

func (cb *CommandBuffer) recycle(b *ecs.Builder) {
	if b == nil {
		return
	}
	b.Reset()
	cb.builders = append(cb.builders, b)
}

// Spawn records the creation of an object with the given components.
func (cb *CommandBuffer) Spawn(components ...ecs.Component) {
	cb.commands = append(cb.commands, command{kind: cmdSpawn, builder: cb.builder(components)})
}

// Despawn records the removal of an object.
func (cb *CommandBuffer) Despawn(o Object) {
	cb.commands = append(cb.commands, command{kind: cmdDespawn, target: o})
}

// Insert records adding components to an object. If the object is a reserved
// handle, the insert makes it live.
func (cb *CommandBuffer) Insert(o Object, components ...ecs.Component) {
	cb.commands = append(cb.commands, command{kind: cmdInsert, target: o, builder: cb.builder(components)})
}

// RemoveDeferred records removing the T component from an object.
func RemoveDeferred[T any](cb *CommandBuffer, o Object) {
	cb.commands = append(cb.commands, command{
		kind:   cmdRemove,
		target: o,
		remove: func(s *Space, o Object) error {
			_, err := Remove[T](s, o)
			return err
		},
	})
}

// Len returns the number of pending commands.
func (cb *CommandBuffer) Len() int { return len(cb.commands) }

// Clear drops every pending command without running it.
func (cb *CommandBuffer) Clear() {
	for i := range cb.commands {
		cb.recycle(cb.commands[i].builder)
	}
	cb.commands = cb.commands[:0]
}

// Run applies every pending command to s in FIFO order and empties the buffer.
// A failing command does not stop the ones after it. All failures are
// combined into the returned error; multierr.Errors splits them apart again.
func (cb *CommandBuffer) Run(s *Space) error {
	var errs error
	for i := range cb.commands {
		c := &cb.commands[i]
		if err := c.apply(s); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%v %v: %w", c.kind, c.target, err))
		}
		cb.recycle(c.builder)
		*c = command{}
	}
	cb.commands = cb.commands[:0]
	return errs
}

func (c *command) apply(s *Space) error {
	switch c.kind {
	case cmdSpawn:
		s.Spawn(c.builder.Components()...)
		return nil
	case cmdDespawn:
		return s.Despawn(c.target)
	case cmdInsert:
		return s.Insert(c.target, c.builder.Components()...)
	case cmdRemove:
		return c.remove(s, c.target)
	}
	return fmt.Errorf("unknown command %d", c.kind)
}
