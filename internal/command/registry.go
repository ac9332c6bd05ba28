package command

import (
	"flag"
	"fmt"
	"io"
	"sort"
)

// Command is one tracepad subcommand. The entry point parses the command's
// flags (registered via SetupFlags) and hands the remaining positional
// arguments to Execute.
type Command interface {
	Name() string
	Description() string
	Usage() string

	// SetupFlags registers the command's flags on fs before parsing.
	SetupFlags(fs *flag.FlagSet)

	// Execute runs the command. User-facing output goes to stdout,
	// diagnostics to stderr; a non-nil error makes the process exit
	// non-zero.
	Execute(args []string, stdout, stderr io.Writer) error
}

// BaseCommand carries the static identity every command shares, so concrete
// commands only implement Execute (and SetupFlags when they take flags).
type BaseCommand struct {
	name        string
	description string
	usage       string
}

// NewBaseCommand builds the identity embedded by a concrete command.
func NewBaseCommand(name, description, usage string) *BaseCommand {
	return &BaseCommand{name: name, description: description, usage: usage}
}

func (c *BaseCommand) Name() string        { return c.name }
func (c *BaseCommand) Description() string { return c.description }
func (c *BaseCommand) Usage() string       { return c.usage }

// SetupFlags registers nothing; flagless commands inherit this default.
func (c *BaseCommand) SetupFlags(fs *flag.FlagSet) {}

// Registry manages the collection of available commands.
type Registry struct {
	commands map[string]Command
}

// NewRegistry creates an empty command registry.
func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string]Command),
	}
}

// Register adds a command to the registry.
func (r *Registry) Register(cmd Command) {
	r.commands[cmd.Name()] = cmd
}

// Get returns a command by name.
func (r *Registry) Get(name string) (Command, error) {
	cmd, exists := r.commands[name]
	if !exists {
		return nil, fmt.Errorf("command not found: %s", name)
	}
	return cmd, nil
}

// List returns all registered command names, sorted.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
