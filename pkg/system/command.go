package system

import "strings"

// Command describes an external command invocation by name and arguments.
// It is a value type so tests can compare expected and actual invocations.
type Command struct {
	Name string
	Args []string
}

// NewCommand creates a command with the given name and arguments.
func NewCommand(name string, args ...string) *Command {
	return &Command{Name: name, Args: args}
}

// Arg appends an argument and returns the command for chaining.
func (c *Command) Arg(arg string) *Command {
	c.Args = append(c.Args, arg)
	return c
}

func (c *Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}
