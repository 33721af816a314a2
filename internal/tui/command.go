package tui

import "strings"

// Command is a parsed ":" prompt entry.
type Command struct {
	Name string
	Args []string
}

// ParseCommand splits a prompt entry (without the leading ':') into a
// lowercase command name and whitespace-separated arguments.
func ParseCommand(input string) Command {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return Command{}
	}
	return Command{Name: strings.ToLower(fields[0]), Args: fields[1:]}
}
