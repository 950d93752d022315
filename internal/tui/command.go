package tui

import (
	"fmt"
	"strings"
)

// Command is a parsed ':' prompt entry.
type Command struct {
	Name string
	Args string
}

// aliases maps short forms to command names.
var aliases = map[string]string{
	"q": "quit",
	"h": "help",
	"o": "open",
	"s": "search",
	"m": "media",
}

// ParseCommand parses input without the leading ':'.
func ParseCommand(input string) Command {
	input = strings.TrimSpace(input)
	parts := strings.SplitN(input, " ", 2)
	cmd := Command{Name: strings.ToLower(parts[0])}
	if full, ok := aliases[cmd.Name]; ok {
		cmd.Name = full
	}
	if len(parts) > 1 {
		cmd.Args = strings.TrimSpace(parts[1])
	}
	return cmd
}

// MediaArgs is the argument list of :media.
type MediaArgs struct {
	Type    string
	URL     string
	Caption string
}

// ParseMediaArgs parses "image|video <url> [caption]".
func ParseMediaArgs(args string) (MediaArgs, error) {
	fields := strings.SplitN(strings.TrimSpace(args), " ", 3)
	if len(fields) < 2 || fields[1] == "" {
		return MediaArgs{}, fmt.Errorf("usage: media image|video <url> [caption]")
	}
	typ := strings.ToLower(fields[0])
	if typ != "image" && typ != "video" {
		return MediaArgs{}, fmt.Errorf("media type must be image or video, got %q", fields[0])
	}
	m := MediaArgs{Type: typ, URL: fields[1]}
	if len(fields) == 3 {
		m.Caption = strings.TrimSpace(fields[2])
	}
	return m, nil
}
