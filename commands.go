package sercom

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// CommandFormat selects how a command source is parsed.
type CommandFormat int

const (
	FormatAuto CommandFormat = iota // pick by file extension
	FormatJSON
	FormatYAML
	FormatText
)

func (f CommandFormat) String() string {
	switch f {
	case FormatAuto:
		return "auto"
	case FormatJSON:
		return "json"
	case FormatYAML:
		return "yaml"
	case FormatText:
		return "text"
	}
	return fmt.Sprintf("CommandFormat(%d)", int(f))
}

// ParseCommandFormat maps a format name (auto, json, yaml, text) to a CommandFormat.
func ParseCommandFormat(s string) (CommandFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return FormatAuto, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "text", "txt":
		return FormatText, nil
	}
	return FormatAuto, fmt.Errorf("%w: command format %q", ErrUnknownFormat, s)
}

func formatForPath(path string) CommandFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatText
}

// CommandSet is an immutable, ordered list of commands.
type CommandSet struct {
	source   string
	commands []string
}

// NewCommandSet builds a set from commands that were already validated.
func NewCommandSet(source string, commands []string) *CommandSet {
	return &CommandSet{source: source, commands: append([]string(nil), commands...)}
}

// Source names where the set was loaded from.
func (c *CommandSet) Source() string {
	if c == nil {
		return ""
	}
	return c.source
}

// Len returns the number of commands; a nil set is empty.
func (c *CommandSet) Len() int {
	if c == nil {
		return 0
	}
	return len(c.commands)
}

// At returns the command at index i.
func (c *CommandSet) At(i int) (string, error) {
	if i < 0 || i >= c.Len() {
		return "", fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, i, c.Len())
	}
	return c.commands[i], nil
}

// Commands returns a copy of the commands in order.
func (c *CommandSet) Commands() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.commands...)
}

// LoadCommandSet reads a command set from a file.
func LoadCommandSet(path string, format CommandFormat) (*CommandSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	defer f.Close()
	if format == FormatAuto {
		format = formatForPath(path)
	}
	return ParseCommandSet(f, path, format)
}

// ParseCommandSet reads a command set from r. name is recorded as the source.
func ParseCommandSet(r io.Reader, name string, format CommandFormat) (*CommandSet, error) {
	if format == FormatAuto {
		format = formatForPath(name)
	}
	switch format {
	case FormatJSON:
		return ParseStructured(r, name)
	case FormatYAML:
		return ParseYAML(r, name)
	case FormatText:
		return ParseLines(r, name)
	}
	return nil, fmt.Errorf("%w: %v", ErrUnknownFormat, format)
}

// structuredSource is the keyed document shape shared by JSON and YAML sources.
// A pointer distinguishes a missing or null field from an empty list.
type structuredSource struct {
	Commands *[]string `json:"commands" yaml:"commands"`
}

// ParseStructured reads a JSON document with a "commands" array of strings.
func ParseStructured(r io.Reader, name string) (*CommandSet, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnreadable, name, err)
	}
	var doc structuredSource
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, name, err)
	}
	return fromStructured(doc, name)
}

// yamlSource keeps the raw node so numbers, booleans and nulls are not
// coerced into command strings.
type yamlSource struct {
	Commands *yaml.Node `yaml:"commands"`
}

// ParseYAML reads a YAML document with a "commands" sequence of strings.
func ParseYAML(r io.Reader, name string) (*CommandSet, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnreadable, name, err)
	}
	var doc yamlSource
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, name, err)
	}
	if doc.Commands == nil {
		return fromStructured(structuredSource{}, name)
	}
	if doc.Commands.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("%w: %s: line %d: \"commands\" is not a list", ErrMalformed, name, doc.Commands.Line)
	}
	commands := make([]string, 0, len(doc.Commands.Content))
	for i, n := range doc.Commands.Content {
		if n.Kind != yaml.ScalarNode || n.ShortTag() != "!!str" {
			return nil, fmt.Errorf("%w: %s: line %d: command %d is not a string", ErrMalformed, name, n.Line, i)
		}
		commands = append(commands, n.Value)
	}
	return fromStructured(structuredSource{Commands: &commands}, name)
}

func fromStructured(doc structuredSource, name string) (*CommandSet, error) {
	if doc.Commands == nil {
		return nil, fmt.Errorf("%w: %s: missing \"commands\" list", ErrMalformed, name)
	}
	for i, cmd := range *doc.Commands {
		if cmd == "" {
			return nil, fmt.Errorf("%w: %s: command %d is empty", ErrMalformed, name, i)
		}
		if strings.ContainsAny(cmd, "\r\n") {
			return nil, fmt.Errorf("%w: %s: command %d contains a line terminator", ErrMalformed, name, i)
		}
	}
	return &CommandSet{source: name, commands: *doc.Commands}, nil
}

// ParseLines reads one command per line. Blank lines and lines starting
// with "#" or "//" are skipped; surrounding whitespace is trimmed. Lines may
// be of any length.
func ParseLines(r io.Reader, name string) (*CommandSet, error) {
	commands := []string{}
	br := bufio.NewReader(r)
	for {
		raw, err := br.ReadString('\n')
		line := strings.TrimSpace(raw)
		if line != "" && !strings.HasPrefix(line, "#") && !strings.HasPrefix(line, "//") {
			commands = append(commands, line)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrUnreadable, name, err)
		}
	}
	return &CommandSet{source: name, commands: commands}, nil
}
