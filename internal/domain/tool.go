package domain

import (
	"encoding/json"
	"fmt"
)

// ToolServer is the listing view of one tool server.
type ToolServer struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Disabled    bool   `json:"disabled"`
	Tools       []Tool `json:"tools"`
}

// Tool is the listing view of one tool exposed by a server.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Disabled    bool   `json:"disabled"`
}

// ToolDescriptor is an enabled tool eligible to be advertised to a provider.
type ToolDescriptor struct {
	Server      string          `json:"server"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ToolServerSpec is a tool server entry of the catalog file.
type ToolServerSpec struct {
	Name        string            `json:"-" toml:"-"`
	Command     CommandLine       `json:"command" toml:"command"`
	Args        []string          `json:"args" toml:"args"`
	Env         map[string]string `json:"env,omitempty" toml:"env"`
	Description string            `json:"description" toml:"description"`
	Disabled    bool              `json:"disabled" toml:"disabled"`
	Tools       []ToolSpec        `json:"tools" toml:"tools"`
}

// ToolSpec is a tool entry of the catalog file.
type ToolSpec struct {
	Name        string          `json:"name" toml:"name"`
	Description string          `json:"description" toml:"description"`
	Disabled    bool            `json:"disabled" toml:"disabled"`
	Parameters  json.RawMessage `json:"parameters,omitempty" toml:"-"`
}

// CommandLine is a server launch command. Catalog files may give it as a
// single string or as a list.
type CommandLine []string

func (c *CommandLine) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*c = CommandLine{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("command must be a string or a list of strings: %w", err)
	}
	*c = many
	return nil
}

// UnmarshalTOML implements toml.Unmarshaler.
func (c *CommandLine) UnmarshalTOML(v interface{}) error {
	switch val := v.(type) {
	case string:
		*c = CommandLine{val}
	case []interface{}:
		out := make(CommandLine, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return fmt.Errorf("command entries must be strings, got %T", item)
			}
			out = append(out, s)
		}
		*c = out
	default:
		return fmt.Errorf("command must be a string or a list of strings, got %T", v)
	}
	return nil
}
