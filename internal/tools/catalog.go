package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/xiaot623/chatd/internal/domain"
)

// jsonCatalog is the {"mcpServers": {...}} layout.
type jsonCatalog struct {
	Servers map[string]domain.ToolServerSpec `json:"mcpServers"`
}

// tomlCatalog is the [servers.<name>] layout.
type tomlCatalog struct {
	Servers map[string]domain.ToolServerSpec `toml:"servers"`
}

// LoadCatalog reads a catalog file. The format is chosen by extension:
// .toml is TOML, anything else is JSON. Servers are returned sorted by name.
func LoadCatalog(path string) ([]domain.ToolServerSpec, error) {
	var servers map[string]domain.ToolServerSpec

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		var c tomlCatalog
		if _, err := toml.DecodeFile(path, &c); err != nil {
			return nil, fmt.Errorf("failed to parse tool catalog %s: %w", path, err)
		}
		servers = c.Servers
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var c jsonCatalog
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("failed to parse tool catalog %s: %w", path, err)
		}
		servers = c.Servers
	}

	names := make([]string, 0, len(servers))
	for name := range servers {
		names = append(names, name)
	}
	sort.Strings(names)

	specs := make([]domain.ToolServerSpec, 0, len(names))
	for _, name := range names {
		spec := servers[name]
		spec.Name = name
		specs = append(specs, spec)
	}
	return specs, nil
}

// LoadCatalogOrDefault reads path and falls back to DefaultCatalog when the
// file does not exist.
func LoadCatalogOrDefault(path string) ([]domain.ToolServerSpec, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	specs, err := LoadCatalog(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultCatalog(), nil
	}
	return specs, err
}

// DefaultCatalog is served when no catalog file is configured.
func DefaultCatalog() []domain.ToolServerSpec {
	return []domain.ToolServerSpec{
		{
			Name:        "brave-search",
			Command:     domain.CommandLine{"npx"},
			Args:        []string{"-y", "@modelcontextprotocol/server-brave-search"},
			Env:         map[string]string{"BRAVE_API_KEY": ""},
			Description: "Brave search integration",
			Tools: []domain.ToolSpec{
				{Name: "search", Description: "Web search"},
			},
		},
		{
			Name:        "filesystem",
			Command:     domain.CommandLine{"npx"},
			Args:        []string{"-y", "@modelcontextprotocol/server-filesystem", "/path/to/allowed/files"},
			Description: "File system access server",
			Tools: []domain.ToolSpec{
				{Name: "read_file", Description: "Read a file"},
				{Name: "write_file", Description: "Write to a file"},
			},
		},
		{
			Name:        "sqlite",
			Command:     domain.CommandLine{"npx"},
			Args:        []string{"-y", "@modelcontextprotocol/server-sqlite", "/path/to/database.db"},
			Description: "SQLite database access",
			Tools: []domain.ToolSpec{
				{Name: "query", Description: "Run SQL query"},
			},
		},
	}
}
