package telemetry

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Role is a canonical column role inferred from raw headers.
type Role string

const (
	RoleTimestamp  Role = "timestamp"
	RoleACPower    Role = "ac_power"
	RoleDCPower    Role = "dc_power"
	RoleEfficiency Role = "efficiency"
	RoleEnergy     Role = "energy"
	RoleSource     Role = "source"
)

//go:embed aliases.yaml
var defaultAliasesYAML []byte

// RoleAliases lists the header aliases for one role in priority order.
type RoleAliases struct {
	Role    Role     `yaml:"role"`
	Aliases []string `yaml:"aliases"`
}

// AliasTable is an ordered set of role aliases.
type AliasTable []RoleAliases

type aliasDocument struct {
	Roles AliasTable `yaml:"roles"`
}

// Mapping maps a canonical role to the raw header that fills it.
type Mapping map[Role]string

// Column returns the raw header for role and whether one was found.
func (m Mapping) Column(role Role) (string, bool) {
	col, ok := m[role]
	return col, ok
}

// DefaultAliases returns the built-in alias table.
func DefaultAliases() AliasTable {
	table, err := ParseAliases(defaultAliasesYAML)
	if err != nil {
		panic(fmt.Sprintf("telemetry: embedded aliases invalid: %v", err))
	}
	return table
}

// LoadAliases reads an alias table from a YAML file.
func LoadAliases(path string) (AliasTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read alias file: %w", err)
	}
	return ParseAliases(data)
}

// ParseAliases parses an alias table document.
func ParseAliases(data []byte) (AliasTable, error) {
	var doc aliasDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse aliases: %w", err)
	}
	if len(doc.Roles) == 0 {
		return nil, fmt.Errorf("parse aliases: no roles defined")
	}
	seen := make(map[Role]bool)
	for _, r := range doc.Roles {
		if r.Role == "" {
			return nil, fmt.Errorf("parse aliases: role without name")
		}
		if seen[r.Role] {
			return nil, fmt.Errorf("parse aliases: duplicate role %q", r.Role)
		}
		seen[r.Role] = true
	}
	return doc.Roles, nil
}

// Map resolves each role against headers. For every alias in priority order
// an exact case-insensitive match is tried before a substring match; the
// first alias that hits decides the role.
func (t AliasTable) Map(headers []string) Mapping {
	lower := make([]string, len(headers))
	for i, h := range headers {
		lower[i] = strings.ToLower(h)
	}

	mapping := make(Mapping)
	for _, entry := range t {
		if col, ok := matchAliases(entry.Aliases, headers, lower); ok {
			mapping[entry.Role] = col
		}
	}
	return mapping
}

func matchAliases(aliases, headers, lower []string) (string, bool) {
	for _, alias := range aliases {
		a := strings.ToLower(alias)
		for i, h := range lower {
			if h == a {
				return headers[i], true
			}
		}
		for i, h := range lower {
			if strings.Contains(h, a) {
				return headers[i], true
			}
		}
	}
	return "", false
}
