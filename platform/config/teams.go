package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// TeamDefinition describes one installer crew and its calendar collections.
type TeamDefinition struct {
	Name          string `json:"name"`
	Principal     string `json:"principal"`
	ExecutionPath string `json:"execution"`
	BlockerPath   string `json:"blocker"`
}

// DisplayName falls back to the principal when the team has no name.
func (t TeamDefinition) DisplayName() string {
	if t.Name != "" {
		return t.Name
	}
	return t.Principal
}

var (
	principalAliases = []string{"principal", "caldav_principal"}
	executionAliases = []string{"execution", "execution_path", "calendar", "exec"}
	blockerAliases   = []string{"blocker", "blocker_path"}
)

// ParseTeams decodes a YAML or JSON list of team definitions. Paths are
// normalized to end with "/" and fully empty entries are dropped.
func ParseTeams(raw string) ([]TeamDefinition, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var entries []map[string]interface{}
	if err := yaml.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("parse team definitions: %w", err)
	}

	teams := make([]TeamDefinition, 0, len(entries))
	for _, entry := range entries {
		team := TeamDefinition{
			Name:          strings.TrimSpace(stringField(entry, "name")),
			Principal:     NormalizePath(firstField(entry, principalAliases)),
			ExecutionPath: NormalizePath(firstField(entry, executionAliases)),
			BlockerPath:   NormalizePath(firstField(entry, blockerAliases)),
		}
		if team == (TeamDefinition{}) {
			continue
		}
		teams = append(teams, team)
	}

	return teams, nil
}

// NormalizePath trims value and guarantees a single trailing "/". Empty
// input stays empty.
func NormalizePath(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	return strings.TrimRight(value, "/") + "/"
}

func firstField(entry map[string]interface{}, aliases []string) string {
	for _, alias := range aliases {
		if v := strings.TrimSpace(stringField(entry, alias)); v != "" {
			return v
		}
	}
	return ""
}

func stringField(entry map[string]interface{}, key string) string {
	v, ok := entry[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
