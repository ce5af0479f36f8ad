package util

import (
	"fmt"
	"strings"
)

// ParseCommaSeparatedHosts parses a comma-separated string into a slice of trimmed host strings
func ParseCommaSeparatedHosts(value string) []string {
	if value == "" {
		return []string{}
	}

	parts := strings.Split(value, ",")
	hosts := make([]string, 0, len(parts))

	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			hosts = append(hosts, trimmed)
		}
	}

	return hosts
}

// ParseHostList is a ConfigVarSpec.ParseFunc accepting either a
// comma-separated string (env vars, flags) or a YAML list.
func ParseHostList(raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return []string{}, nil
	case string:
		return ParseCommaSeparatedHosts(v), nil
	case []string:
		return ParseCommaSeparatedHosts(strings.Join(v, ",")), nil
	case []any:
		hosts := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("host list entry must be a string, got %T", item)
			}
			hosts = append(hosts, s)
		}
		return ParseCommaSeparatedHosts(strings.Join(hosts, ",")), nil
	default:
		return nil, fmt.Errorf("host list must be a string or a list, got %T", raw)
	}
}
