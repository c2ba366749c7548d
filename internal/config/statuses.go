package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// StatusesFile is the optional YAML file listing the statuses shown as summary columns.
type StatusesFile struct {
	Statuses          []string `yaml:"statuses"`
	ExcludedIssueType string   `yaml:"excluded_issue_type,omitempty"`
}

func LoadStatusesFile(path string) (StatusesFile, error) {
	var sf StatusesFile
	data, err := os.ReadFile(path)
	if err != nil {
		return sf, fmt.Errorf("failed to read statuses file: %w", err)
	}
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return sf, fmt.Errorf("failed to unmarshal statuses file %s: %w", path, err)
	}
	return sf, nil
}
