// Package policy loads the site policy file: which hosts route on the URL
// fragment and which hosts get their own snapshot TTL.
package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Loader handles loading and parsing of the policy file
type Loader struct {
	filePath string
}

// NewLoader creates a new policy loader
func NewLoader(filePath string) *Loader {
	return &Loader{
		filePath: filePath,
	}
}

// Path returns the file the loader reads.
func (l *Loader) Path() string { return l.filePath }

// Load reads, parses and validates the policy file
func (l *Loader) Load() (*Policy, error) {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	// ${VAR} references are expanded so secrets-free templates can be shared
	data = []byte(os.ExpandEnv(string(data)))

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse policy yaml: %w", err)
	}

	return Map(file)
}
