// Package devseed loads seed fixtures for the in-memory mock database used
// by local development tooling and tests.
package devseed

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Entry is a single seeded key/value pair. Value holds the decoded document
// (YAML or JSON); Raw returns its canonical JSON encoding.
type Entry struct {
	Key   string `yaml:"key" json:"key"`
	Value any    `yaml:"value" json:"value"`
}

// Raw returns the JSON text the store would hold for this entry.
func (e Entry) Raw() ([]byte, error) {
	data, err := json.Marshal(e.Value)
	if err != nil {
		return nil, fmt.Errorf("devseed: encode value for key %q: %w", e.Key, err)
	}
	return data, nil
}

// Load reads seed entries from a YAML (or JSON, which YAML subsumes) file.
// Each entry must carry a non-empty key.
func Load(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("devseed: read seed file: %w", err)
	}

	var entries []Entry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("devseed: parse seed file %s: %w", path, err)
	}

	for i, e := range entries {
		if strings.TrimSpace(e.Key) == "" {
			return nil, fmt.Errorf("devseed: seed entry %d missing key", i)
		}
	}
	return entries, nil
}
