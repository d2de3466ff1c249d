// Copyright 2026 The Coterie Authors
// SPDX-License-Identifier: Apache-2.0

package toolprofile

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"

	"github.com/coterie-dev/coterie/lib/schema"
)

// ProfileFile is the on-disk shape of a tool-profile definition:
// tool declarations plus per-role allow-lists. Authored as JSONC
// (JSON extended with // comments and trailing commas).
type ProfileFile struct {
	// Tools declares every operation available in this deployment.
	Tools []Tool `json:"tools"`

	// Profiles maps role name → ordered allow-list of tool names.
	Profiles map[string][]string `json:"profiles"`
}

// Parse strips JSONC comments and trailing commas from data and
// unmarshals the result.
func Parse(data []byte) (*ProfileFile, error) {
	stripped := jsonc.ToJSON(data)

	var file ProfileFile
	if err := json.Unmarshal(stripped, &file); err != nil {
		return nil, fmt.Errorf("parsing tool profiles: %w", err)
	}
	return &file, nil
}

// ReadFile reads and parses a JSONC tool-profile file.
func ReadFile(path string) (*ProfileFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	file, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return file, nil
}

// Build validates the file and constructs a registry from it.
// Duplicate tool declarations and unknown role names are load-time
// errors; allow-list entries naming undeclared tools are not (they
// are dropped at query time).
func (f *ProfileFile) Build() (*Registry, error) {
	registry := New()
	for _, tool := range f.Tools {
		if err := registry.Register(tool); err != nil {
			return nil, err
		}
	}
	for roleName, names := range f.Profiles {
		role := schema.Role(roleName)
		if err := registry.SetAllowlist(role, names); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
