// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/tidwall/jsonc"

	"github.com/wardenhq/warden/lib/authorization"
)

// LoadPermissions reads the permission file at path.
//
// The file is a JSON object mapping a command name to a list of role
// ids. Comments and trailing commas are accepted. Role ids may be
// numbers or strings; numbers are kept as their exact decimal text, so
// 64-bit snowflakes survive.
//
//	{
//	  // admins only
//	  "stopserver": [1083746027162173440],
//	  "startserver": ["1083746027162173440", 1083746027162173441],
//	}
func LoadPermissions(path string) (authorization.PermissionMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading permissions: %w", err)
	}
	permissions, err := ParsePermissions(data)
	if err != nil {
		return nil, fmt.Errorf("permissions %s: %w", path, err)
	}
	return permissions, nil
}

// ParsePermissions parses permission file content.
func ParsePermissions(data []byte) (authorization.PermissionMap, error) {
	decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	decoder.UseNumber()

	var raw map[string][]any
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}

	permissions := make(authorization.PermissionMap, len(raw))
	for command, entries := range raw {
		roles := make([]string, 0, len(entries))
		for index, entry := range entries {
			switch value := entry.(type) {
			case json.Number:
				if _, err := strconv.ParseUint(value.String(), 10, 64); err != nil {
					return nil, fmt.Errorf("%s[%d]: role id %s is not an unsigned integer", command, index, value)
				}
				roles = append(roles, value.String())
			case string:
				if value == "" {
					return nil, fmt.Errorf("%s[%d]: empty role id", command, index)
				}
				roles = append(roles, value)
			default:
				return nil, fmt.Errorf("%s[%d]: role id must be a number or string, got %T", command, index, entry)
			}
		}
		permissions[command] = roles
	}
	return permissions, nil
}
