// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind classifies an outcome.
type Kind int

const (
	Success Kind = iota
	Denied
	Failed
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case Denied:
		return "denied"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name written by MarshalText.
func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "success":
		*k = Success
	case "denied":
		*k = Denied
	case "failed":
		*k = Failed
	default:
		return fmt.Errorf("unknown outcome kind %q", text)
	}
	return nil
}

// Outcome is how an invocation ended. Reason is empty for Success.
type Outcome struct {
	Kind   Kind   `json:"kind"`
	Reason string `json:"reason,omitempty"`
}

// Record is one audited invocation. Records are values: once handed
// to a Logger they are not modified.
type Record struct {
	ID string `json:"id"`

	// Sequence orders records by invocation, not by completion.
	Sequence uint64 `json:"sequence"`

	// Timestamp is the decision time for Denied and the completion
	// time otherwise.
	Timestamp time.Time `json:"timestamp"`

	CallerID   string   `json:"caller_id"`
	CallerName string   `json:"caller_name"`
	Roles      []string `json:"roles,omitempty"`

	CommandKey  string `json:"command"`
	ArgsSummary string `json:"args,omitempty"`

	Outcome Outcome `json:"outcome"`
}

// NewID returns a fresh record id.
func NewID() string {
	return uuid.NewString()
}

// maxArgsSummary bounds ArgsSummary.
const maxArgsSummary = 200

// SummarizeArgs renders command options as "name=value" pairs for a
// record, in the order given, shortened to a fixed length.
func SummarizeArgs(pairs ...[2]string) string {
	var builder strings.Builder
	for _, pair := range pairs {
		if builder.Len() > 0 {
			builder.WriteByte(' ')
		}
		builder.WriteString(pair[0])
		builder.WriteByte('=')
		builder.WriteString(pair[1])
	}
	summary := builder.String()
	if runes := []rune(summary); len(runes) > maxArgsSummary {
		summary = string(runes[:maxArgsSummary-3]) + "..."
	}
	return summary
}
