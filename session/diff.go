// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package session

// NewLines returns the lines of after that follow the content of
// before. Both are windows onto the same scrollback, so after may have
// dropped lines from the front of before. The last line of before may
// also have grown in place (a prompt the command was typed into); it is
// then reported as new.
func NewLines(before, after []string) []string {
	if lines, ok := suffixAfter(before, after); ok {
		return lines
	}
	if len(before) > 0 {
		if lines, ok := suffixAfter(before[:len(before)-1], after); ok {
			return lines
		}
	}
	return append([]string(nil), after...)
}

// suffixAfter finds the smallest shift s such that before[s:] is a
// prefix of after and returns what follows that prefix in after.
func suffixAfter(before, after []string) ([]string, bool) {
	if len(before) == 0 {
		return append([]string(nil), after...), true
	}
	for shift := 0; shift < len(before); shift++ {
		overlap := before[shift:]
		if len(overlap) > len(after) {
			continue
		}
		if equalLines(overlap, after[:len(overlap)]) {
			return append([]string(nil), after[len(overlap):]...), true
		}
	}
	return nil, false
}

func equalLines(a, b []string) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
