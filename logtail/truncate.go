// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package logtail

import "strings"

// TruncatedMarker prefixes text shortened by Truncate.
const TruncatedMarker = "[truncated]"

// Truncate fits text into limit characters. Text that fits is returned
// unchanged. Otherwise the newest text is kept, starting at a line
// boundary when one is available, behind TruncatedMarker and a newline.
func Truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	prefix := TruncatedMarker + "\n"
	budget := limit - len([]rune(prefix))
	if budget <= 0 {
		return string([]rune(TruncatedMarker)[:max(limit, 0)])
	}
	kept := string(runes[len(runes)-budget:])
	if index := strings.IndexByte(kept, '\n'); index >= 0 && index < len(kept)-1 {
		kept = kept[index+1:]
	}
	return prefix + kept
}
