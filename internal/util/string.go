// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// TruncateWidth shortens s to fit within maxWidth terminal cells,
// appending an ellipsis when truncation occurs. Width is measured in
// display cells, not bytes, so CJK and emoji are handled correctly.
func TruncateWidth(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	return runewidth.Truncate(s, maxWidth, "…")
}

// CollapseSpace replaces runs of whitespace with single spaces and trims
// the ends. Summaries built from user queries go through this so embedded
// newlines do not break list layouts.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
