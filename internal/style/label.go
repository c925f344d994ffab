// Viewcache - Viewport-Driven Spatial Item Cache for Map Platforms
// Copyright 2026 MapCanvas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mapcanvas/viewcache

package style

// WrapLabel splits a name into lines of at most width runes. Width is a
// character count, not a pixel measure; the renderer collaborator owns
// font metrics.
func WrapLabel(name string, width int) []string {
	if width <= 0 {
		width = 10
	}
	runes := []rune(name)
	if len(runes) == 0 {
		return nil
	}

	lines := make([]string, 0, (len(runes)+width-1)/width)
	for start := 0; start < len(runes); start += width {
		end := start + width
		if end > len(runes) {
			end = len(runes)
		}
		lines = append(lines, string(runes[start:end]))
	}
	return lines
}
