package engine

import (
	"fmt"
	"strings"

	"refsync/internal/config"
)

// extractBlock returns the text strictly between the begin and end marker
// lines. found is false when no begin marker occurs. A begin marker without
// a matching end marker is a malformed block and returns an error.
func extractBlock(content, begin, end string) (inner string, found bool, err error) {
	lines := strings.SplitAfter(content, "\n")
	beginIdx := -1
	for i, line := range lines {
		if markerLine(line) == begin {
			beginIdx = i
			break
		}
	}
	if beginIdx < 0 {
		return "", false, nil
	}
	for j := beginIdx + 1; j < len(lines); j++ {
		if markerLine(lines[j]) == end {
			return strings.Join(lines[beginIdx+1:j], ""), true, nil
		}
	}
	return "", false, fmt.Errorf("malformed marker block: begin marker %q has no matching end marker %q", begin, end)
}

// replaceBlock substitutes the interior of the first marker block with
// inner, preserving the marker lines themselves and everything outside
// the block.
func replaceBlock(content, begin, end, inner string) (string, error) {
	lines := strings.SplitAfter(content, "\n")
	beginIdx := -1
	for i, line := range lines {
		if markerLine(line) == begin {
			beginIdx = i
			break
		}
	}
	if beginIdx < 0 {
		return "", fmt.Errorf("no begin marker %q in content", begin)
	}
	for j := beginIdx + 1; j < len(lines); j++ {
		if markerLine(lines[j]) == end {
			var b strings.Builder
			b.WriteString(strings.Join(lines[:beginIdx+1], ""))
			b.WriteString(normalizeInner(inner))
			b.WriteString(strings.Join(lines[j:], ""))
			return b.String(), nil
		}
	}
	return "", fmt.Errorf("malformed marker block: begin marker %q has no matching end marker %q", begin, end)
}

// insertBlock appends or prepends a fresh marker block per placement.
func insertBlock(content, begin, end, inner string, placement config.Placement) string {
	block := begin + "\n" + normalizeInner(inner) + end + "\n"
	if placement == config.PlacementBottom {
		if content != "" && !strings.HasSuffix(content, "\n") {
			content += "\n"
		}
		return content + block
	}
	return block + content
}

// normalizeInner guarantees non-empty block interiors end in a newline so
// the end marker always sits on its own line.
func normalizeInner(inner string) string {
	if inner != "" && !strings.HasSuffix(inner, "\n") {
		inner += "\n"
	}
	return inner
}

// markerLine strips the line terminator for exact marker comparison.
func markerLine(line string) string {
	return strings.TrimRight(line, "\r\n")
}
