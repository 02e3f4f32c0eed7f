package settings

import "strings"

// detectIndent returns the leading whitespace of the first indented line,
// or two spaces when nothing is indented.
func detectIndent(data []byte) string {
	for line := range strings.SplitSeq(string(data), "\n") {
		trimmed := strings.TrimLeft(line, " \t")
		if trimmed != "" && len(trimmed) < len(line) {
			return line[:len(line)-len(trimmed)]
		}
	}
	return "  "
}
