// Package version exposes the OpsPilot release version embedded at build time.
package version

import (
	_ "embed"
	"strings"
)

//go:embed VERSION
var raw string

// Get returns the embedded release version, whitespace trimmed.
func Get() string {
	return strings.TrimSpace(raw)
}
