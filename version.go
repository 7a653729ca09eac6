package sercom

import (
	_ "embed"
	"strings"
)

//go:embed VERSION
var version string

// embedded by ldflags
var BuildCommit string

// Version returns the release version, suffixed with the build commit when
// one was embedded.
func Version() string {
	v := strings.TrimSpace(version)
	if BuildCommit != "" {
		v += "+" + BuildCommit
	}
	return v
}
