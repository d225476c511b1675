//go:build !unit
// +build !unit

package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestFlagEmpty fails if version.Flag is not empty. Release branches must not
// carry a development flag.
func TestFlagEmpty(t *testing.T) {
	if len(Flag) > 0 {
		t.Fatalf("Version Flag is not empty: %s", Flag)
	}
}

func TestVersion(t *testing.T) {
	assert.True(t, strings.HasPrefix(Version, "0.1.0"))
}
