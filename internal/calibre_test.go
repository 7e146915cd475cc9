package internal

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRandomName(t *testing.T) {
	t.Parallel()

	name := randomName(30)
	assert.Len(t, name, 30)
	for _, r := range name {
		assert.Contains(t, _nameAlphabet, string(r))
	}

	// Temp file names must be safe to join into a path as-is.
	assert.NotContains(t, name, "/")
	assert.NotContains(t, name, "..")

	assert.NotEqual(t, randomName(30), randomName(30))
	assert.Equal(t, "", randomName(0))
	assert.False(t, strings.ContainsAny(randomName(100), " \t\n"))
}
