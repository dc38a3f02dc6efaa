package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseJSONValue(t *testing.T) {
	assert.Equal(t, float64(42), parseJSONValue("42"))
	assert.Equal(t, true, parseJSONValue("true"))
	assert.Equal(t, nil, parseJSONValue("null"))
	assert.Equal(t, map[string]any{"a": float64(1)}, parseJSONValue(`{"a":1}`))
	assert.Equal(t, "quoted", parseJSONValue(`"quoted"`))

	// Bare words fall back to plain strings.
	assert.Equal(t, "Foo", parseJSONValue("Foo"))
	assert.Equal(t, "#delete", parseJSONValue("#delete"))
}

func TestDocCmd_Wiring(t *testing.T) {
	assert.Equal(t, "doc", docCmd.Use)
	subs := make(map[string]bool)
	for _, c := range docCmd.Commands() {
		subs[c.Name()] = true
	}
	assert.True(t, subs["get"])
	assert.True(t, subs["set"])
	assert.True(t, subs["remove"])
	assert.True(t, subs["list"])
}
