package json

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type update struct {
	Channel string `json:"channel"`
	Serial  uint32 `json:"serial,omitempty"`
	X       int16  `json:"x"`
}

func TestStdCompatible(t *testing.T) {
	b, err := Marshal(update{Channel: "pointer", X: -3})
	require.NoError(t, err)
	assert.JSONEq(t, `{"channel":"pointer","x":-3}`, string(b))

	var u update
	require.NoError(t, Unmarshal([]byte(`{"channel":"frame","serial":7,"x":0}`), &u))
	assert.Equal(t, update{Channel: "frame", Serial: 7}, u)

	b, err = MarshalIndent(map[string]int{"a": 1}, "", "  ")
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": 1\n}", string(b))
}
