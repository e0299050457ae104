package keycodec

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	ids := []uint64{
		0,
		1,
		31,
		32,
		300000,
		1 << 32,
		0x0123456789abcdef,
		1<<63 - 1,
		1 << 63,
		math.MaxUint64,
	}

	for _, prefix := range []string{"", "e", "key-"} {
		for _, id := range ids {
			token := Encode(prefix, id)
			assert.Len(t, token, len(prefix)+TokenWidth)

			got, err := Decode(prefix, token)
			require.NoError(t, err, "token %q", token)
			assert.Equal(t, id, got, "token %q", token)
		}
	}
}

func TestEncodeKnownValues(t *testing.T) {
	assert.Equal(t, "eAAAAAAAAAAAAA", Encode("e", 0))
	assert.Equal(t, "eAAAAAAAAAAAAB", Encode("e", 1))
	assert.Equal(t, "eAAAAAAAAAAABA", Encode("e", 32))
	// Leading symbol carries bits 60-63 only.
	assert.Equal(t, "ePffffffffffff", Encode("e", math.MaxUint64))
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{name: "wrong prefix", token: "xAAAAAAAAAAAAA"},
		{name: "missing prefix", token: "AAAAAAAAAAAAA"},
		{name: "too short", token: "eAAAAAAAAAAAA"},
		{name: "too long", token: "eAAAAAAAAAAAAAA"},
		{name: "empty body", token: "e"},
		{name: "symbol past first 32", token: "eAAAAAAAAAAAAg"},
		{name: "digit symbol", token: "eAAAAAAAAAAAA0"},
		{name: "dash symbol", token: "eAAAAAAAAAAAA-"},
		{name: "non alphabet symbol", token: "eAAAAAAAAAAAA!"},
		{name: "leading overflow", token: "eQAAAAAAAAAAAA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode("e", tt.token)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidToken))
		})
	}
}
