package contentid

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantLatest bool
		want       uint32
		wantErr    bool
	}{
		{name: "latest", input: "latest", wantLatest: true},
		{name: "zero", input: "0", want: 0},
		{name: "one", input: "1", want: 1},
		{name: "large", input: "4294967295", want: math.MaxUint32},
		{name: "zero padded", input: "01", wantErr: true},
		{name: "fraction", input: "0.1", wantErr: true},
		{name: "negative", input: "-1", wantErr: true},
		{name: "fraction large", input: "100.1", wantErr: true},
		{name: "empty", input: "", wantErr: true},
		{name: "overflow", input: "4294967296", wantErr: true},
		{name: "uppercase latest", input: "LATEST", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ParseVersion(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidVersion))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLatest, v.IsLatest())
			if !tt.wantLatest {
				assert.Equal(t, tt.want, v.Ordinal())
			}
			assert.Equal(t, tt.input, v.String())
		})
	}
}

func TestVersion_Next(t *testing.T) {
	t.Run("zero to one", func(t *testing.T) {
		next, err := NewVersion(0).Next()
		require.NoError(t, err)
		assert.Equal(t, NewVersion(1), next)
	})

	t.Run("one to two", func(t *testing.T) {
		next, err := NewVersion(1).Next()
		require.NoError(t, err)
		assert.Equal(t, NewVersion(2), next)
	})

	t.Run("max has no successor", func(t *testing.T) {
		_, err := NewVersion(math.MaxUint32).Next()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNoSuccessor))
	})

	t.Run("latest has no successor", func(t *testing.T) {
		_, err := Latest().Next()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNoSuccessor))
	})
}

func TestVersion_IsPublishable(t *testing.T) {
	assert.False(t, NewVersion(0).IsPublishable())
	assert.True(t, NewVersion(1).IsPublishable())
	assert.False(t, Latest().IsPublishable())
}
