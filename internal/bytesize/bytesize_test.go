package bytesize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    ByteSize
		wantErr bool
	}{
		{"1024", 1024, false},
		{"512B", 512, false},
		{"1KiB", 1024, false},
		{"1ki", 1024, false},
		{"4k", 4000, false},
		{"2MiB", 2 * MiB, false},
		{"1.5Ki", 1536, false},
		{" 8 KiB ", 8 * KiB, false},
		{"", 0, true},
		{"abc", 0, true},
		{"10XB", 0, true},
		{"-1", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestString(t *testing.T) {
	assert.Equal(t, "1KiB", KiB.String())
	assert.Equal(t, "3MiB", (3 * MiB).String())
	assert.Equal(t, "1000", KB.String())
	assert.Equal(t, "1500", ByteSize(1500).String())

	for _, b := range []ByteSize{0, 7, KiB, 1536, 5 * MiB} {
		back, err := Parse(b.String())
		require.NoError(t, err)
		assert.Equal(t, b, back)
	}
}

func TestUnmarshalText(t *testing.T) {
	var b ByteSize
	require.NoError(t, b.UnmarshalText([]byte("64KiB")))
	assert.Equal(t, 64*KiB, b)
	assert.Equal(t, 65536, b.Int())
	assert.Error(t, b.UnmarshalText([]byte("lots")))
}
