package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseByteSize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"1024", 1024, false},
		{"1KB", 1024, false},
		{"8MB", 8 * 1024 * 1024, false},
		{"1.5 GB", 3 * 512 * 1024 * 1024, false},
		{"2gib", 2 * 1024 * 1024 * 1024, false},
		{"0", 0, false},
		{"", 0, true},
		{"5XB", 0, true},
		{"-1MB", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseByteSize(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Int64())
		})
	}
}

func TestByteSizeString(t *testing.T) {
	assert.Equal(t, "8MB", ByteSize(8*1024*1024).String())
	assert.Equal(t, "1KB", ByteSize(1024).String())
	assert.Equal(t, "1000", ByteSize(1000).String())
}
