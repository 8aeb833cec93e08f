package roundtrip

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToBaseUnits(t *testing.T) {
	tests := []struct {
		native   string
		decimals int32
		want     uint64
		wantErr  bool
	}{
		{"1", 9, 1_000_000_000, false},
		{"0.001", 9, 1_000_000, false},
		{"0.0000000019", 9, 1, false},
		{"0", 9, 0, false},
		{"12.5", 6, 12_500_000, false},
		{"18446744073.709551615", 9, 18446744073709551615, false},
		{"18446744073.709551616", 9, 0, true},
		{"-1", 9, 0, true},
		{"abc", 9, 0, true},
		{"", 9, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.native, func(t *testing.T) {
			got, err := ToBaseUnits(tt.native, tt.decimals)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestFromBaseUnits(t *testing.T) {
	require.Equal(t, "1.0005", FromBaseUnits(1_000_500_000, 9).String())
	require.Equal(t, "0.000000001", FromBaseUnits(1, 9).String())
	require.Equal(t, "18446744073.709551615", FromBaseUnits(18446744073709551615, 9).String())
	require.Equal(t, "42", FromBaseUnits(42, 0).String())
}
