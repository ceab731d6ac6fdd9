package checkout

import "testing"

func TestPlatformFee(t *testing.T) {
	tests := []struct {
		name  string
		total int64
		bps   int64
		want  int64
	}{
		{name: "five percent of 20 dollars", total: 2000, bps: 500, want: 100},
		{name: "rounds down", total: 1999, bps: 500, want: 99},
		{name: "zero total", total: 0, bps: 500, want: 0},
		{name: "zero bps", total: 2000, bps: 0, want: 0},
		{name: "full amount", total: 2000, bps: 10000, want: 2000},
		{name: "sub-cent fee truncates", total: 19, bps: 500, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := platformFee(tt.total, tt.bps); got != tt.want {
				t.Errorf("platformFee(%d, %d) = %d, want %d", tt.total, tt.bps, got, tt.want)
			}
		})
	}
}
