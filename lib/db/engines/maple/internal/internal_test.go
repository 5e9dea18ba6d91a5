package internal

import (
	"math"
	"testing"
)

func TestNewBalance(t *testing.T) {
	tests := []struct {
		name    string
		counts  []int
		quality float64
	}{
		{"empty", nil, 0},
		{"no keys", []int{0, 0, 0}, 1},
		{"even", []int{10, 10, 10, 10}, 1},
		{"single shard holds everything", []int{40, 0, 0, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewBalance(tt.counts).Quality; math.Abs(got-tt.quality) > 1e-9 {
				t.Errorf("quality = %f, want %f", got, tt.quality)
			}
		})
	}

	b := NewBalance([]int{2, 4, 6})
	if b.MinKeys != 2 || b.MaxKeys != 6 || b.MeanKeys != 4 {
		t.Errorf("unexpected balance %+v", b)
	}
	if q := b.Quality; q <= 0 || q >= 1 {
		t.Errorf("uneven shards must give a quality between 0 and 1, got %f", q)
	}
}
