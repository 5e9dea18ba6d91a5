package util

import (
	"strconv"
	"testing"
)

func TestHashStringSeed(t *testing.T) {
	if HashString("key", 1) == HashString("key", 2) {
		t.Error("Different seeds should produce different hashes")
	}
	if HashString("key", 1) != HashString("key", 1) {
		t.Error("Hash should be deterministic")
	}
}

func TestStripeDistribution(t *testing.T) {
	const stripes = 16
	counts := make([]float64, stripes)
	for i := 0; i < 16000; i++ {
		s := Stripe(HashString(strconv.Itoa(i), 0), stripes)
		if s < 0 || s >= stripes {
			t.Fatalf("Stripe %d out of range", s)
		}
		counts[s]++
	}

	// 1000 keys per stripe on average
	for i, c := range counts {
		if c < 800 || c > 1200 {
			t.Errorf("Poor stripe distribution: stripe %d got %.0f keys", i, c)
		}
	}
}
