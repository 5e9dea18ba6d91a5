package internal

import (
	"math"

	"github.com/ValentinKolb/paperKV/lib/db/util"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Shard Type (partition of the database)
// --------------------------------------------------------------------------

// Shard represents a partition of the database.
// Each shard owns an independent concurrent map, values are never shared with callers.
type Shard struct {
	Data *xsync.MapOf[string, []byte]
}

// NewShard creates a new, empty shard
func NewShard() *Shard {
	return &Shard{
		Data: xsync.NewMapOf[string, []byte](),
	}
}

// GetShard returns the appropriate shard for a given (hashed) key
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func GetShard[T any](key util.UintKey, shards []*T) *T {
	return shards[util.Stripe(key, len(shards))]
}

// --------------------------------------------------------------------------
// Shard balance (reported by GetInfo)
// --------------------------------------------------------------------------

// Balance describes how evenly the keys are spread over the shards.
// Quality is 1 for a perfectly even spread and approaches 0 as single shards dominate.
type Balance struct {
	MinKeys  int     `json:"min_keys"`
	MaxKeys  int     `json:"max_keys"`
	MeanKeys float64 `json:"mean_keys"`
	StdDev   float64 `json:"std_deviation"`
	Quality  float64 `json:"quality"`
}

// NewBalance computes the balance of the given per shard key counts
func NewBalance(counts []int) Balance {
	if len(counts) == 0 {
		return Balance{}
	}

	b := Balance{MinKeys: counts[0], MaxKeys: counts[0]}
	total := 0
	for _, c := range counts {
		total += c
		b.MinKeys = min(b.MinKeys, c)
		b.MaxKeys = max(b.MaxKeys, c)
	}
	b.MeanKeys = float64(total) / float64(len(counts))

	var variance float64
	for _, c := range counts {
		d := float64(c) - b.MeanKeys
		variance += d * d
	}
	b.StdDev = math.Sqrt(variance / float64(len(counts)))

	// an empty database counts as balanced
	if b.MaxKeys == 0 {
		b.Quality = 1
		return b
	}
	cv := math.Min(b.StdDev/b.MeanKeys, 1)
	b.Quality = (1-cv)/2 + float64(b.MinKeys)/float64(b.MaxKeys)/2
	return b
}
