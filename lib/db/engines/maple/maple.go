package maple

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"github.com/ValentinKolb/paperKV/lib/db"
	"github.com/ValentinKolb/paperKV/lib/db/engines/maple/internal"
	"github.com/ValentinKolb/paperKV/lib/db/util"
	"io"
	"runtime"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

// Constants for database behavior and structure
const (
	magicNum     = "MAPLEDB\x00" // File format identifier
	mapleVersion = 4             // Snapshot format version (4: string keys)
	maxKeyLen    = 1 << 20       // Sanity limit when loading snapshots
)

// --------------------------------------------------------------------------
// Core Maple database structure
// --------------------------------------------------------------------------

// mapleImpl implements an in-memory database with sharded data
type mapleImpl struct {
	seed   uint64            // Seed for hash function
	shards []*internal.Shard // Array of shards
}

// DBOptions configures the mapleImpl behavior during initialization
type DBOptions struct {
	NumShards int // Number of shards (0 = auto)
}

// DefaultOptions returns the default mapleImpl options
func DefaultOptions() *DBOptions {
	return &DBOptions{
		NumShards: runtime.NumCPU(),
	}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewMapleDB creates a new MapleDB instance with the specified options (optional)
func NewMapleDB(opts *DBOptions) db.KVDB {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.NumShards <= 0 {
		opts.NumShards = runtime.NumCPU()
	}

	shards := make([]*internal.Shard, opts.NumShards)
	for i := range shards {
		shards[i] = internal.NewShard()
	}

	return &mapleImpl{
		seed:   util.GenerateSeed(),
		shards: shards,
	}
}

// shardFor returns the shard responsible for key
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) shardFor(key string) *internal.Shard {
	return internal.GetShard(util.HashString(key, maple.seed), maple.shards)
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - Write Operations
// --------------------------------------------------------------------------

// Set inserts or updates an entry with the given key and value.
// The value is copied, the caller may reuse the slice afterwards.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Set(key string, value []byte) error {
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	maple.shardFor(key).Data.Store(key, valueCopy)
	return nil
}

// Delete removes an entry, missing keys are ignored.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Delete(key string) error {
	maple.shardFor(key).Data.Delete(key)
	return nil
}

// Clear removes all entries from all shards.
// Writes running concurrently with Clear may or may not survive.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Clear() error {
	for _, shard := range maple.shards {
		shard.Data.Clear()
	}
	return nil
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - Read Operations
// --------------------------------------------------------------------------

// Get retrieves a value for a key.
// The returned value is a copy of the stored data and therefore safe to use and modify.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Get(key string) ([]byte, bool, error) {
	value, ok := maple.shardFor(key).Data.Load(key)
	if !ok {
		return nil, false, nil
	}
	data := make([]byte, len(value))
	copy(data, value)
	return data, true, nil
}

// Has checks if a key exists in the database.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Has(key string) (bool, error) {
	_, ok := maple.shardFor(key).Data.Load(key)
	return ok, nil
}

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

// Save persists the database to the writer
// Concurrent reading and writing is allowed during Save operation, the snapshot is fuzzy:
// writes that happen while Save runs may or may not be included.
//
// Format (little endian):
//
//	magic (8 bytes) | version (uint8) | seed (uint64) | count (uint64)
//	count * [ keyLen (uint32) | key | valueLen (uint32) | value ]
func (maple *mapleImpl) Save(w io.Writer) error {
	bw := bufio.NewWriterSize(w, 1024*1024) // 1 MB buffer

	type entryToSave struct {
		key   string
		value []byte
	}

	// collect the snapshot first so the count in the header matches the entries
	var entries []entryToSave
	for _, shard := range maple.shards {
		shard.Data.Range(func(key string, value []byte) bool {
			entries = append(entries, entryToSave{key, value})
			return true
		})
	}

	if _, err := bw.WriteString(magicNum); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint8(mapleVersion)); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, maple.seed); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(entries))); err != nil {
		return err
	}

	for _, item := range entries {
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(item.key))); err != nil {
			return err
		}
		if _, err := bw.WriteString(item.key); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(item.value))); err != nil {
			return err
		}
		if _, err := bw.Write(item.value); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// Load replaces the content of the database with a snapshot written by Save
//
// Thread-safety: This function is not thread-safe and should not be called concurrently
func (maple *mapleImpl) Load(r io.Reader) error {
	br := bufio.NewReaderSize(r, 1024*1024) // 1 MB buffer

	magicBytes := make([]byte, len(magicNum))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return err
	}
	if string(magicBytes) != magicNum {
		return fmt.Errorf("invalid file format: magic number mismatch")
	}

	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return err
	}
	if int(version) != mapleVersion {
		return fmt.Errorf("unsupported version: %d (expected %d)", version, mapleVersion)
	}

	var seed uint64
	if err := binary.Read(br, binary.LittleEndian, &seed); err != nil {
		return err
	}

	var count uint64
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return err
	}

	// drop the current content, the seed of the snapshot is kept so the
	// shard distribution matches the one of the saving instance
	if err := maple.Clear(); err != nil {
		return err
	}
	maple.seed = seed

	for i := uint64(0); i < count; i++ {
		var keyLen uint32
		if err := binary.Read(br, binary.LittleEndian, &keyLen); err != nil {
			return err
		}
		if keyLen > maxKeyLen {
			return fmt.Errorf("corrupted snapshot: key length %d exceeds limit", keyLen)
		}
		key := make([]byte, keyLen)
		if _, err := io.ReadFull(br, key); err != nil {
			return err
		}

		var valueLen uint32
		if err := binary.Read(br, binary.LittleEndian, &valueLen); err != nil {
			return err
		}
		value := make([]byte, valueLen)
		if _, err := io.ReadFull(br, value); err != nil {
			return err
		}

		maple.shardFor(string(key)).Data.Store(string(key), value)
	}

	return nil
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Features and Metadata
// --------------------------------------------------------------------------

// GetInfo returns statistics about the database
func (maple *mapleImpl) GetInfo() db.DatabaseInfo {
	shardSizes := make([]int, len(maple.shards))
	sizeBytes := 0
	keys := 0

	for i, shard := range maple.shards {
		shard.Data.Range(func(key string, value []byte) bool {
			sizeBytes += len(key) + len(value)
			return true
		})
		size := shard.Data.Size()
		shardSizes[i] = size
		keys += size
	}

	meta := &struct {
		ShardCount   int              `json:"shard_count"`
		ShardBalance internal.Balance `json:"shard_balance"`
	}{
		ShardCount:   len(maple.shards),
		ShardBalance: internal.NewBalance(shardSizes),
	}

	return db.DatabaseInfo{
		SizeBytes: sizeBytes,
		Keys:      keys,
		DbType:    db.ImplMaple,
		SupportedFeatures: []db.Feature{
			db.FeatureSet, db.FeatureGet, db.FeatureDelete, db.FeatureHas,
			db.FeatureClear, db.FeatureSave, db.FeatureLoad,
		},
		Metadata: meta,
	}
}

// SupportsFeature checks if this implementation supports a specific KVDB feature
func (maple *mapleImpl) SupportsFeature(feature db.Feature) bool {
	supportedFeatures := db.FeatureSet |
		db.FeatureGet |
		db.FeatureDelete |
		db.FeatureHas |
		db.FeatureClear |
		db.FeatureSave |
		db.FeatureLoad
	return supportedFeatures&feature == feature
}

// Close is a no-op, maple holds no external resources
func (maple *mapleImpl) Close() error {
	return nil
}
