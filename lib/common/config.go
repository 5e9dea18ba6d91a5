package common

import (
	"fmt"
	"github.com/lni/dragonboat/v4/config"
	"sort"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// Book configuration
// --------------------------------------------------------------------------

// Engine names the db.KVDB implementation a book is stored in
type Engine string

const (
	EngineMaple     Engine = "maple"     // in-memory, lost on restart
	EnginePlainFile Engine = "plainfile" // one file per key
	EngineSQLite    Engine = "sqlite"    // one sqlite database per book
)

// ParseEngine converts a string to an Engine
func ParseEngine(s string) (Engine, error) {
	switch e := Engine(strings.ToLower(strings.TrimSpace(s))); e {
	case EngineMaple, EnginePlainFile, EngineSQLite:
		return e, nil
	default:
		return "", fmt.Errorf("invalid engine %s (expected one of: maple, plainfile, sqlite)", s)
	}
}

// BookConfig holds everything needed to open a book
type BookConfig struct {
	// Name of the book, used as directory or file name below DataDir
	Name string
	// DataDir is the root directory for all file based engines
	DataDir string
	// Engine used to store the data
	Engine Engine
	// Codec used to encode values (json, gob, yaml, proto)
	Codec string
	// Workers is the number of concurrent async operations per book
	Workers int
	// LogLevel is the level at which logs will be output
	LogLevel string
}

// String returns a formatted string representation of the configuration
func (c *BookConfig) String() string {
	var sb strings.Builder
	c.writeTo(&sb)
	return sb.String()
}

func (c *BookConfig) writeTo(sb *strings.Builder) {
	addSection(sb, "Book")
	addField(sb, "Name", c.Name)
	addField(sb, "Engine", string(c.Engine))
	addField(sb, "Codec", c.Codec)
	addField(sb, "Workers", strconv.Itoa(c.Workers))
	if c.Engine != EngineMaple {
		addField(sb, "Data Directory", c.DataDir)
	}

	addSection(sb, "Logging")
	addField(sb, "Log Level", c.LogLevel)
}

// --------------------------------------------------------------------------
// helper functions for to interface with Dragonboat (cluster mode)
// --------------------------------------------------------------------------

// Dragonboat uses RTT (Round Trip Time) to determine the timing of elections and heartbeats.
// These default values are selected according to the RAFT Paper
const (
	electionRTTFactor  = 10
	heartbeatRTTFactor = 1
)

// ToDragonboatConfig converts the ServerConfig to Dragonboat Config
func (c *ServerConfig) ToDragonboatConfig(shardId uint64) config.Config {
	return config.Config{
		ReplicaID:          c.ReplicaID,
		ShardID:            shardId,
		ElectionRTT:        electionRTTFactor,
		HeartbeatRTT:       heartbeatRTTFactor,
		CheckQuorum:        true,
		SnapshotEntries:    c.SnapshotEntries,
		CompactionOverhead: c.CompactionOverhead,
		MaxInMemLogSize:    0,
	}
}

// ToNodeHostConfig creates a NodeHostConfig for Dragonboat
func (c *ServerConfig) ToNodeHostConfig() config.NodeHostConfig {
	return config.NodeHostConfig{
		WALDir:         c.Book.DataDir,
		NodeHostDir:    c.Book.DataDir,
		RTTMillisecond: c.RTTMillisecond,
		RaftAddress:    c.ClusterMembers[c.ReplicaID],
	}
}

// --------------------------------------------------------------------------
// Server configuration
// --------------------------------------------------------------------------

// ServerConfig configures the HTTP server (paperkv serve).
// Without Shards every book is opened lazily as a local book using Book as template.
// With Shards the server runs in cluster mode and only serves the listed books,
// each one replicated as its own raft shard.
type ServerConfig struct {
	// Book is the template for all books opened by the server (Name is ignored)
	Book BookConfig

	// HTTP api settings
	Endpoint string

	// Shards maps book names to raft shard ids (cluster mode only)
	Shards map[string]uint64

	// Dragonboat parameters
	RTTMillisecond     uint64
	SnapshotEntries    uint64
	CompactionOverhead uint64
	ReplicaID          uint64
	ClusterMembers     map[uint64]string
	TimeoutSecond      int64
}

// IsCluster reports whether the books are replicated with raft
func (c *ServerConfig) IsCluster() bool {
	return len(c.Shards) > 0
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	addSection(&sb, "HTTP Server")
	addField(&sb, "Endpoint", c.Endpoint)

	c.Book.writeTo(&sb)

	if c.IsCluster() {
		addSection(&sb, "Shards")
		names := make([]string, 0, len(c.Shards))
		for name := range c.Shards {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			addField(&sb, name, strconv.FormatUint(c.Shards[name], 10))
		}

		addSection(&sb, "Node Identity")
		addField(&sb, "RAFT Address", c.ClusterMembers[c.ReplicaID])
		addField(&sb, "Node ID", strconv.FormatUint(c.ReplicaID, 10))

		addSection(&sb, "RAFT Parameters")
		addField(&sb, "Round Trip Time (ms)", fmt.Sprintf("%d ms", c.RTTMillisecond))
		addField(&sb, "Election RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*electionRTTFactor))
		addField(&sb, "Heartbeat RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*heartbeatRTTFactor))
		addField(&sb, "Snapshot Entries", fmt.Sprintf("%d", c.SnapshotEntries))
		addField(&sb, "Compaction Overhead", fmt.Sprintf("%d", c.CompactionOverhead))
		addField(&sb, "Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))

		addSection(&sb, "Cluster")
		var keys []uint64
		for k := range c.ClusterMembers {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("    Node %d: %s\n", k, c.ClusterMembers[k]))
		}
	}
	return sb.String()
}

// --------------------------------------------------------------------------
// Formatting helper
// --------------------------------------------------------------------------

func addSection(sb *strings.Builder, title string) {
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
}

func addField(sb *strings.Builder, name, value string) {
	sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
}
