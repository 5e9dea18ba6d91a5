package internal

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/paperKV/lib/db"
)

// headerSize is the fixed part of a serialized command: type (1) + key length (4)
const headerSize = 1 + 4

// CommandType defines the possible operations for the state machine.
type CommandType uint8

const (
	CommandTSet    CommandType = iota // Insert or update an entry.
	CommandTDelete                    // Delete an entry.
	CommandTClear                     // Delete all entries.
)

func (ct CommandType) String() string {
	switch ct {
	case CommandTSet:
		return "Set"
	case CommandTDelete:
		return "Delete"
	case CommandTClear:
		return "Clear"
	default:
		return fmt.Sprintf("Unknown(%d)", ct)
	}
}

// ToDBFeature converts a CommandType to the corresponding db.Feature.
// This can be used for checking if the database supports a certain operation.
func (ct CommandType) ToDBFeature() (db.Feature, error) {
	switch ct {
	case CommandTSet:
		return db.FeatureSet, nil
	case CommandTDelete:
		return db.FeatureDelete, nil
	case CommandTClear:
		return db.FeatureClear, nil
	default:
		return 0, fmt.Errorf("unknown command type %d", ct)
	}
}

// Command represents a command to be executed by the state machine (a single entry in the raft log)
type Command struct {
	Type  CommandType
	Key   string
	Value []byte
}

// SizeBytes returns the exact number of bytes needed to serialize this command
func (command *Command) SizeBytes() int {
	return headerSize + len(command.Key) + len(command.Value)
}

// Serialize serializes a command into a byte array with the format:
// 1 byte for operation type,
// 4 bytes for key length (big endian),
// N bytes for key data,
// N bytes for value data (optional)
func (command *Command) Serialize() []byte {
	result := make([]byte, command.SizeBytes())

	result[0] = byte(command.Type)
	binary.BigEndian.PutUint32(result[1:headerSize], uint32(len(command.Key)))
	n := copy(result[headerSize:], command.Key)
	copy(result[headerSize+n:], command.Value)

	return result
}

// Deserialize extracts all Command fields from a byte array.
func (command *Command) Deserialize(data []byte) error {
	if len(data) < headerSize {
		return fmt.Errorf("data too short for command")
	}

	command.Type = CommandType(data[0])
	keyLen := binary.BigEndian.Uint32(data[1:headerSize])

	if uint64(len(data)) < uint64(headerSize)+uint64(keyLen) {
		return fmt.Errorf("data too short for key of length %d", keyLen)
	}
	keyEnd := headerSize + int(keyLen)

	command.Key = string(data[headerSize:keyEnd])

	// Extract value if present
	if len(data) > keyEnd {
		valueLen := len(data) - keyEnd
		// Reuse existing buffer if possible to reduce allocations
		if command.Value == nil || cap(command.Value) < valueLen {
			command.Value = make([]byte, valueLen)
		} else {
			command.Value = command.Value[:valueLen]
		}
		copy(command.Value, data[keyEnd:])
	} else {
		command.Value = nil
	}

	return nil
}

// --------------------------------------------------------------------------
// Queries (read-only, answered by Lookup)
// --------------------------------------------------------------------------

// QueryType defines the read-only lookups the state machine answers.
type QueryType uint8

const (
	QueryTGet       QueryType = iota // Value of a key.
	QueryTHas                        // Existence of a key.
	QueryTGetDBInfo                  // db.DatabaseInfo of the underlying engine.
)

func (qt QueryType) String() string {
	switch qt {
	case QueryTGet:
		return "Get"
	case QueryTHas:
		return "Has"
	case QueryTGetDBInfo:
		return "GetDBInfo"
	default:
		return fmt.Sprintf("Unknown(%d)", qt)
	}
}

// Query is passed to SyncRead and StaleRead. Lookups never go through the raft log,
// so unlike Command it needs no wire format.
type Query struct {
	Type QueryType
	Key  string
}

// QueryResult answers QueryTGet, Ok is false for a missing key
type QueryResult struct {
	Ok    bool
	Value []byte
}
