// Package internal provides the communication protocol structures and serialization
// logic for the dstore package. It defines the wire format used to transmit operations
// between the store client and the distributed state machine.
//
// This package is intended for internal use by the dstore implementation and should
// not be imported directly by external code.
//
//   - Command System: Defines write operations (Set, Delete, Clear) that modify the
//     state of the database. Commands are serialized and proposed to the RAFT cluster,
//     executed on the state machine, and produce results that are returned to the client.
//
//   - Query System: Defines read operations (Get, Has, GetDBInfo) that retrieve data from
//     the database without modifying its state. Queries are executed locally on the
//     state machine and therefore do not require serialization.
//
// Command Format:
//
//   - 1 byte: Command type (Set, Delete, Clear)
//   - 4 bytes: Key length (uint32, big endian)
//   - N bytes: Key data (string as byte array)
//   - M bytes: Value data (optional, only present for Set)
//
// Thread Safety:
//
//	The types in this package are not thread-safe and should not be shared
//	across goroutines without external synchronization.
package internal
