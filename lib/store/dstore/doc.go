// Package dstore implements a distributed, fault-tolerant store.IStore using
// the Dragonboat RAFT consensus library. A book backed by dstore behaves exactly
// like a local one but every write is replicated to a majority of nodes first.
//
// Architecture:
//
//   - Store Client: Implements the store.IStore interface and communicates with
//     the RAFT cluster. It serializes operations into commands, sends them to the
//     consensus layer, and processes responses.
//
//   - State Machine: A Dragonboat IConcurrentStateMachine implementation that processes
//     commands and queries on each node. The state machine contains the actual db.KVDB
//     instance and applies operations to it.
//
//   - Communication Protocol: Defined in the internal package, this consists of Command
//     and Query structures with serialization logic for transmitting operations across
//     the network.
//
// Write Operations:
//
//	All write operations (Set, Delete, Clear) follow this flow:
//
//	1. The operation is serialized into a Command structure
//	2. The Command is proposed to the RAFT cluster via SyncPropose
//	3. The leader node replicates the command to a majority of followers
//	4. Once committed, the command is executed on the state machine on each node
//	5. The result code is returned to the client
//
// Read Operations:
//
//   - Linearizable Reads: Get and Has use SyncRead, so they observe every write
//     that completed before them, regardless of which node serves the read.
//
//   - Stale Reads: GetDBInfo uses StaleRead, which may return slightly outdated
//     information but with lower latency.
//
// Error Handling and Retries:
//
//	When Dragonboat returns ErrSystemBusy the operation is retried after a short
//	delay, up to a fixed number of attempts. All operations have a configurable
//	timeout. Failures are reported as *store.Error.
//
// Snapshotting and Recovery:
//
//	The state machine takes fuzzy snapshots through db.KVDB.Save and restores them
//	through db.KVDB.Load, so only engines reporting both features can back a shard
//	(maple and sqlite). On startup the engine is cleared and rebuilt from the latest
//	snapshot plus the raft log.
//
// Usage:
//
//	// Create NodeHost (RAFT client)
//	nh, err := dragonboat.NewNodeHost(nodeHostConfig)
//	if err != nil { ... }
//
//	// DB factory for the state machine
//	dbFactory := func() (db.KVDB, error) { return maple.NewMapleDB(nil), nil }
//
//	// Create and start shard (RAFT server)
//	err = nh.StartConcurrentReplica(
//	    clusterMembers,
//	    false,
//	    dstore.CreateStateMachineFactory(dbFactory),
//	    shardConfig)
//	if err != nil { ... }
//
//	s := dstore.NewDistributedStore(nh, shardID, 5*time.Second)
//
// For single node deployments the lstore package provides the same interface
// without consensus overhead.
package dstore
