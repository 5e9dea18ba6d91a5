package dstore

import (
	"fmt"
	"io"
	"time"

	"github.com/ValentinKolb/paperKV/lib/db"
	"github.com/ValentinKolb/paperKV/lib/store"
	"github.com/ValentinKolb/paperKV/lib/store/dstore/internal"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

// --------------------------------------------------------------------------
// State Machine Implementation
// --------------------------------------------------------------------------

// KVStateMachine is a state machine implementation for Dragonboat RAFT
type KVStateMachine struct {
	replicaID uint64
	shardID   uint64
	database  db.KVDB // the actual dataStorage
}

// CreateStateMachineFactory returns a function that can be used by dragonboat to create a new state machine for a node host.
// The factory pattern is used to enable the caller to pass an interchangeable dbFactory.
//
// The database must support Save and Load so raft snapshots can be taken. Its content is
// cleared on creation because the raft log and snapshots are the source of truth.
func CreateStateMachineFactory(dbFactory store.DBFactory) func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
	return func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
		database, err := dbFactory()
		if err != nil {
			log.Panicf("shard %d: failed to create database: %v", shardID, err)
		}
		if !database.SupportsFeature(db.FeatureSave | db.FeatureLoad | db.FeatureClear) {
			log.Panicf("shard %d: %s does not support snapshots", shardID, database.GetInfo().DbType)
		}
		if err := database.Clear(); err != nil {
			log.Panicf("shard %d: failed to reset database: %v", shardID, err)
		}
		return &KVStateMachine{
			replicaID: replicaID,
			shardID:   shardID,
			database:  database,
		}
	}
}

// Lookup handles read-only queries by mapping each Query operation to the corresponding KVDB method.
func (fsm *KVStateMachine) Lookup(itf interface{}) (interface{}, error) {

	// try to parse Query into Query struct
	q, ok := itf.(internal.Query)
	if !ok {
		return nil, store.NewError(store.RetCInternalError, fmt.Sprintf("invalid Query type: %T", itf))
	}

	// Handle different Query types
	switch q.Type {
	case internal.QueryTGet:
		if !fsm.database.SupportsFeature(db.FeatureGet) {
			return nil, store.NewError(store.RetCUnsupportedOperation, "Get operation is not supported")
		}
		val, ok, err := fsm.database.Get(q.Key)
		if err != nil {
			return nil, store.WrapError(store.RetCIOError, "Get failed", err)
		}
		return internal.QueryResult{
			Value: val,
			Ok:    ok,
		}, nil
	case internal.QueryTHas:
		if !fsm.database.SupportsFeature(db.FeatureHas) {
			return nil, store.NewError(store.RetCUnsupportedOperation, "Has operation is not supported")
		}
		ok, err := fsm.database.Has(q.Key)
		if err != nil {
			return nil, store.WrapError(store.RetCIOError, "Has failed", err)
		}
		return ok, nil
	case internal.QueryTGetDBInfo:
		return fsm.database.GetInfo(), nil
	default:
		return nil, store.NewError(store.RetCInvalidOperation, fmt.Sprintf("unknown query operation: %s", q.Type))
	}
}

// apply executes a single command and returns the raft result for it
func (fsm *KVStateMachine) apply(data []byte) sm.Result {
	if len(data) == 0 {
		return sm.Result{Value: uint64(store.RetCInvalidOperation), Data: []byte("empty command ignored")}
	}

	cmd := internal.Command{}
	if err := cmd.Deserialize(data); err != nil {
		return sm.Result{
			Value: uint64(store.RetCInternalError),
			Data:  []byte(fmt.Sprintf("failed to deserialize command: %v", err)),
		}
	}

	// Check if the db supports the operation
	feat, err := cmd.Type.ToDBFeature()
	if err != nil {
		return sm.Result{
			Value: uint64(store.RetCInvalidOperation),
			Data:  []byte(fmt.Sprintf("unknown Command operation: %s", cmd.Type)),
		}
	}
	if !fsm.database.SupportsFeature(feat) {
		return sm.Result{
			Value: uint64(store.RetCUnsupportedOperation),
			Data:  []byte(fmt.Sprintf("%s operation is not supported", cmd.Type)),
		}
	}

	switch cmd.Type {
	case internal.CommandTSet:
		err = fsm.database.Set(cmd.Key, cmd.Value)
	case internal.CommandTDelete:
		err = fsm.database.Delete(cmd.Key)
	case internal.CommandTClear:
		err = fsm.database.Clear()
	}
	if err != nil {
		return sm.Result{
			Value: uint64(store.RetCIOError),
			Data:  []byte(fmt.Sprintf("%s failed: %v", cmd.Type, err)),
		}
	}
	return sm.Result{Value: uint64(store.RetCSuccess)}
}

// Update handles write commands on the KVDB instance
// All write operations are serialized into []byte and are accessible via the entries struct
func (fsm *KVStateMachine) Update(entries []sm.Entry) ([]sm.Entry, error) {

	// Nothing to do
	if len(entries) == 0 {
		return entries, nil
	}

	// Stats
	start := time.Now()

	for idx, e := range entries {
		entries[idx].Result = fsm.apply(e.Cmd)
	}

	// Log if the update took long
	if elapsed := time.Since(start); elapsed > time.Millisecond {
		log.Infof("State machine took long to update. Batch updated %d entries, took %.2fms", len(entries), float64(elapsed)/float64(time.Millisecond))
	}
	return entries, nil
}

// PrepareSnapshot is not used. We don't need to prepare anything since we use fuzzy snapshotting
func (fsm *KVStateMachine) PrepareSnapshot() (interface{}, error) {
	return nil, nil
}

// SaveSnapshot saves a fuzzy db snapshot to the writer
func (fsm *KVStateMachine) SaveSnapshot(_ interface{}, writer io.Writer, _ sm.ISnapshotFileCollection, _ <-chan struct{}) error {
	if !fsm.database.SupportsFeature(db.FeatureSave) {
		return fmt.Errorf("the used KVDB implementation does not support Save() operations")
	}
	return fsm.database.Save(writer)
}

// RecoverFromSnapshot replaces the database content with a snapshot.
func (fsm *KVStateMachine) RecoverFromSnapshot(r io.Reader, _ []sm.SnapshotFile, _ <-chan struct{}) error {
	if !fsm.database.SupportsFeature(db.FeatureLoad) {
		return fmt.Errorf("the used KVDB implementation does not support Load() operations")
	}
	return fsm.database.Load(r)
}

// Close performs any necessary cleanup.
func (fsm *KVStateMachine) Close() error {
	return fsm.database.Close()
}
