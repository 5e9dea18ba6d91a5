package testing

import (
	"bytes"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/paperKV/lib/db"
)

// DBFactory is a function that creates a new, empty instance of a KVDB implementation
type DBFactory func() db.KVDB

// RunKVDBTests runs a comprehensive test suite for a KVDB implementation.
func RunKVDBTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, factory())
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory())
		})

		t.Run("Has", func(t *testing.T) {
			testHas(t, factory())
		})

		t.Run("Clear", func(t *testing.T) {
			testClear(t, factory())
		})

		t.Run("SaveLoad", func(t *testing.T) {
			testSaveLoad(t, factory)
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, factory())
		})

		t.Run("CollisionHandling", func(t *testing.T) {
			testCollisionHandling(t, factory())
		})

		t.Run("Concurrent", func(t *testing.T) {
			testConcurrent(t, factory())
		})

		t.Run("RealisticUsage", func(t *testing.T) {
			testRealisticUsage(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the database supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, database db.KVDB, feature db.Feature) {
	if !database.SupportsFeature(feature) {
		t.Skip()
	}
}

func mustSet(t testing.TB, database db.KVDB, key string, value []byte) {
	t.Helper()
	if err := database.Set(key, value); err != nil {
		t.Fatalf("Set(%q) failed: %v", key, err)
	}
}

func mustGet(t testing.TB, database db.KVDB, key string) ([]byte, bool) {
	t.Helper()
	value, loaded, err := database.Get(key)
	if err != nil {
		t.Fatalf("Get(%q) failed: %v", key, err)
	}
	return value, loaded
}

func mustHas(t testing.TB, database db.KVDB, key string) bool {
	t.Helper()
	loaded, err := database.Has(key)
	if err != nil {
		t.Fatalf("Has(%q) failed: %v", key, err)
	}
	return loaded
}

func mustDelete(t testing.TB, database db.KVDB, key string) {
	t.Helper()
	if err := database.Delete(key); err != nil {
		t.Fatalf("Delete(%q) failed: %v", key, err)
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet)
	requireFeature(t, database, db.FeatureGet)

	testKey := "test-key"
	testValue1 := []byte("test-value1")
	testValue2 := []byte("test-value2")

	mustSet(t, database, testKey, testValue1)

	result, exists := mustGet(t, database, testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}

	if !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, result)
	}

	mustSet(t, database, testKey, testValue2)

	result, exists = mustGet(t, database, testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}

	if !bytes.Equal(result, testValue2) {
		t.Errorf("Expected value %s, got %s", testValue2, result)
	}

	_, exists = mustGet(t, database, "nonexistent-key")
	if exists {
		t.Errorf("Expected nonexistent key to return exists=false")
	}

	// the returned slice must be owned by the caller
	retrievedValue, _ := mustGet(t, database, testKey)
	retrievedValue[0] = 'X'

	result, _ = mustGet(t, database, testKey)
	if !bytes.Equal(result, testValue2) {
		t.Errorf("Modifying a returned value changed the stored value: got %s", result)
	}

	// the stored value must not alias the input slice
	input := []byte("aliased-value")
	mustSet(t, database, "alias-key", input)
	input[0] = 'X'

	result, _ = mustGet(t, database, "alias-key")
	if !bytes.Equal(result, []byte("aliased-value")) {
		t.Errorf("Modifying the input slice changed the stored value: got %s", result)
	}
}

func testDelete(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet)
	requireFeature(t, database, db.FeatureGet)
	requireFeature(t, database, db.FeatureDelete)

	testKey := "test-key-delete"
	testValue := []byte("test-value")

	mustSet(t, database, testKey, testValue)

	_, exists := mustGet(t, database, testKey)
	if !exists {
		t.Fatalf("Key %s should exist after Set", testKey)
	}

	mustDelete(t, database, testKey)

	_, exists = mustGet(t, database, testKey)
	if exists {
		t.Errorf("Key %s should not exist after Delete", testKey)
	}

	// deleting an absent key is not an error
	mustDelete(t, database, testKey)
	mustDelete(t, database, "never-written")

	// a deleted key can be written again
	mustSet(t, database, testKey, []byte("second-life"))
	result, exists := mustGet(t, database, testKey)
	if !exists || !bytes.Equal(result, []byte("second-life")) {
		t.Errorf("Expected rewritten key to hold %q, got %q (exists=%v)", "second-life", result, exists)
	}
}

func testHas(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet)
	requireFeature(t, database, db.FeatureHas)
	requireFeature(t, database, db.FeatureDelete)

	testKey := "test-key-has"

	if mustHas(t, database, testKey) {
		t.Errorf("Has returned true for a key that was never written")
	}

	mustSet(t, database, testKey, []byte("value"))

	if !mustHas(t, database, testKey) {
		t.Errorf("Has returned false after Set")
	}

	// an empty value is still a present key
	mustSet(t, database, "empty", []byte{})
	if !mustHas(t, database, "empty") {
		t.Errorf("Has returned false for a key with an empty value")
	}

	mustDelete(t, database, testKey)

	if mustHas(t, database, testKey) {
		t.Errorf("Has returned true after Delete")
	}
}

func testClear(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet)
	requireFeature(t, database, db.FeatureHas)
	requireFeature(t, database, db.FeatureClear)

	// clearing an empty database is fine
	if err := database.Clear(); err != nil {
		t.Fatalf("Clear on empty database failed: %v", err)
	}

	numKeys := 100
	for i := 0; i < numKeys; i++ {
		mustSet(t, database, fmt.Sprintf("clear-key-%d", i), []byte(fmt.Sprintf("value-%d", i)))
	}

	if err := database.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("clear-key-%d", i)
		if mustHas(t, database, key) {
			t.Errorf("Key %s still present after Clear", key)
		}
	}

	if info := database.GetInfo(); info.Keys != 0 {
		t.Errorf("Expected 0 keys after Clear, got %d", info.Keys)
	}

	// clearing twice is idempotent
	if err := database.Clear(); err != nil {
		t.Fatalf("Second Clear failed: %v", err)
	}

	// the database is usable after Clear
	mustSet(t, database, "after-clear", []byte("ok"))
	if !mustHas(t, database, "after-clear") {
		t.Errorf("Database not writable after Clear")
	}
}

func testSaveLoad(t *testing.T, factory DBFactory) {
	database := factory()
	database2 := factory()

	// close the databases after the test
	defer database.Close()
	defer database2.Close()

	requireFeature(t, database, db.FeatureSet)
	requireFeature(t, database, db.FeatureGet)
	requireFeature(t, database, db.FeatureSave)
	requireFeature(t, database, db.FeatureLoad)

	numEntries := 1000
	originalKeys := make([]string, numEntries)
	originalValues := make([][]byte, numEntries)

	for i := 0; i < numEntries; i++ {
		key := fmt.Sprintf("save-load-test-key-%d", i)
		value := []byte(fmt.Sprintf("save-load-test-value-%d", i))
		originalKeys[i] = key
		originalValues[i] = value

		mustSet(t, database, key, value)
	}

	// a key that only exists in the target must be gone after Load
	mustSet(t, database2, "stale-key", []byte("stale"))

	var buf bytes.Buffer
	err := database.Save(&buf)
	if err != nil {
		t.Errorf("Unexpected error during Save: %v", err)
	}

	err = database2.Load(&buf)
	if err != nil {
		t.Errorf("Unexpected error during Load: %v", err)
	}

	if _, exists := mustGet(t, database2, "stale-key"); exists {
		t.Errorf("Load did not replace the existing content")
	}

	for i := 0; i < numEntries; i++ {
		key := originalKeys[i]
		expectedValue := originalValues[i]

		actualValue, exists := mustGet(t, database2, key)
		if !exists {
			t.Errorf("Key %s not found after Load", key)
			continue
		}

		if !bytes.Equal(actualValue, expectedValue) {
			t.Errorf("Value mismatch for key %s: expected %s, got %s", key, expectedValue, actualValue)
		}
	}

	for i := 0; i < numEntries; i++ {
		key := originalKeys[i]
		expectedValue := originalValues[i]

		actualValue, exists := mustGet(t, database, key)
		if !exists {
			t.Errorf("Key %s not found in original database", key)
			continue
		}

		if !bytes.Equal(actualValue, expectedValue) {
			t.Errorf("Value mismatch in original database for key %s", key)
		}
	}

	// garbage input must be rejected
	if err := database2.Load(bytes.NewReader([]byte("definitely not a snapshot"))); err == nil {
		t.Errorf("Expected an error when loading garbage")
	}
}

func testEdgeCases(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet)
	requireFeature(t, database, db.FeatureGet)

	emptyKey := ""
	emptyKeyValue := []byte("value for empty key")

	mustSet(t, database, emptyKey, emptyKeyValue)

	result, exists := mustGet(t, database, emptyKey)
	if !exists {
		t.Errorf("Empty key not found after Set")
	} else if !bytes.Equal(result, emptyKeyValue) {
		t.Errorf("Value mismatch for empty key")
	}

	emptyValueKey := "empty-value-key"
	emptyValue := []byte{}

	mustSet(t, database, emptyValueKey, emptyValue)

	result, exists = mustGet(t, database, emptyValueKey)
	if !exists {
		t.Errorf("Key for empty value not found after Set")
	} else if len(result) != 0 {
		t.Errorf("Empty value mismatch: %v", result)
	}

	nilValueKey := "nil-value-key"
	var nilValue []byte = nil

	mustSet(t, database, nilValueKey, nilValue)

	result, exists = mustGet(t, database, nilValueKey)
	if !exists {
		t.Errorf("Key for nil value not found after Set")
	} else if len(result) != 0 {
		t.Errorf("Nil value resulted in non-empty value: %v", result)
	}

	unicodeKey := "ключ/键/🔑 with spaces & ?query=1"
	unicodeValue := []byte("ünïcödé välüé")

	mustSet(t, database, unicodeKey, unicodeValue)

	result, exists = mustGet(t, database, unicodeKey)
	if !exists {
		t.Errorf("Unicode key not found after Set")
	} else if !bytes.Equal(result, unicodeValue) {
		t.Errorf("Value mismatch for unicode key")
	}

	if !t.Failed() {

		largeKey := string(bytes.Repeat([]byte("k"), 200))
		largeKeyValue := []byte("value for large key")

		mustSet(t, database, largeKey, largeKeyValue)

		result, exists = mustGet(t, database, largeKey)
		if !exists {
			t.Errorf("Large key not found after Set")
		} else if !bytes.Equal(result, largeKeyValue) {
			t.Errorf("Value mismatch for large key")
		}

		largeValueKey := "large-value-key"
		largeValue := make([]byte, 8*1024*1024)

		for i := range largeValue {
			largeValue[i] = byte(i % 256)
		}

		mustSet(t, database, largeValueKey, largeValue)

		result, exists = mustGet(t, database, largeValueKey)
		if !exists {
			t.Errorf("Key for large value not found after Set")
		} else if !bytes.Equal(result, largeValue) {

			headMismatch := len(result) < 10 || !bytes.Equal(result[:10], largeValue[:10])
			tailMismatch := len(result) < 10 || !bytes.Equal(result[len(result)-10:], largeValue[len(largeValue)-10:])
			t.Errorf("Large value mismatch: Head mismatch=%v, Tail mismatch=%v, Size mismatch=%v",
				headMismatch, tailMismatch, len(result) != len(largeValue))
		}
	}
}

func testCollisionHandling(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet)
	requireFeature(t, database, db.FeatureGet)
	requireFeature(t, database, db.FeatureDelete)

	prefix := "collision-test-"
	numKeys := 1000

	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("%s%d", prefix, i)
		value := []byte(fmt.Sprintf("value-%d", i))

		mustSet(t, database, key, value)
	}

	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("%s%d", prefix, i)
		expectedValue := []byte(fmt.Sprintf("value-%d", i))

		actualValue, exists := mustGet(t, database, key)
		if !exists {
			t.Errorf("Key %s not found", key)
			continue
		}

		if !bytes.Equal(actualValue, expectedValue) {
			t.Errorf("Value for key %s does not match: expected %s, got %s",
				key, expectedValue, actualValue)
		}
	}

	for i := 0; i < numKeys; i += 2 {
		mustDelete(t, database, fmt.Sprintf("%s%d", prefix, i))
	}

	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("%s%d", prefix, i)
		_, exists := mustGet(t, database, key)

		if i%2 == 0 {
			if exists {
				t.Errorf("Key %s should be deleted", key)
			}
		} else {
			if !exists {
				t.Errorf("Key %s should still exist", key)
			}
		}
	}

	if info := database.GetInfo(); info.Keys != numKeys/2 {
		t.Errorf("Expected GetInfo to report %d keys, got %d", numKeys/2, info.Keys)
	}
}

// testConcurrent hammers a small key space from many goroutines. Every value
// written is self-describing so torn writes are detected on read.
func testConcurrent(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet)
	requireFeature(t, database, db.FeatureGet)
	requireFeature(t, database, db.FeatureDelete)

	const (
		numWorkers   = 16
		opsPerWorker = 200
		numKeys      = 20
	)

	var wg sync.WaitGroup
	var errorCount int32
	wg.Add(numWorkers)

	for w := 0; w < numWorkers; w++ {
		go func(workerId int) {
			defer wg.Done()
			for i := 0; i < opsPerWorker; i++ {
				key := fmt.Sprintf("shared-%d", (workerId+i)%numKeys)
				switch i % 4 {
				case 0, 1:
					if err := database.Set(key, []byte(key+"|payload")); err != nil {
						atomic.AddInt32(&errorCount, 1)
					}
				case 2:
					value, ok, err := database.Get(key)
					if err != nil {
						atomic.AddInt32(&errorCount, 1)
					} else if ok && !bytes.Equal(value, []byte(key+"|payload")) {
						atomic.AddInt32(&errorCount, 1)
					}
				case 3:
					if err := database.Delete(key); err != nil {
						atomic.AddInt32(&errorCount, 1)
					}
				}
			}
		}(w)
	}

	wg.Wait()

	if n := atomic.LoadInt32(&errorCount); n > 0 {
		t.Fatalf("Test had %d errors during concurrent operations", n)
	}
}

func testRealisticUsage(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet)
	requireFeature(t, database, db.FeatureGet)
	requireFeature(t, database, db.FeatureDelete)

	type operation struct {
		op    string
		key   string
		value []byte
	}

	numOperations := 5_000
	operations := make([]operation, numOperations)

	for i := 0; i < numOperations; i++ {
		var op string
		switch i % 10 {
		case 0, 1, 2, 3, 4, 5, 6:
			op = "set"
		case 7, 8:
			op = "get"
		case 9:
			op = "delete"
		}

		var key string
		if i%5 == 0 {
			key = fmt.Sprintf("hot-key-%d", i%50)
		} else {
			key = fmt.Sprintf("key-%d", i)
		}

		var value []byte
		if op == "set" {
			valueSize := 64
			if i%10 == 0 {
				valueSize = 1024
			}
			value = make([]byte, valueSize)

			for j := 0; j < valueSize; j++ {
				value[j] = byte((i + j) % 256)
			}
		}

		operations[i] = operation{op, key, value}
	}

	allKeys := make(map[string]bool)
	for _, op := range operations {
		allKeys[op.key] = true
	}

	numWorkers := 8
	var wg sync.WaitGroup
	wg.Add(numWorkers)

	var errorCount int32

	opsPerWorker := numOperations / numWorkers

	for w := 0; w < numWorkers; w++ {
		go func(workerId int) {
			defer wg.Done()

			start := workerId * opsPerWorker
			end := start + opsPerWorker

			for i := start; i < end; i++ {
				op := operations[i]

				var err error
				switch op.op {
				case "set":
					err = database.Set(op.key, op.value)
				case "get":
					_, _, err = database.Get(op.key)
				case "delete":
					err = database.Delete(op.key)
				}
				if err != nil {
					atomic.AddInt32(&errorCount, 1)
				}
			}
		}(w)
	}

	wg.Wait()

	if atomic.LoadInt32(&errorCount) > 0 {
		t.Fatalf("Test had %d errors during parallel operations", errorCount)
		return
	}

	var (
		dbMutex   sync.Mutex
		keyStatus = make(map[string]bool)
		keyValues = make(map[string][]byte)
	)

	var verifyWg sync.WaitGroup
	verifyWg.Add(len(allKeys))

	for key := range allKeys {
		go func(k string) {
			defer verifyWg.Done()

			value, exists, err := database.Get(k)
			if err != nil {
				atomic.AddInt32(&errorCount, 1)
				return
			}

			dbMutex.Lock()
			defer dbMutex.Unlock()

			keyStatus[k] = exists
			if exists {
				keyValues[k] = value
			}
		}(key)
	}

	verifyWg.Wait()

	if atomic.LoadInt32(&errorCount) > 0 {
		t.Fatalf("Test had %d errors during verification", errorCount)
	}

	// the database is quiescent now, a second pass must see the same state
	for key := range allKeys {
		value, exists := mustGet(t, database, key)

		if exists != keyStatus[key] {
			t.Errorf("Consistency error: Key %s existence changed during verification", key)
			continue
		}

		if exists && !bytes.Equal(value, keyValues[key]) {
			t.Errorf("Value mismatch for key %s between verification passes", key)
		}
	}
}
