package plainfile

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ValentinKolb/paperKV/lib/db"
	"github.com/ValentinKolb/paperKV/lib/db/util"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("db")

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	fileExt        = ".pt"  // Extension of a value file
	backupExt      = ".bak" // Appended to a value file while it is being rewritten
	defaultStripes = 64     // Number of lock stripes if none are configured
)

// --------------------------------------------------------------------------
// Core plainfile database structure
// --------------------------------------------------------------------------

// plainFileImpl stores every key in its own file inside one directory.
//
// A write first moves the current file aside to a backup, then writes the new
// content and finally removes the backup. A backup found later therefore
// always holds the last complete value and wins over the file next to it.
type plainFileImpl struct {
	dir     string
	seed    uint64
	sync    bool
	mu      sync.RWMutex   // exclusive for Clear, shared for everything else
	stripes []sync.RWMutex // per-key locks, selected by hash
}

// DBOptions configures the plainfile engine
type DBOptions struct {
	Dir        string // Directory holding the value files (required)
	NumStripes int    // Number of lock stripes (0 = default)
	Sync       bool   // fsync every value file after writing
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewPlainFileDB creates the directory if needed and returns an engine working on it
func NewPlainFileDB(opts *DBOptions) (db.KVDB, error) {
	if opts == nil || opts.Dir == "" {
		return nil, fmt.Errorf("plainfile: a directory is required")
	}
	stripes := opts.NumStripes
	if stripes <= 0 {
		stripes = defaultStripes
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("plainfile: create directory %s: %w", opts.Dir, err)
	}

	return &plainFileImpl{
		dir:     opts.Dir,
		seed:    util.GenerateSeed(),
		sync:    opts.Sync,
		stripes: make([]sync.RWMutex, stripes),
	}, nil
}

func (p *plainFileImpl) stripeFor(key string) *sync.RWMutex {
	return &p.stripes[util.Stripe(util.HashString(key, p.seed), len(p.stripes))]
}

// pathFor maps a key to its file. Escaping keeps every key a single path segment.
func (p *plainFileImpl) pathFor(key string) string {
	return filepath.Join(p.dir, url.PathEscape(key)+fileExt)
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (p *plainFileImpl) writeFile(path string, value []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(value); err != nil {
		f.Close()
		return err
	}
	if p.sync {
		if err := f.Sync(); err != nil {
			f.Close()
			return err
		}
	}
	return f.Close()
}

// restore puts a leftover backup back in place of a possibly broken value file.
// The caller must hold the stripe lock exclusively.
func (p *plainFileImpl) restore(key, path string) error {
	backup := path + backupExt
	pending, err := exists(backup)
	if err != nil || !pending {
		return err
	}
	log.Warningf("restoring backup of key %q in %s", key, p.dir)
	if err := removeIfExists(path); err != nil {
		return err
	}
	return os.Rename(backup, path)
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Write Operations
// --------------------------------------------------------------------------

// Set writes value to the file of key
func (p *plainFileImpl) Set(key string, value []byte) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	lock := p.stripeFor(key)
	lock.Lock()
	defer lock.Unlock()

	path := p.pathFor(key)
	backup := path + backupExt

	current, err := exists(path)
	if err != nil {
		return fmt.Errorf("plainfile: stat %q: %w", key, err)
	}
	if current {
		pending, err := exists(backup)
		if err != nil {
			return fmt.Errorf("plainfile: stat backup of %q: %w", key, err)
		}
		if pending {
			// the backup is the last complete value, the file next to it is not
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("plainfile: remove broken file of %q: %w", key, err)
			}
		} else if err := os.Rename(path, backup); err != nil {
			return fmt.Errorf("plainfile: back up %q: %w", key, err)
		}
	}

	if err := p.writeFile(path, value); err != nil {
		_ = removeIfExists(path)
		return fmt.Errorf("plainfile: write %q: %w", key, err)
	}

	if err := removeIfExists(backup); err != nil {
		return fmt.Errorf("plainfile: remove backup of %q: %w", key, err)
	}
	return nil
}

// Delete removes the file of key and any backup of it
func (p *plainFileImpl) Delete(key string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	lock := p.stripeFor(key)
	lock.Lock()
	defer lock.Unlock()

	path := p.pathFor(key)
	if err := removeIfExists(path + backupExt); err != nil {
		return fmt.Errorf("plainfile: delete backup of %q: %w", key, err)
	}
	if err := removeIfExists(path); err != nil {
		return fmt.Errorf("plainfile: delete %q: %w", key, err)
	}
	return nil
}

// Clear removes every value and backup file. Other files in the directory are left alone.
func (p *plainFileImpl) Clear() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return fmt.Errorf("plainfile: read directory: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !(strings.HasSuffix(name, fileExt) || strings.HasSuffix(name, fileExt+backupExt)) {
			continue
		}
		if err := removeIfExists(filepath.Join(p.dir, name)); err != nil {
			return fmt.Errorf("plainfile: clear: %w", err)
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Query Operations
// --------------------------------------------------------------------------

// Get reads the file of key, restoring a leftover backup first
func (p *plainFileImpl) Get(key string) ([]byte, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	lock := p.stripeFor(key)
	path := p.pathFor(key)

	lock.RLock()
	pending, err := exists(path + backupExt)
	if err != nil {
		lock.RUnlock()
		return nil, false, fmt.Errorf("plainfile: stat backup of %q: %w", key, err)
	}
	if !pending {
		defer lock.RUnlock()
		return readValue(key, path)
	}
	lock.RUnlock()

	lock.Lock()
	defer lock.Unlock()
	if err := p.restore(key, path); err != nil {
		return nil, false, fmt.Errorf("plainfile: restore %q: %w", key, err)
	}
	return readValue(key, path)
}

func readValue(key, path string) ([]byte, bool, error) {
	value, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("plainfile: read %q: %w", key, err)
	}
	return value, true, nil
}

// Has reports whether key has a value file or a backup of one
func (p *plainFileImpl) Has(key string) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	lock := p.stripeFor(key)
	lock.RLock()
	defer lock.RUnlock()

	path := p.pathFor(key)
	for _, candidate := range []string{path, path + backupExt} {
		ok, err := exists(candidate)
		if err != nil {
			return false, fmt.Errorf("plainfile: stat %q: %w", key, err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Persistence
// --------------------------------------------------------------------------

// Save is not supported, the directory already is the persistent state
func (p *plainFileImpl) Save(io.Writer) error {
	return db.ErrUnsupported
}

// Load is not supported
func (p *plainFileImpl) Load(io.Reader) error {
	return db.ErrUnsupported
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Features and Metadata
// --------------------------------------------------------------------------

// GetInfo counts the keys in the directory. A backup without its value file counts as a key.
func (p *plainFileImpl) GetInfo() db.DatabaseInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()

	sizes := make(map[string]int)
	pendingBackups := 0

	entries, err := os.ReadDir(p.dir)
	if err != nil {
		log.Errorf("plainfile: read directory %s: %v", p.dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// removed while listing
			continue
		}
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, fileExt+backupExt):
			pendingBackups++
			base := strings.TrimSuffix(name, backupExt)
			if _, ok := sizes[base]; !ok {
				sizes[base] = int(info.Size())
			}
		case strings.HasSuffix(name, fileExt):
			sizes[name] = int(info.Size())
		}
	}

	sizeBytes := 0
	for _, size := range sizes {
		sizeBytes += size
	}

	meta := &struct {
		Dir            string `json:"dir"`
		Stripes        int    `json:"stripes"`
		PendingBackups int    `json:"pending_backups"`
		Sync           bool   `json:"sync"`
	}{
		Dir:            p.dir,
		Stripes:        len(p.stripes),
		PendingBackups: pendingBackups,
		Sync:           p.sync,
	}

	return db.DatabaseInfo{
		SizeBytes: sizeBytes,
		Keys:      len(sizes),
		DbType:    db.ImplPlainFile,
		SupportedFeatures: []db.Feature{
			db.FeatureSet, db.FeatureGet, db.FeatureDelete, db.FeatureHas, db.FeatureClear,
		},
		Metadata: meta,
	}
}

// SupportsFeature checks if this implementation supports a specific KVDB feature
func (p *plainFileImpl) SupportsFeature(feature db.Feature) bool {
	supportedFeatures := db.FeatureSet |
		db.FeatureGet |
		db.FeatureDelete |
		db.FeatureHas |
		db.FeatureClear
	return supportedFeatures&feature == feature
}

// Close is a no-op, no file stays open between calls
func (p *plainFileImpl) Close() error {
	return nil
}
