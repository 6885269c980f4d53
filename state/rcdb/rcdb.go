// Package rcdb manages the on disk layout of the reward calculation
// databases. Reward calc data lives in up to three locations under one
// root: the settled "current" database, a transient "standby" database
// and the "iiss" database of the period being built.
package rcdb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/prismchain/prism/logger"
	"github.com/prismchain/prism/storage/leveldb"
)

const (
	// CurrentDBName is the directory name of the settled period database
	CurrentDBName = "current_db"
	// StandbyDBNamePrefix marks a database waiting to be handed off
	StandbyDBNamePrefix = "standby_rc_db_"
	// IISSDBNamePrefix marks the database of the period being built
	IISSDBNamePrefix = "iiss_rc_db_"
	// StaleDBNamePrefix marks a database renamed aside during rollback,
	// removable at any time
	StaleDBNamePrefix = "stale_rc_db_"

	blockProduceInfoPrefix = "BP"
)

var (
	ErrDatabaseNotFound = errors.New("rc database not found")
	ErrStandbyExists    = errors.New("standby rc database must not exist")
)

// MakeBlockProduceInfoKey builds the key of the block production info
// record written speculatively for every block
func MakeBlockProduceInfoKey(blockHeight int64) []byte {
	key := make([]byte, len(blockProduceInfoPrefix)+8)
	copy(key, blockProduceInfoPrefix)
	binary.BigEndian.PutUint64(key[len(blockProduceInfoPrefix):], uint64(blockHeight))
	return key
}

// Scan resolves the current, standby and iiss database paths under root.
// A missing database resolves to the empty string.
func Scan(root string) (current, standby, iiss string, err error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return "", "", "", nil
		}
		return "", "", "", fmt.Errorf("scan rc data path failed.path:%s,err:%v", root, err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		switch {
		case name == CurrentDBName:
			current = filepath.Join(root, name)
		case strings.HasPrefix(name, StandbyDBNamePrefix):
			standby = filepath.Join(root, name)
		case strings.HasPrefix(name, IISSDBNamePrefix):
			iiss = filepath.Join(root, name)
		}
	}
	return current, standby, iiss, nil
}

// CleanupStale removes databases left aside by an interrupted rollback
func CleanupStale(root string, log logger.Logger) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), StaleDBNamePrefix) {
			continue
		}
		path := filepath.Join(root, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			log.Warn("remove stale rc db failed", "path", path, "err", err)
			continue
		}
		log.Info("stale rc db removed", "path", path)
	}
}

// CurrentDBPath returns the path of the current database under root
func CurrentDBPath(root string) string {
	return filepath.Join(root, CurrentDBName)
}

// CreateCurrentDB opens the current database under root, creating it
// if missing. options carry the kv driver tuning, usually built with
// EnvConf.GenKVOptions
func CreateCurrentDB(root string, options map[string]interface{}) (*leveldb.LDBDatabase, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("make rc data dir failed.err:%v", err)
	}
	return leveldb.NewLDBDatabase(CurrentDBPath(root), options)
}

// OpenDB opens an existing reward calc database
func OpenDB(path string, options map[string]interface{}) (*leveldb.LDBDatabase, error) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrDatabaseNotFound, path)
	}
	return leveldb.NewLDBDatabase(path, options)
}
