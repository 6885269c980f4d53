// Package backup produces and locates the per block WAL backup files
// consumed by rollback.
package backup

import (
	"fmt"
	"os"
	"path/filepath"

	lbase "github.com/prismchain/prism/ledger/base"
	"github.com/prismchain/prism/logger"
	"github.com/prismchain/prism/state/wal"
)

// GetBackupFilename returns the backup file name for a block height
func GetBackupFilename(blockHeight int64) string {
	return fmt.Sprintf("block-%d.bak", blockHeight)
}

// Manager writes and locates WAL backup files under a root directory
type Manager struct {
	backupRootPath string
	log            logger.Logger
}

func NewManager(backupRootPath string, log logger.Logger) *Manager {
	return &Manager{
		backupRootPath: backupRootPath,
		log:            log,
	}
}

// FilePath returns the backup file path for a block height
func (t *Manager) FilePath(blockHeight int64) string {
	return filepath.Join(t.backupRootPath, GetBackupFilename(blockHeight))
}

// Exists reports whether a backup file exists for a block height
func (t *Manager) Exists(blockHeight int64) bool {
	info, err := os.Stat(t.FilePath(blockHeight))
	return err == nil && !info.IsDir()
}

// Write produces the backup file for a block. The file is staged under a
// temp name and renamed into place so a partially written backup is never
// picked up by rollback.
func (t *Manager) Write(state wal.WALState, block *lbase.BlockInfo,
	stateRecords, rcRecords []wal.Record) error {
	if block == nil || block.Height < 0 {
		return fmt.Errorf("invalid block for backup")
	}
	if err := os.MkdirAll(t.backupRootPath, 0755); err != nil {
		return fmt.Errorf("make backup dir failed.err:%v", err)
	}

	path := t.FilePath(block.Height)
	tmpPath := path + ".tmp"

	writer, err := wal.NewWriter(tmpPath)
	if err != nil {
		return err
	}
	err = t.write(writer, state, block, stateRecords, rcRecords)
	if closeErr := writer.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err = os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("stage backup file failed.err:%v", err)
	}

	t.log.Debug("backup file written", "path", path, "height", block.Height)
	return nil
}

func (t *Manager) write(writer *wal.Writer, state wal.WALState, block *lbase.BlockInfo,
	stateRecords, rcRecords []wal.Record) error {
	if err := writer.WriteHeader(state, block); err != nil {
		return err
	}
	// rc batch first, replayed in the same order by rollback
	if err := writer.WriteBatch(wal.DBTypeRC, rcRecords); err != nil {
		return err
	}
	return writer.WriteBatch(wal.DBTypeState, stateRecords)
}
