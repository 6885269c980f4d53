// Package rollback restores the state database and the reward calc
// database to a prior block boundary using the WAL backup file of that
// block.
package rollback

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prismchain/prism/common/metrics"
	"github.com/prismchain/prism/logger"
	"github.com/prismchain/prism/state/backup"
	"github.com/prismchain/prism/state/rcdb"
	"github.com/prismchain/prism/state/wal"
	"github.com/prismchain/prism/storage"
)

var (
	// ErrHeightMismatch means the backup file does not belong to the
	// requested block, an integrity bug rather than a recoverable condition
	ErrHeightMismatch = errors.New("wal block height mismatch")
)

// Manager rolls the node state back to one block boundary
type Manager struct {
	backupMgr  *backup.Manager
	rcDataPath string
	dbOptions  map[string]interface{}
	log        logger.Logger
}

// NewManager builds a rollback manager. dbOptions carry the kv driver
// tuning for the reward calc databases it opens, usually built with
// EnvConf.GenKVOptions
func NewManager(backupRootPath, rcDataPath string, dbOptions map[string]interface{},
	log logger.Logger) *Manager {
	return &Manager{
		backupMgr:  backup.NewManager(backupRootPath, log),
		rcDataPath: rcDataPath,
		dbOptions:  dbOptions,
		log:        log,
	}
}

// Run rolls back to the state right after blockHeight was committed.
// It returns the resulting height and whether that block ended a
// calculation period. The sentinel (-1, false) without error means no
// rollback was performed: negative target or no backup history.
func (t *Manager) Run(stateDB storage.Database, blockHeight int64) (int64, bool, error) {
	t.log.Info("rollback start", "height", blockHeight)

	if blockHeight < 0 {
		t.log.Debug("rollback end, negative height")
		return -1, false, nil
	}

	path := t.backupMgr.FilePath(blockHeight)
	if !t.backupMgr.Exists(blockHeight) {
		t.log.Info("backup state file not found", "path", path)
		return -1, false, nil
	}

	start := time.Now()
	isCalcPeriodEndBlock, err := t.replay(stateDB, path, blockHeight)
	if err != nil {
		metrics.RollbackHistogram.WithLabelValues("error").Observe(time.Since(start).Seconds())
		t.log.Error("rollback failed", "height", blockHeight, "err", err)
		return -1, false, err
	}
	metrics.RollbackHistogram.WithLabelValues("ok").Observe(time.Since(start).Seconds())

	// Remove the backup file after rollback is done
	t.removeBackupFile(path)

	t.log.Info("rollback end", "height", blockHeight, "calcPeriodEnd", isCalcPeriodEndBlock)
	return blockHeight, isCalcPeriodEndBlock, nil
}

func (t *Manager) replay(stateDB storage.Database, path string, blockHeight int64) (bool, error) {
	reader := wal.NewReader()
	defer reader.Close()

	if err := reader.Open(path); err != nil {
		return false, err
	}

	isCalcPeriodEndBlock := reader.State()&wal.StateCalcPeriodEndBlock != 0

	if reader.Block().Height != blockHeight {
		return false, fmt.Errorf("%w: wal=%d target=%d",
			ErrHeightMismatch, reader.Block().Height, blockHeight)
	}
	if reader.BatchCount() != wal.ExpectedBatchCount {
		return false, fmt.Errorf("%w: batch count %d",
			wal.ErrCorruptedWAL, reader.BatchCount())
	}

	if err := t.rollbackRCDB(reader, isCalcPeriodEndBlock); err != nil {
		return false, err
	}
	if err := reader.ApplyTo(stateDB, wal.DBTypeState); err != nil {
		return false, err
	}
	return isCalcPeriodEndBlock, nil
}

func (t *Manager) rollbackRCDB(reader *wal.Reader, isCalcPeriodEndBlock bool) error {
	t.log.Debug("rollback rc db start", "calcPeriodEnd", isCalcPeriodEndBlock)

	if isCalcPeriodEndBlock {
		if err := t.rollbackRCDBOnEndBlock(reader); err != nil {
			return err
		}
	} else {
		db, err := rcdb.CreateCurrentDB(t.rcDataPath, t.dbOptions)
		if err != nil {
			return err
		}
		err = reader.ApplyTo(db, wal.DBTypeRC)
		db.Close()
		if err != nil {
			return err
		}
	}

	t.log.Debug("rollback rc db end")
	return nil
}

// rollbackRCDBOnEndBlock resolves the current/iiss database pair when the
// target block ended a calculation period. The current database is renamed
// aside before the iiss database is renamed into place, so a crash in
// between never leaves zero valid databases behind.
func (t *Manager) rollbackRCDBOnEndBlock(reader *wal.Reader) error {
	current, standby, iiss, err := rcdb.Scan(t.rcDataPath)
	if err != nil {
		return err
	}
	if standby != "" {
		return fmt.Errorf("%w: %s", rcdb.ErrStandbyExists, standby)
	}

	currentPath := rcdb.CurrentDBPath(t.rcDataPath)

	switch {
	case current != "" && iiss != "":
		// drop the next period current db, the iiss db becomes current
		stale := filepath.Join(t.rcDataPath,
			fmt.Sprintf("%s%d", rcdb.StaleDBNamePrefix, time.Now().UnixNano()))
		if err = os.Rename(current, stale); err != nil {
			return fmt.Errorf("rename current rc db failed.err:%v", err)
		}
		if err = t.renameRCDB(iiss, currentPath); err != nil {
			return err
		}
		if err = os.RemoveAll(stale); err != nil {
			t.log.Warn("remove stale rc db failed", "path", stale, "err", err)
		}
	case current != "" && iiss == "":
		// current is already correct
	case current == "" && iiss != "":
		if err = t.renameRCDB(iiss, currentPath); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: neither current nor iiss exists", rcdb.ErrDatabaseNotFound)
	}

	return t.removeBlockProduceInfo(currentPath, reader.Block().Height)
}

func (t *Manager) renameRCDB(srcPath, dstPath string) error {
	t.log.Info("rename rc db", "src", srcPath, "dst", dstPath)
	if err := os.Rename(srcPath, dstPath); err != nil {
		return fmt.Errorf("rename rc db failed.src:%s,dst:%s,err:%v", srcPath, dstPath, err)
	}
	return nil
}

// removeBlockProduceInfo drops the block production info record of the
// rolled back block. It is written speculatively during normal operation
// and must not survive into the rolled back state.
func (t *Manager) removeBlockProduceInfo(dbPath string, blockHeight int64) error {
	t.log.Debug("remove block produce info", "path", dbPath, "height", blockHeight)

	db, err := rcdb.OpenDB(dbPath, t.dbOptions)
	if err != nil {
		return err
	}
	defer db.Close()

	return db.Delete(rcdb.MakeBlockProduceInfoKey(blockHeight))
}

func (t *Manager) removeBackupFile(path string) {
	err := os.Remove(path)
	if err == nil || os.IsNotExist(err) {
		return
	}
	// rollback already succeeded, a leftover file is cleaned up later
	t.log.Warn("remove backup file failed", "path", path, "err", err)
}
