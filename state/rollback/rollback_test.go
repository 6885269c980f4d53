package rollback

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	xconf "github.com/prismchain/prism/common/config"
	lbase "github.com/prismchain/prism/ledger/base"
	"github.com/prismchain/prism/logger"
	"github.com/prismchain/prism/state/backup"
	"github.com/prismchain/prism/state/rcdb"
	"github.com/prismchain/prism/state/wal"
	"github.com/prismchain/prism/storage"
	"github.com/prismchain/prism/storage/leveldb"
)

type testEnv struct {
	manager    *Manager
	backupMgr  *backup.Manager
	stateDB    *leveldb.LDBDatabase
	backupRoot string
	rcRoot     string
	log        logger.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	logger.InitLogWithConf(logger.GetDefLogConf(), t.TempDir())
	log, err := logger.NewLogger("", "test")
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	backupRoot := filepath.Join(dir, "backup")
	rcRoot := filepath.Join(dir, "rc")

	kvOptions, err := xconf.GetDefEnvConf().GenKVOptions()
	if err != nil {
		t.Fatal("build kv options failed", err)
	}

	stateDB, err := leveldb.NewLDBDatabase(filepath.Join(dir, "state"), kvOptions)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(stateDB.Close)

	return &testEnv{
		manager:    NewManager(backupRoot, rcRoot, kvOptions, log),
		backupMgr:  backup.NewManager(backupRoot, log),
		stateDB:    stateDB,
		backupRoot: backupRoot,
		rcRoot:     rcRoot,
		log:        log,
	}
}

func (e *testEnv) writeBackup(t *testing.T, height int64, state wal.WALState,
	stateRecords, rcRecords []wal.Record) {
	block := &lbase.BlockInfo{Height: height, Hash: []byte("hash"), PrevHash: []byte("prev")}
	if err := e.backupMgr.Write(state, block, stateRecords, rcRecords); err != nil {
		t.Fatal("write backup failed", err)
	}
}

func TestRunSentinels(t *testing.T) {
	env := newTestEnv(t)

	height, isEnd, err := env.manager.Run(env.stateDB, -1)
	if height != -1 || isEnd || err != nil {
		t.Error("negative height should return sentinel", height, isEnd, err)
	}
	if _, statErr := os.Stat(env.backupRoot); !os.IsNotExist(statErr) {
		t.Error("negative height must not touch the filesystem")
	}

	height, isEnd, err = env.manager.Run(env.stateDB, 100)
	if height != -1 || isEnd || err != nil {
		t.Error("missing backup should return sentinel", height, isEnd, err)
	}
}

func TestRunReplay(t *testing.T) {
	env := newTestEnv(t)
	env.stateDB.Put([]byte("stale"), []byte("x"))

	stateRecords := []wal.Record{
		{Key: []byte("sk"), Value: []byte("sv")},
		{Key: []byte("stale"), Delete: true},
	}
	rcRecords := []wal.Record{{Key: []byte("rk"), Value: []byte("rv")}}
	env.writeBackup(t, 10, 0, stateRecords, rcRecords)

	height, isEnd, err := env.manager.Run(env.stateDB, 10)
	if err != nil {
		t.Fatal("rollback failed", err)
	}
	if height != 10 || isEnd {
		t.Error("result mismatch", height, isEnd)
	}

	// state batch applied to the live store
	value, err := env.stateDB.Get([]byte("sk"))
	if err != nil || string(value) != "sv" {
		t.Error("state record missing", value, err)
	}
	if has, _ := env.stateDB.Has([]byte("stale")); has {
		t.Error("state delete not applied")
	}

	// rc batch applied to a fresh current db
	rcDB, err := rcdb.OpenDB(rcdb.CurrentDBPath(env.rcRoot), nil)
	if err != nil {
		t.Fatal("current rc db missing", err)
	}
	defer rcDB.Close()
	value, err = rcDB.Get([]byte("rk"))
	if err != nil || string(value) != "rv" {
		t.Error("rc record missing", value, err)
	}

	// backup file consumed
	if env.backupMgr.Exists(10) {
		t.Error("backup file should be deleted after rollback")
	}
}

func TestRunHeightMismatch(t *testing.T) {
	env := newTestEnv(t)
	if err := os.MkdirAll(env.backupRoot, 0755); err != nil {
		t.Fatal(err)
	}

	// header says height 11 but the file is addressed as height 10
	path := filepath.Join(env.backupRoot, backup.GetBackupFilename(10))
	writer, err := wal.NewWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	block := &lbase.BlockInfo{Height: 11, Hash: []byte("h")}
	writer.WriteHeader(0, block)
	writer.WriteBatch(wal.DBTypeRC, nil)
	writer.WriteBatch(wal.DBTypeState, nil)
	writer.Close()

	_, _, err = env.manager.Run(env.stateDB, 10)
	if !errors.Is(err, ErrHeightMismatch) {
		t.Error("height mismatch should be fatal", err)
	}
	if !env.backupMgr.Exists(10) {
		t.Error("backup file must survive a failed rollback")
	}
}

func TestRunBadBatchCount(t *testing.T) {
	env := newTestEnv(t)
	if err := os.MkdirAll(env.backupRoot, 0755); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(env.backupRoot, backup.GetBackupFilename(10))
	writer, err := wal.NewWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	writer.WriteHeader(0, &lbase.BlockInfo{Height: 10})
	writer.WriteBatch(wal.DBTypeState, nil)
	writer.Close()

	_, _, err = env.manager.Run(env.stateDB, 10)
	if !errors.Is(err, wal.ErrCorruptedWAL) {
		t.Error("single batch log should be an integrity error", err)
	}
}

func fillDB(t *testing.T, path string, key, value string) {
	db, err := leveldb.NewLDBDatabase(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if err := db.Put([]byte(key), []byte(value)); err != nil {
		t.Fatal(err)
	}
}

func readDB(t *testing.T, path string, key string) (string, bool) {
	db, err := rcdb.OpenDB(path, nil)
	if err != nil {
		t.Fatal("open db failed", err)
	}
	defer db.Close()
	value, err := db.Get([]byte(key))
	if storage.ErrNotFound(err) {
		return "", false
	}
	if err != nil {
		t.Fatal(err)
	}
	return string(value), true
}

func TestPeriodBoundaryBothExist(t *testing.T) {
	env := newTestEnv(t)
	currentPath := rcdb.CurrentDBPath(env.rcRoot)
	iissPath := filepath.Join(env.rcRoot, rcdb.IISSDBNamePrefix+"20")

	fillDB(t, currentPath, "origin", "current")
	fillDB(t, iissPath, "origin", "iiss")
	// speculative record that must not survive the rollback
	db, err := leveldb.NewLDBDatabase(iissPath, nil)
	if err != nil {
		t.Fatal(err)
	}
	db.Put(rcdb.MakeBlockProduceInfoKey(10), []byte("bp"))
	db.Close()

	env.writeBackup(t, 10, wal.StateCalcPeriodEndBlock, nil, nil)

	height, isEnd, err := env.manager.Run(env.stateDB, 10)
	if err != nil {
		t.Fatal("rollback failed", err)
	}
	if height != 10 || !isEnd {
		t.Error("result mismatch", height, isEnd)
	}

	// exactly one database remains at current, holding the former iiss content
	if _, statErr := os.Stat(iissPath); !os.IsNotExist(statErr) {
		t.Error("iiss path should be gone")
	}
	value, ok := readDB(t, currentPath, "origin")
	if !ok || value != "iiss" {
		t.Error("current should hold former iiss content", value, ok)
	}
	if _, ok = readDB(t, currentPath, string(rcdb.MakeBlockProduceInfoKey(10))); ok {
		t.Error("block produce info should be removed")
	}
}

func TestPeriodBoundaryCurrentOnly(t *testing.T) {
	env := newTestEnv(t)
	currentPath := rcdb.CurrentDBPath(env.rcRoot)
	fillDB(t, currentPath, "origin", "current")

	env.writeBackup(t, 10, wal.StateCalcPeriodEndBlock, nil, nil)

	if _, _, err := env.manager.Run(env.stateDB, 10); err != nil {
		t.Fatal("rollback failed", err)
	}
	value, ok := readDB(t, currentPath, "origin")
	if !ok || value != "current" {
		t.Error("current content should be untouched", value, ok)
	}
}

func TestPeriodBoundaryIISSOnly(t *testing.T) {
	env := newTestEnv(t)
	iissPath := filepath.Join(env.rcRoot, rcdb.IISSDBNamePrefix+"20")
	fillDB(t, iissPath, "origin", "iiss")

	env.writeBackup(t, 10, wal.StateCalcPeriodEndBlock, nil, nil)

	if _, _, err := env.manager.Run(env.stateDB, 10); err != nil {
		t.Fatal("rollback failed", err)
	}
	value, ok := readDB(t, rcdb.CurrentDBPath(env.rcRoot), "origin")
	if !ok || value != "iiss" {
		t.Error("iiss should be renamed to current", value, ok)
	}
}

func TestPeriodBoundaryNoneExist(t *testing.T) {
	env := newTestEnv(t)
	env.writeBackup(t, 10, wal.StateCalcPeriodEndBlock, nil, nil)

	_, _, err := env.manager.Run(env.stateDB, 10)
	if !errors.Is(err, rcdb.ErrDatabaseNotFound) {
		t.Error("missing both databases should be fatal", err)
	}
}

func TestPeriodBoundaryStandbyAsserted(t *testing.T) {
	env := newTestEnv(t)
	fillDB(t, rcdb.CurrentDBPath(env.rcRoot), "origin", "current")
	if err := os.Mkdir(filepath.Join(env.rcRoot, rcdb.StandbyDBNamePrefix+"5"), 0755); err != nil {
		t.Fatal(err)
	}

	env.writeBackup(t, 10, wal.StateCalcPeriodEndBlock, nil, nil)

	_, _, err := env.manager.Run(env.stateDB, 10)
	if !errors.Is(err, rcdb.ErrStandbyExists) {
		t.Error("standby presence should be fatal", err)
	}
}
