package deploy

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	xconf "github.com/prismchain/prism/common/config"
	contractBase "github.com/prismchain/prism/contract/base"
	"github.com/prismchain/prism/contract/deploy/pkgval"
	lbase "github.com/prismchain/prism/ledger/base"
	"github.com/prismchain/prism/logger"
	sbase "github.com/prismchain/prism/state/base"
)

type fakeAccountStore struct {
	owners map[lbase.Address]lbase.Address
	err    error
}

func newFakeAccountStore() *fakeAccountStore {
	return &fakeAccountStore{owners: make(map[lbase.Address]lbase.Address)}
}

func (t *fakeAccountStore) PutContractOwner(ctx *sbase.ExecCtx, contract, owner lbase.Address) error {
	if t.err != nil {
		return t.err
	}
	t.owners[contract] = owner
	return nil
}

func (t *fakeAccountStore) GetContractOwner(ctx *sbase.ExecCtx, contract lbase.Address) (lbase.Address, error) {
	return t.owners[contract], nil
}

type fakeContract struct {
	schema     contractBase.ParamSchema
	installs   int
	lastParams map[string]interface{}
	err        error
}

func (t *fakeContract) ParamSchema() contractBase.ParamSchema {
	return t.schema
}

func (t *fakeContract) OnInstall(ctx *sbase.ExecCtx, params map[string]interface{}) error {
	t.installs++
	t.lastParams = params
	return t.err
}

type fakeRegistry struct {
	contracts map[lbase.Address]*fakeContract
	databases map[lbase.Address]bool
	deletes   int
	loadErr   error
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		contracts: make(map[lbase.Address]*fakeContract),
		databases: make(map[lbase.Address]bool),
	}
}

func (t *fakeRegistry) GetContract(addr lbase.Address) (contractBase.Contract, error) {
	if t.loadErr != nil {
		return nil, t.loadErr
	}
	instance, ok := t.contracts[addr]
	if !ok {
		instance = &fakeContract{}
		t.contracts[addr] = instance
	}
	t.databases[addr] = true
	return instance, nil
}

func (t *fakeRegistry) DeleteContract(addr lbase.Address) {
	t.deletes++
	delete(t.contracts, addr)
}

func (t *fakeRegistry) HasDB(addr lbase.Address) bool {
	return t.databases[addr]
}

type engineEnv struct {
	engine   *Engine
	accounts *fakeAccountStore
	registry *fakeRegistry
	ctx      *sbase.ExecCtx
	root     string
}

func newEngineEnv(t *testing.T, audit bool) *engineEnv {
	logger.InitLogWithConf(logger.GetDefLogConf(), t.TempDir())
	log, err := logger.NewLogger("", "test")
	if err != nil {
		t.Fatal(err)
	}

	root := t.TempDir()
	cfg := contractBase.DefaultContractConfig()
	cfg.RootPath = root
	cfg.EnableAudit = audit

	accounts := newFakeAccountStore()
	registry := newFakeRegistry()
	engine, err := NewEngine(cfg, accounts, registry, log)
	if err != nil {
		t.Fatal("create engine failed", err)
	}

	ctx, err := sbase.NewExecCtx(&xconf.EnvConf{}, lbase.LatestRevision)
	if err != nil {
		t.Fatal(err)
	}
	origin, _ := lbase.AddressFromHex("0x00000000000000000000000000000000000000ee")
	ctx.SetIdentity(
		&lbase.BlockInfo{Height: 10},
		&lbase.TxInfo{Index: 0, Origin: origin},
		&lbase.MsgInfo{Sender: origin},
	)

	return &engineEnv{engine: engine, accounts: accounts, registry: registry, ctx: ctx, root: root}
}

func testAddr(t *testing.T, suffix string) lbase.Address {
	addr, err := lbase.AddressFromHex("0x00000000000000000000000000000000000000" + suffix)
	if err != nil {
		t.Fatal(err)
	}
	return addr
}

func tbearsPayload(srcPath string) *contractBase.RawPayload {
	return &contractBase.RawPayload{
		ContentType: contractBase.ContentTypeTBears,
		Content:     srcPath,
	}
}

func TestInvokeDataTypeGate(t *testing.T) {
	env := newEngineEnv(t, false)
	addr := testAddr(t, "aa")

	err := env.engine.Invoke(env.ctx, addr, contractBase.DataTypeAudit, tbearsPayload("/tmp/src"))
	if !errors.Is(err, contractBase.ErrInvalidDataType) {
		t.Error("audit without the flag should be rejected", err)
	}
	if env.engine.QueueLen() != 0 {
		t.Error("rejected invoke must not queue")
	}

	auditEnv := newEngineEnv(t, true)
	err = auditEnv.engine.Invoke(auditEnv.ctx, addr, contractBase.DataTypeAudit, tbearsPayload("/tmp/src"))
	if err != nil || auditEnv.engine.QueueLen() != 1 {
		t.Error("audit with the flag should queue", err)
	}
}

func TestInvokeContentTypeGate(t *testing.T) {
	env := newEngineEnv(t, false)
	addr := testAddr(t, "aa")

	err := env.engine.Invoke(env.ctx, addr, contractBase.DataTypeInstall,
		&contractBase.RawPayload{ContentType: "text/plain", Content: "hello"})
	if !errors.Is(err, contractBase.ErrInvalidContentType) {
		t.Error("unknown content type should be rejected", err)
	}

	err = env.engine.Invoke(env.ctx, addr, contractBase.DataTypeInstall,
		&contractBase.RawPayload{ContentType: contractBase.ContentTypeZip, Content: "0x0102"})
	if !errors.Is(err, pkgval.ErrInvalidPackage) {
		t.Error("broken zip should be rejected", err)
	}
	if env.engine.QueueLen() != 0 {
		t.Error("rejected invokes must not queue")
	}
}

func TestCommitInstallEndToEnd(t *testing.T) {
	env := newEngineEnv(t, false)
	addr := testAddr(t, "aa")
	srcPath := t.TempDir()

	err := env.engine.Invoke(env.ctx, addr, contractBase.DataTypeInstall, tbearsPayload(srcPath))
	if err != nil {
		t.Fatal("invoke failed", err)
	}

	results := env.engine.Commit(env.ctx)
	if len(results) != 1 || results[0].Err != nil {
		t.Fatal("commit failed", results)
	}
	if env.engine.QueueLen() != 0 {
		t.Error("queue must drain on commit")
	}

	// source directory linked as {height}_{txIndex}
	linkPath := filepath.Join(env.root, addr.Hex(), "10_0")
	target, err := os.Readlink(linkPath)
	if err != nil || target != srcPath {
		t.Error("source link wrong", target, err)
	}

	// owner recorded from the tx origin, install hook ran once
	if owner := env.accounts.owners[addr]; owner != env.ctx.Tx.Origin {
		t.Error("owner not recorded", owner)
	}
	if env.registry.contracts[addr].installs != 1 {
		t.Error("install hook should run once")
	}

	// re-install of the same block/tx tolerates the existing link and
	// skips the hook because the database already exists
	env.engine.Invoke(env.ctx, addr, contractBase.DataTypeInstall, tbearsPayload(srcPath))
	results = env.engine.Commit(env.ctx)
	if len(results) != 1 || results[0].Err != nil {
		t.Fatal("re-install failed", results)
	}
	if env.registry.contracts[addr].installs != 1 {
		t.Error("install hook must run at most once per database")
	}
}

func TestCommitOrderAndIsolation(t *testing.T) {
	env := newEngineEnv(t, false)
	first := testAddr(t, "01")
	second := testAddr(t, "02")
	srcPath := t.TempDir()

	// a failing update between two installs must not stop the queue
	env.engine.Invoke(env.ctx, first, contractBase.DataTypeInstall, tbearsPayload(srcPath))
	env.engine.Invoke(env.ctx, first, contractBase.DataTypeUpdate, tbearsPayload(srcPath))
	env.engine.Invoke(env.ctx, second, contractBase.DataTypeInstall, tbearsPayload(srcPath))

	results := env.engine.Commit(env.ctx)
	if len(results) != 3 {
		t.Fatal("want one result per task", results)
	}
	if results[0].Address != first || results[2].Address != second {
		t.Error("results must follow enqueue order")
	}
	if results[0].Err != nil || results[2].Err != nil {
		t.Error("installs should succeed", results[0].Err, results[2].Err)
	}
	if !errors.Is(results[1].Err, contractBase.ErrUpdateNotSupported) {
		t.Error("update should fail with its own error", results[1].Err)
	}
	if env.engine.QueueLen() != 0 {
		t.Error("queue must drain even with failures")
	}
}

func TestCommitHookFailureIsolated(t *testing.T) {
	env := newEngineEnv(t, false)
	bad := testAddr(t, "0a")
	good := testAddr(t, "0b")
	srcPath := t.TempDir()

	env.registry.contracts[bad] = &fakeContract{err: errors.New("boom")}

	env.engine.Invoke(env.ctx, bad, contractBase.DataTypeInstall, tbearsPayload(srcPath))
	env.engine.Invoke(env.ctx, good, contractBase.DataTypeInstall, tbearsPayload(srcPath))

	results := env.engine.Commit(env.ctx)
	if results[0].Err == nil {
		t.Error("hook failure should be recorded")
	}
	if results[1].Err != nil {
		t.Error("next task should still run", results[1].Err)
	}
	// owner write happens before the hook, it survives
	if _, ok := env.accounts.owners[bad]; !ok {
		t.Error("owner should be recorded before the hook runs")
	}
}

func TestCommitRestoresIdentity(t *testing.T) {
	env := newEngineEnv(t, false)
	addr := testAddr(t, "aa")
	srcPath := t.TempDir()

	env.engine.Invoke(env.ctx, addr, contractBase.DataTypeInstall, tbearsPayload(srcPath))

	// move the context to the next block before committing
	liveBlock := &lbase.BlockInfo{Height: 11}
	liveTx := &lbase.TxInfo{Index: 3, Origin: env.ctx.Tx.Origin}
	env.ctx.SetIdentity(liveBlock, liveTx, env.ctx.Msg)

	env.engine.Commit(env.ctx)

	if env.ctx.Block != liveBlock || env.ctx.Tx != liveTx {
		t.Error("commit must restore the live identity")
	}
	// the task ran under its own identity: link named after block 10, tx 0
	if _, err := os.Lstat(filepath.Join(env.root, addr.Hex(), "10_0")); err != nil {
		t.Error("task should run under its queued identity", err)
	}
}

func TestRollbackClearsQueue(t *testing.T) {
	env := newEngineEnv(t, false)
	addr := testAddr(t, "aa")

	env.engine.Invoke(env.ctx, addr, contractBase.DataTypeInstall, tbearsPayload("/tmp/src"))
	env.engine.Rollback()

	if env.engine.QueueLen() != 0 {
		t.Error("rollback must clear the queue")
	}
	if results := env.engine.Commit(env.ctx); len(results) != 0 {
		t.Error("nothing should commit after rollback", results)
	}
}
