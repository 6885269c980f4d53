// Package deploy implements the deferred contract deploy pipeline. Deploy
// transactions are validated and queued during block execution and their
// side effects land only when the block commits.
package deploy

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gammazero/deque"
	"github.com/prismchain/prism/common/metrics"
	contractBase "github.com/prismchain/prism/contract/base"
	"github.com/prismchain/prism/contract/deploy/pkgval"
	lbase "github.com/prismchain/prism/ledger/base"
	"github.com/prismchain/prism/logger"
	sbase "github.com/prismchain/prism/state/base"
)

// Flag toggles optional engine behavior
type Flag uint32

const (
	FlagNone Flag = 0
	// FlagEnableAudit makes the audit data type acceptable, installs and
	// updates then wait for an audit pass before completing
	FlagEnableAudit Flag = 1 << (iota - 1)
)

// ErrAuditPending marks a task accepted for audit but not yet approved
var ErrAuditPending = errors.New("contract audit pending")

// Task is one deferred deploy unit of work. It is immutable once queued
// and carries the full identity of the transaction that produced it.
type Task struct {
	Block    *lbase.BlockInfo
	Tx       *lbase.TxInfo
	Msg      *lbase.MsgInfo
	Address  lbase.Address
	DataType contractBase.DataType
	Data     *contractBase.DeployData
}

// TaskResult is the commit outcome of one queued task
type TaskResult struct {
	Address  lbase.Address
	DataType contractBase.DataType
	Err      error
}

// Engine queues deploy tasks during block execution and applies them on
// commit. The queue is owned by the single goroutine driving block
// execution, there is no internal locking.
type Engine struct {
	flags        Flag
	contractRoot string
	accountStore contractBase.AccountStore
	registry     contractBase.Registry
	tasks        deque.Deque
	log          logger.Logger
}

func NewEngine(cfg *contractBase.ContractConfig, accountStore contractBase.AccountStore,
	registry contractBase.Registry, log logger.Logger) (*Engine, error) {
	if cfg == nil || cfg.RootPath == "" {
		return nil, fmt.Errorf("create deploy engine failed because contract config is nil")
	}
	if accountStore == nil {
		return nil, fmt.Errorf("create deploy engine failed because account store is nil")
	}
	if registry == nil {
		return nil, fmt.Errorf("create deploy engine failed because registry is nil")
	}
	if log == nil {
		return nil, fmt.Errorf("create deploy engine failed because logger is nil")
	}

	flags := FlagNone
	if cfg.EnableAudit {
		flags |= FlagEnableAudit
	}
	return &Engine{
		flags:        flags,
		contractRoot: cfg.RootPath,
		accountStore: accountStore,
		registry:     registry,
		log:          log,
	}, nil
}

// IsFlagOn reports whether every bit of flag is set
func (t *Engine) IsFlagOn(flag Flag) bool {
	return t.flags&flag == flag
}

// IsDataTypeSupported reports whether the engine accepts the data type.
// Audit is only acceptable when the audit flag is on.
func (t *Engine) IsDataTypeSupported(dataType contractBase.DataType) bool {
	switch dataType {
	case contractBase.DataTypeInstall, contractBase.DataTypeUpdate:
		return true
	case contractBase.DataTypeAudit:
		return t.IsFlagOn(FlagEnableAudit)
	default:
		return false
	}
}

// QueueLen returns the number of pending tasks
func (t *Engine) QueueLen() int {
	return t.tasks.Len()
}

// Invoke validates a deploy transaction and queues its deferred task.
// No chain state is mutated here, a queued task is discardable until
// Commit runs.
func (t *Engine) Invoke(ctx *sbase.ExecCtx, addr lbase.Address,
	dataType contractBase.DataType, payload *contractBase.RawPayload) error {
	if !t.IsDataTypeSupported(dataType) {
		return fmt.Errorf("%w: %s", contractBase.ErrInvalidDataType, dataType)
	}

	data, err := contractBase.DecodeDeployData(payload)
	if err != nil {
		return err
	}
	if data.ContentType == contractBase.ContentTypeZip {
		if err = pkgval.Validate(data.Content); err != nil {
			return err
		}
	}

	t.tasks.PushBack(&Task{
		Block:    ctx.Block,
		Tx:       ctx.Tx,
		Msg:      ctx.Msg,
		Address:  addr,
		DataType: dataType,
		Data:     data,
	})
	metrics.DeployTaskQueuedCounter.WithLabelValues(dataType.String()).Inc()

	t.log.Debug("deploy task queued", "addr", addr.String(), "dataType", dataType.String())
	return nil
}

// Commit applies the queued tasks in enqueue order and returns one result
// per task. A failing task is logged and recorded, it never aborts the
// rest of the queue. The queue is empty when Commit returns.
func (t *Engine) Commit(ctx *sbase.ExecCtx) []TaskResult {
	results := make([]TaskResult, 0, t.tasks.Len())
	for t.tasks.Len() > 0 {
		task := t.tasks.PopFront().(*Task)
		err := t.commitTask(ctx, task)

		outcome := "ok"
		if err != nil {
			outcome = "failed"
			if errors.Is(err, ErrAuditPending) {
				outcome = "pending"
			}
			t.log.Warn("deploy task failed", "addr", task.Address.String(),
				"dataType", task.DataType.String(), "err", err)
		}
		metrics.DeployTaskCommitCounter.WithLabelValues(task.DataType.String(), outcome).Inc()

		results = append(results, TaskResult{
			Address:  task.Address,
			DataType: task.DataType,
			Err:      err,
		})
	}
	return results
}

// commitTask runs one task under the identity of the transaction that
// queued it, so deploy code observes the same context it saw live
func (t *Engine) commitTask(ctx *sbase.ExecCtx, task *Task) error {
	restore := ctx.SwapIdentity(task.Block, task.Tx, task.Msg)
	defer restore()

	switch task.DataType {
	case contractBase.DataTypeInstall:
		return t.installOnCommit(ctx, task)
	case contractBase.DataTypeUpdate:
		return contractBase.ErrUpdateNotSupported
	case contractBase.DataTypeAudit:
		return ErrAuditPending
	default:
		// filtered in Invoke already
		return fmt.Errorf("%w: %s", contractBase.ErrInvalidDataType, task.DataType)
	}
}

func (t *Engine) installOnCommit(ctx *sbase.ExecCtx, task *Task) error {
	if task.Data.ContentType == contractBase.ContentTypeTBears {
		if err := t.linkSourcePath(ctx, task); err != nil {
			return err
		}
	}

	if err := t.accountStore.PutContractOwner(ctx, task.Address, ctx.Tx.Origin); err != nil {
		return fmt.Errorf("record contract owner failed.err:%v", err)
	}

	dbExist := t.registry.HasDB(task.Address)
	instance, err := t.registry.GetContract(task.Address)
	if err != nil {
		return err
	}
	if !dbExist {
		return t.callOnInstall(ctx, instance, task.Data.Params)
	}
	return nil
}

// linkSourcePath exposes a development mode source directory under the
// contract root as {height}_{txIndex}. Linking the same block/tx twice
// is a no-op.
func (t *Engine) linkSourcePath(ctx *sbase.ExecCtx, task *Task) error {
	t.registry.DeleteContract(task.Address)

	targetDir := filepath.Join(t.contractRoot, task.Address.Hex())
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return fmt.Errorf("make contract dir failed.err:%v", err)
	}

	linkPath := filepath.Join(targetDir, fmt.Sprintf("%d_%d", ctx.Block.Height, ctx.Tx.Index))
	if err := os.Symlink(task.Data.SourcePath, linkPath); err != nil && !errors.Is(err, os.ErrExist) {
		return fmt.Errorf("link contract source failed.err:%v", err)
	}
	return nil
}

// callOnInstall runs the install hook exactly once per contract database,
// with the raw params converted following the declared schema
func (t *Engine) callOnInstall(ctx *sbase.ExecCtx, instance contractBase.Contract,
	params map[string]string) error {
	converted, err := contractBase.ConvertParams(instance.ParamSchema(), params)
	if err != nil {
		return err
	}
	if err = instance.OnInstall(ctx, converted); err != nil {
		return fmt.Errorf("install hook failed.err:%v", err)
	}
	return nil
}

// Rollback drops the queued tasks of an abandoned block
func (t *Engine) Rollback() {
	t.tasks.Clear()
}
