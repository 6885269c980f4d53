package base

import (
	"fmt"

	xconf "github.com/prismchain/prism/common/config"
	xctx "github.com/prismchain/prism/common/context"
	"github.com/prismchain/prism/common/metrics"
	"github.com/prismchain/prism/common/timer"
	lbase "github.com/prismchain/prism/ledger/base"
	"github.com/prismchain/prism/logger"
)

// ExecCtx is the execution context of a logic unit of work.
// It carries the identity of the block, transaction and message being
// executed and is passed explicitly down every call chain, there is no
// ambient thread state to recover it from.
type ExecCtx struct {
	xctx.BaseCtx
	// running environment config
	EnvCfg *xconf.EnvConf
	// protocol revision in effect, part of the record write path
	Revision int
	// current block identity
	Block *lbase.BlockInfo
	// current transaction identity
	Tx *lbase.TxInfo
	// current message identity
	Msg *lbase.MsgInfo
}

func NewExecCtx(envCfg *xconf.EnvConf, revision int) (*ExecCtx, error) {
	if envCfg == nil {
		return nil, fmt.Errorf("create exec context failed because env conf is nil")
	}

	log, err := logger.NewLogger("", lbase.StateSubModName)
	if err != nil {
		return nil, fmt.Errorf("create exec context failed because new logger error.err:%v", err)
	}

	if envCfg.MetricSwitch {
		metrics.RegisterMetrics()
	}

	ctx := new(ExecCtx)
	ctx.XLog = log
	ctx.Timer = timer.NewXTimer()
	ctx.EnvCfg = envCfg
	ctx.Revision = revision

	return ctx, nil
}

// SetIdentity sets the identity of the unit of work being executed
func (t *ExecCtx) SetIdentity(block *lbase.BlockInfo, tx *lbase.TxInfo, msg *lbase.MsgInfo) {
	t.Block = block
	t.Tx = tx
	t.Msg = msg
}

// SwapIdentity replaces the current block/tx/msg identity and returns a
// restore func. Callers must run restore via defer so the previous
// identity is recovered even when the scoped work fails.
func (t *ExecCtx) SwapIdentity(block *lbase.BlockInfo, tx *lbase.TxInfo, msg *lbase.MsgInfo) (restore func()) {
	prevBlock, prevTx, prevMsg := t.Block, t.Tx, t.Msg
	t.Block = block
	t.Tx = tx
	t.Msg = msg

	return func() {
		t.Block = prevBlock
		t.Tx = prevTx
		t.Msg = prevMsg
	}
}
