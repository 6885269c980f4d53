package logger

import (
	"fmt"
	"os"
	"sync"

	"github.com/prismchain/prism/common/utils"
)

// Reserve base key
const (
	CommFieldLogId   = "logid"
	CommFieldSubMod  = "submod"
	CommFieldPid     = "pid"
	CommFieldCall    = "call"
	DefaultCallDepth = 4
)

// Lvl is a type for predefined log levels.
type Lvl int

// List of predefined log Levels
const (
	LvlFatal Lvl = iota
	LvlError
	LvlWarn
	LvlInfo
	LvlDebug
)

var logHandle LogDriver
var logConf *LogConf
var once sync.Once // the log instance is a singleton
var lock sync.RWMutex

// LvlFromString returns the appropriate Lvl from a string name.
// Useful for parsing command line args and configuration files.
func LvlFromString(lvlString string) Lvl {
	switch lvlString {
	case "fatal":
		return LvlFatal
	case "debug":
		return LvlDebug
	case "info":
		return LvlInfo
	case "warn":
		return LvlWarn
	case "error":
		return LvlError
	}

	return LvlDebug
}

// LogDriver is the constraint interface of the underlying log library
type LogDriver interface {
	Fatal(msg string, ctx ...interface{})
	Error(msg string, ctx ...interface{})
	Warn(msg string, ctx ...interface{})
	Info(msg string, ctx ...interface{})
	Debug(msg string, ctx ...interface{})
}

type Logger interface {
	GetLogId() string
	SetCommField(key string, value interface{})
	SetInfoField(key string, value interface{})
	Fatal(msg string, ctx ...interface{})
	Error(msg string, ctx ...interface{})
	Warn(msg string, ctx ...interface{})
	Info(msg string, ctx ...interface{})
	Debug(msg string, ctx ...interface{})
}

type LoggerImpl struct {
	logger       LogDriver
	logId        string
	pid          int
	commFields   []interface{}
	commFieldLck *sync.RWMutex
	infoFields   []interface{}
	infoFieldLck *sync.RWMutex
	callDepth    int
	minLvl       Lvl
	subMod       string
}

func InitLog(cfgFile, logDir string) {
	lock.Lock()
	defer lock.Unlock()

	once.Do(func() {
		cfg, err := LoadLogConf(cfgFile)
		if err != nil {
			panic(fmt.Sprintf("Load log config fail.path:%s err:%s", cfgFile, err))
		}
		logConf = cfg

		lg, err := OpenLog(logConf, logDir)
		if err != nil {
			panic(fmt.Sprintf("Open log fail.dir:%s err:%s", logDir, err))
		}
		logHandle = lg
	})
}

// InitLogWithConf initializes the singleton from an in-memory config,
// mainly for tests which have no config file on disk
func InitLogWithConf(cfg *LogConf, logDir string) {
	lock.Lock()
	defer lock.Unlock()

	once.Do(func() {
		logConf = cfg
		lg, err := OpenLog(logConf, logDir)
		if err != nil {
			panic(fmt.Sprintf("Open log fail.dir:%s err:%s", logDir, err))
		}
		logHandle = lg
	})
}

// NewLogger requires InitLog to be called for global init first
func NewLogger(logId, subMod string) (*LoggerImpl, error) {
	lock.RLock()
	defer lock.RUnlock()
	if logConf == nil || logHandle == nil {
		return nil, fmt.Errorf("log not init")
	}

	if logId == "" {
		logId = utils.GenLogId()
	}
	if subMod == "" {
		subMod = logConf.Module
	}

	lf := &LoggerImpl{
		logger:       logHandle,
		logId:        logId,
		pid:          os.Getpid(),
		commFields:   make([]interface{}, 0),
		commFieldLck: &sync.RWMutex{},
		infoFields:   make([]interface{}, 0),
		infoFieldLck: &sync.RWMutex{},
		callDepth:    DefaultCallDepth,
		minLvl:       LvlFromString(logConf.Level),
		subMod:       subMod,
	}

	return lf, nil
}

func (t *LoggerImpl) GetLogId() string {
	return t.logId
}

func (t *LoggerImpl) SetCommField(key string, value interface{}) {
	if !t.isInit() || key == "" || value == nil {
		return
	}

	t.commFieldLck.Lock()
	defer t.commFieldLck.Unlock()

	t.commFields = append(t.commFields, key, value)
}

func (t *LoggerImpl) SetInfoField(key string, value interface{}) {
	if !t.isInit() || key == "" || value == nil {
		return
	}

	t.infoFieldLck.Lock()
	defer t.infoFieldLck.Unlock()

	t.infoFields = append(t.infoFields, key, value)
}

func (t *LoggerImpl) Fatal(msg string, ctx ...interface{}) {
	if !t.isInit() || LvlFatal > t.minLvl {
		return
	}
	t.logger.Fatal(msg, t.fmtCommLogger(ctx...)...)
}

func (t *LoggerImpl) Error(msg string, ctx ...interface{}) {
	if !t.isInit() || LvlError > t.minLvl {
		return
	}
	t.logger.Error(msg, t.fmtCommLogger(ctx...)...)
}

func (t *LoggerImpl) Warn(msg string, ctx ...interface{}) {
	if !t.isInit() || LvlWarn > t.minLvl {
		return
	}
	t.logger.Warn(msg, t.fmtCommLogger(ctx...)...)
}

func (t *LoggerImpl) Info(msg string, ctx ...interface{}) {
	if !t.isInit() || LvlInfo > t.minLvl {
		return
	}
	t.logger.Info(msg, t.fmtInfoLogger(ctx...)...)
}

func (t *LoggerImpl) Debug(msg string, ctx ...interface{}) {
	if !t.isInit() || LvlDebug > t.minLvl {
		return
	}

	t.logger.Debug(msg, t.fmtCommLogger(ctx...)...)
}

func (t *LoggerImpl) getCommField() []interface{} {
	t.commFieldLck.RLock()
	defer t.commFieldLck.RUnlock()

	return t.commFields
}

func (t *LoggerImpl) genBaseField() []interface{} {
	fileLine, _ := utils.GetFuncCall(t.callDepth)

	comCtx := make([]interface{}, 0)
	// keep log_id the first field written, easy to replace
	comCtx = append(comCtx, CommFieldLogId, t.logId)
	comCtx = append(comCtx, CommFieldSubMod, t.subMod)
	comCtx = append(comCtx, CommFieldCall, fileLine)
	comCtx = append(comCtx, CommFieldPid, t.pid)

	return comCtx
}

// fmtFields builds the final key-value sequence: base fields, common
// fields, the one-shot info fields, then the call site pairs. A caller
// supplied log_id replaces the base one.
func (t *LoggerImpl) fmtFields(infoFields []interface{}, ctx ...interface{}) []interface{} {
	if len(ctx)%2 != 0 {
		last := ctx[len(ctx)-1]
		ctx = append(ctx[:len(ctx)-1], "extra", last)
	}

	// Ensure consistent output sequence
	comCtx := t.genBaseField()
	if len(ctx) > 1 && fmt.Sprintf("%v", ctx[0]) == CommFieldLogId {
		comCtx[1] = ctx[1]
		ctx = ctx[2:]
	}
	comCtx = append(comCtx, t.getCommField()...)
	comCtx = append(comCtx, infoFields...)
	comCtx = append(comCtx, ctx...)

	return comCtx
}

func (t *LoggerImpl) fmtCommLogger(ctx ...interface{}) []interface{} {
	return t.fmtFields(nil, ctx...)
}

func (t *LoggerImpl) getInfoField() []interface{} {
	t.infoFieldLck.RLock()
	defer t.infoFieldLck.RUnlock()

	return t.infoFields
}

func (t *LoggerImpl) fmtInfoLogger(ctx ...interface{}) []interface{} {
	fields := t.fmtFields(t.getInfoField(), ctx...)
	t.clearInfoFields()
	return fields
}

func (t *LoggerImpl) clearInfoFields() {
	t.infoFieldLck.Lock()
	defer t.infoFieldLck.Unlock()

	t.infoFields = t.infoFields[:0]
}

func (t *LoggerImpl) isInit() bool {
	if t.logger == nil || t.commFields == nil || t.infoFields == nil ||
		t.commFieldLck == nil || t.infoFieldLck == nil {
		return false
	}

	return true
}
