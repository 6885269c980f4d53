package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// OpenLog creates the underlying log driver using LogConf.
// Logs below warn go to {filename}.log, warn and above additionally
// go to {filename}.log.wf, following the two-file layout of the node.
func OpenLog(lc *LogConf, logDir string) (LogDriver, error) {
	if err := os.MkdirAll(logDir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("make log dir failed.dir:%s,err:%v", logDir, err)
	}

	infoFile := filepath.Join(logDir, lc.Filename+".log")
	wfFile := filepath.Join(logDir, lc.Filename+".log.wf")

	nmWriter := newRotateWriter(infoFile, lc)
	wfWriter := newRotateWriter(wfFile, lc)

	if lc.Console {
		nmWriter = zerolog.MultiLevelWriter(nmWriter, os.Stderr)
	}

	nmLog := newZeroLogger(nmWriter, lc)
	wfLog := newZeroLogger(wfWriter, lc)

	return &zeroDriver{
		nmLog: nmLog,
		wfLog: wfLog,
	}, nil
}

func newRotateWriter(path string, lc *LogConf) io.Writer {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    lc.RotateSize,
		MaxBackups: lc.RotateBackups,
		MaxAge:     lc.RotateMaxAge,
	}
}

func newZeroLogger(w io.Writer, lc *LogConf) zerolog.Logger {
	if lc.Fmt == "logfmt" {
		w = zerolog.ConsoleWriter{
			Out:        w,
			NoColor:    true,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		}
	}
	return zerolog.New(w).With().Timestamp().Str("module", lc.Module).Logger()
}

// zeroDriver adapts zerolog to the LogDriver key-value interface
type zeroDriver struct {
	nmLog zerolog.Logger
	wfLog zerolog.Logger
}

func (t *zeroDriver) Fatal(msg string, ctx ...interface{}) {
	t.output(t.nmLog.WithLevel(zerolog.FatalLevel), msg, ctx...)
	t.output(t.wfLog.WithLevel(zerolog.FatalLevel), msg, ctx...)
}

func (t *zeroDriver) Error(msg string, ctx ...interface{}) {
	t.output(t.nmLog.Error(), msg, ctx...)
	t.output(t.wfLog.Error(), msg, ctx...)
}

func (t *zeroDriver) Warn(msg string, ctx ...interface{}) {
	t.output(t.nmLog.Warn(), msg, ctx...)
	t.output(t.wfLog.Warn(), msg, ctx...)
}

func (t *zeroDriver) Info(msg string, ctx ...interface{}) {
	t.output(t.nmLog.Info(), msg, ctx...)
}

func (t *zeroDriver) Debug(msg string, ctx ...interface{}) {
	t.output(t.nmLog.Debug(), msg, ctx...)
}

func (t *zeroDriver) output(evt *zerolog.Event, msg string, ctx ...interface{}) {
	if evt == nil {
		return
	}
	for i := 0; i+1 < len(ctx); i += 2 {
		key := fmt.Sprintf("%v", ctx[i])
		evt = evt.Interface(key, ctx[i+1])
	}
	evt.Msg(msg)
}
