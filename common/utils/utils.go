package utils

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

var seqNum uint64

// GenLogId generate log id for tracing a logic unit of work
func GenLogId() string {
	return fmt.Sprintf("%d_%d", time.Now().UnixNano(), GenPseudoUniqId())
}

// GenPseudoUniqId generate pseudo unique id by local incremental sequence
func GenPseudoUniqId() uint64 {
	seq := atomic.AddUint64(&seqNum, 1)
	rnd := rand.Int63n(100000)
	id, _ := strconv.ParseUint(fmt.Sprintf("%d%05d", seq, rnd), 10, 64)
	return id
}

// GetFuncCall returns the file:line and function name of the caller
func GetFuncCall(callDepth int) (string, string) {
	pc, f, l, ok := runtime.Caller(callDepth)
	if !ok {
		return "???:0", "???"
	}

	fileLine := fmt.Sprintf("%s:%d", filepath.Base(f), l)
	fc := runtime.FuncForPC(pc)
	if fc == nil {
		return fileLine, "???"
	}

	fcName := fc.Name()
	if idx := strings.LastIndex(fcName, "/"); idx >= 0 {
		fcName = fcName[idx+1:]
	}
	return fileLine, fcName
}

// FileIsExist report whether the file or directory exists
func FileIsExist(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil || os.IsExist(err)
}

// GetCurFileDir returns the directory of the caller's source file
func GetCurFileDir() string {
	_, file, _, ok := runtime.Caller(1)
	if !ok {
		return ""
	}
	return filepath.Dir(file)
}

// GetCurExecDir returns the directory of the running binary
func GetCurExecDir() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	return filepath.Dir(execPath)
}

// GetCurRootDir returns the parent directory of the running binary,
// the default root path of the node
func GetCurRootDir() string {
	execDir := GetCurExecDir()
	if execDir == "" {
		return ""
	}
	return filepath.Dir(execDir)
}
