package logger

import (
	"fmt"

	"github.com/prismchain/prism/common/utils"
	"github.com/spf13/viper"
)

// LogConf is the log config of node
type LogConf struct {
	Module   string `yaml:"module,omitempty"`
	Filename string `yaml:"filename,omitempty"`
	// log format: logfmt, json
	Fmt string `yaml:"fmt,omitempty"`
	// log output level: debug, info, warn, error
	Level string `yaml:"level,omitempty"`
	// max size of a log file before rotation (MB)
	RotateSize int `yaml:"rotateSize,omitempty"`
	// count of old log files to keep
	RotateBackups int `yaml:"rotateBackups,omitempty"`
	// days to keep old log files
	RotateMaxAge int `yaml:"rotateMaxAge,omitempty"`
	// whether log is also written to stderr
	Console bool `yaml:"console,omitempty"`
}

func LoadLogConf(cfgFile string) (*LogConf, error) {
	cfg := GetDefLogConf()
	err := cfg.loadConf(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load log config failed.err:%s", err)
	}

	return cfg, nil
}

func GetDefLogConf() *LogConf {
	return &LogConf{
		Module:   "prism",
		Filename: "prism",
		Fmt:      "logfmt",
		Level:    "debug",
		// rotate when the log file reaches 128MB
		RotateSize: 128,
		// keep 10 old log files at most
		RotateBackups: 10,
		// keep old log files for 7 days
		RotateMaxAge: 7,
		Console:      true,
	}
}

func (t *LogConf) loadConf(cfgFile string) error {
	if cfgFile == "" || !utils.FileIsExist(cfgFile) {
		return fmt.Errorf("config file set error.path:%s", cfgFile)
	}

	viperObj := viper.New()
	viperObj.SetConfigFile(cfgFile)
	err := viperObj.ReadInConfig()
	if err != nil {
		return fmt.Errorf("read config failed.path:%s,err:%v", cfgFile, err)
	}

	if err = viperObj.Unmarshal(t); err != nil {
		return fmt.Errorf("unmatshal config failed.path:%s,err:%v", cfgFile, err)
	}

	return nil
}
