package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/docker/go-units"
	"github.com/prismchain/prism/common/utils"
	"github.com/spf13/viper"
)

type EnvConf struct {
	// Program running root directory
	RootPath string `yaml:"rootPath,omitempty"`
	// config file directory
	ConfDir string `yaml:"confDir,omitempty"`
	// data file directory
	DataDir string `yaml:"dataDir,omitempty"`
	// log file directory
	LogDir string `yaml:"logDir,omitempty"`
	// node key directory
	KeyDir string `yaml:"keyDir,omitempty"`
	// block backup file directory, consumed by rollback
	BackupDir string `yaml:"backupDir,omitempty"`
	// reward calculation database directory
	RcDataDir string `yaml:"rcDataDir,omitempty"`
	// installed contract package directory
	ContractDir string `yaml:"contractDir,omitempty"`
	// state database directory
	StateDir string `yaml:"stateDir,omitempty"`
	// log config file name
	LogConf string `yaml:"logConf,omitempty"`
	// contract config file name
	ContractConf string `yaml:"contractConf,omitempty"`
	// kv database cache size, human readable (e.g. 128mb)
	DBCacheSize string `yaml:"dbCacheSize,omitempty"`
	// kv database open file descriptor limit
	DBFdLimit int `yaml:"dbFdLimit,omitempty"`
	// metric switch
	MetricSwitch bool `yaml:"metricSwitch,omitempty"`
}

func LoadEnvConf(cfgFile ...string) (*EnvConf, error) {
	if cfgFile == nil {
		dir := utils.GetCurFileDir()
		cfgFile = []string{filepath.Join(dir, "conf/env.yaml")}
	}
	cfg := GetDefEnvConf()
	err := cfg.loadConf(cfgFile[0])
	if err != nil {
		return nil, fmt.Errorf("load env config failed.err:%s", err)
	}

	// root path priority: 1:PRISM_ROOT_PATH 2:config file 3:parent dir of the binary
	rtPath := os.Getenv("PRISM_ROOT_PATH")
	if rtPath != "" && utils.FileIsExist(rtPath) {
		cfg.RootPath = rtPath
	}

	return cfg, nil
}

func GetDefEnvConf() *EnvConf {
	return &EnvConf{
		// default to the current executable directory
		RootPath:     utils.GetCurRootDir(),
		ConfDir:      "conf",
		DataDir:      "data",
		LogDir:       "logger",
		KeyDir:       "keys",
		BackupDir:    "backup",
		RcDataDir:    "rc",
		ContractDir:  "contract",
		StateDir:     "state",
		LogConf:      "log.yaml",
		ContractConf: "contract.yaml",
		DBCacheSize:  "128mb",
		DBFdLimit:    512,
		MetricSwitch: false,
	}
}

func (t *EnvConf) GenDirAbsPath(dir string) string {
	return filepath.Join(t.RootPath, dir)
}

func (t *EnvConf) GenDataAbsPath(dir string) string {
	return filepath.Join(t.GenDirAbsPath(t.DataDir), dir)
}

func (t *EnvConf) GenConfFilePath(fName string) string {
	return filepath.Join(t.GenDirAbsPath(t.ConfDir), fName)
}

// GenDBCacheSize parses the human readable cache size into MB for the kv driver
func (t *EnvConf) GenDBCacheSize() (int, error) {
	size, err := units.RAMInBytes(t.DBCacheSize)
	if err != nil {
		return 0, fmt.Errorf("parse db cache size failed.value:%s,err:%v", t.DBCacheSize, err)
	}
	cacheMB := int(size / units.MiB)
	if cacheMB < 1 {
		cacheMB = 1
	}
	return cacheMB, nil
}

// GenKVOptions builds the kv driver options from the database tuning
// fields, threaded into every database open
func (t *EnvConf) GenKVOptions() (map[string]interface{}, error) {
	cacheMB, err := t.GenDBCacheSize()
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"cache": cacheMB,
		"fds":   t.DBFdLimit,
	}, nil
}

func (t *EnvConf) loadConf(cfgFile string) error {
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
