package base

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// ContractConfig is the static configuration of the contract subsystem
type ContractConfig struct {
	// root directory holding per contract code directories
	RootPath string `yaml:"rootPath"`
	// require an audit pass before install or update completes
	EnableAudit bool `yaml:"enableAudit"`
	// instance cache expire seconds, 0 keeps instances forever
	CacheExpired int64 `yaml:"cacheExpired"`
	// instance cache gc interval seconds
	CacheGCInterval int64 `yaml:"cacheGCInterval"`
}

func DefaultContractConfig() *ContractConfig {
	return &ContractConfig{
		RootPath:        "contract",
		EnableAudit:     false,
		CacheExpired:    0,
		CacheGCInterval: 600,
	}
}

// LoadContractConfig loads the contract config file, absent keys keep
// their defaults
func LoadContractConfig(cfgFile string) (*ContractConfig, error) {
	cfg := DefaultContractConfig()
	err := cfg.loadConf(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load contract config failed.err:%v", err)
	}
	return cfg, nil
}

func (t *ContractConfig) loadConf(cfgFile string) error {
	if cfgFile == "" {
		return fmt.Errorf("config file set error")
	}

	viperObj := viper.New()
	viperObj.SetConfigFile(cfgFile)
	err := viperObj.ReadInConfig()
	if err != nil {
		return fmt.Errorf("read config failed.path:%s,err:%v", cfgFile, err)
	}

	if err = viperObj.Unmarshal(t, func(config *mapstructure.DecoderConfig) {
		config.TagName = "yaml"
	}); err != nil {
		return fmt.Errorf("unmarshal config failed.path:%s,err:%v", cfgFile, err)
	}
	return nil
}
