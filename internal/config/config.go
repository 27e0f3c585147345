package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Keys        KeysConfig        `yaml:"keys"`
	Entitlement EntitlementConfig `yaml:"entitlement"`
	Validation  ValidationConfig  `yaml:"validation"`
	Ledger      LedgerConfig      `yaml:"ledger"`
	Log         LogConfig         `yaml:"log"`
}

type KeysConfig struct {
	// File 默认密钥对文件，keygen 写入、sign 读取
	File string `yaml:"file"`
}

type EntitlementConfig struct {
	// File 自身授权文件路径，留空时在可执行文件同目录查找
	File string `yaml:"file"`
}

type ValidationConfig struct {
	IgnoreFloatTime        bool `yaml:"ignore_float_time"`        // 忽略浮动有效期
	SkipClockCheck         bool `yaml:"skip_clock_check"`         // 跳过时钟回拨检查
	PermitVirtualAddresses bool `yaml:"permit_virtual_addresses"` // 允许虚拟网卡地址参与硬件绑定

	// Blacklist 吊销的许可证签名（hex）
	Blacklist []string `yaml:"blacklist"`
}

type LedgerConfig struct {
	Disabled bool   `yaml:"disabled"` // 不记录签发台账
	Path     string `yaml:"path"`     // sqlite 数据库文件
}

type LogConfig struct {
	File string `yaml:"file"` // 留空时输出到标准错误
}

var globalConfig *Config

// Load 读取并解析配置文件，随后可用 Get 取得。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 设置默认值
	setDefaults(&cfg)

	// 校验配置
	if err := validate(&cfg); err != nil {
		return nil, err
	}

	globalConfig = &cfg
	return &cfg, nil
}

// Default 返回不依赖配置文件的默认配置。
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	globalConfig = cfg
	return cfg
}

func Get() *Config {
	return globalConfig
}

// setDefaults 设置默认值
func setDefaults(cfg *Config) {
	if cfg.Keys.File == "" {
		cfg.Keys.File = "licensekit.keys"
	}
	if cfg.Ledger.Path == "" {
		cfg.Ledger.Path = "licensekit.db"
	}
}

// validate 校验配置
func validate(cfg *Config) error {
	// 吊销名单必须是 hex 签名，坏条目不会匹配任何许可证，属于配置错误
	for i, sig := range cfg.Validation.Blacklist {
		sig = strings.TrimSpace(sig)
		if sig == "" {
			return fmt.Errorf("吊销名单第 %d 项为空", i+1)
		}
		if _, err := hex.DecodeString(sig); err != nil {
			return fmt.Errorf("吊销名单第 %d 项不是有效的签名: %w", i+1, err)
		}
		cfg.Validation.Blacklist[i] = sig
	}
	return nil
}
