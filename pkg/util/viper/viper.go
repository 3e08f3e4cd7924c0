package viper

import (
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	spfviper "github.com/spf13/viper"
)

// Config 封装 spf13/viper 实例，对外提供精简的配置加载接口。
//
// 支持 YAML/JSON（由 viper 直接解析）与 TOML（由 BurntSushi/toml 解析后合并），
// 并支持将单个 key 绑定到环境变量。
type Config struct {
	v *spfviper.Viper
}

// New 创建一个空的 Config。
func New() *Config {
	return &Config{
		v: spfviper.New(),
	}
}

func (c *Config) viper() *spfviper.Viper {
	if c.v == nil {
		c.v = spfviper.New()
	}
	return c.v
}

// LoadFile 将配置文件加载到 Config 中，文件类型通过扩展名推断。
func (c *Config) LoadFile(path string) error {
	v := c.viper()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		return c.loadTOML(path)
	case ".yaml", ".yml":
		v.SetConfigType("yaml")
	case ".json":
		v.SetConfigType("json")
	default:
		// 让 viper 自行推断类型，或在读取时返回清晰的错误信息。
	}

	v.SetConfigFile(path)
	return v.ReadInConfig()
}

func (c *Config) loadTOML(path string) error {
	var raw map[string]interface{}
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return errors.Wrapf(err, "decode toml %s", path)
	}
	return c.viper().MergeConfigMap(raw)
}

// SetDefault 设置 key 的默认值，优先级低于配置文件与环境变量。
func (c *Config) SetDefault(key string, value interface{}) {
	c.viper().SetDefault(key, value)
}

// BindEnv 将 key 绑定到环境变量 env，环境变量存在时覆盖配置文件中的值。
func (c *Config) BindEnv(key string, env string) error {
	return c.viper().BindEnv(key, env)
}

// Unmarshal 将完整配置反序列化到 dst。
// dst 应为结构体或 map 的指针。
func (c *Config) Unmarshal(dst interface{}) error {
	return c.viper().Unmarshal(dst)
}

// UnmarshalKey 将指定 key 对应的子配置反序列化到 dst。
// dst 应为结构体或 map 的指针。
func (c *Config) UnmarshalKey(key string, dst interface{}) error {
	return c.viper().UnmarshalKey(key, dst)
}
