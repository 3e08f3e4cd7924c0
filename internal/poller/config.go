package poller

import (
	"time"

	"github.com/lk2023060901/kvmfr-client-go/pkg/util/merr"
)

// Config 为轮询与重连参数。
type Config struct {
	// TickPeriod 为每个通道的轮询间隔，同时作为心跳启发式的提前量。
	TickPeriod time.Duration `toml:"tick-period" json:"tick-period" mapstructure:"tick-period"`
	// InitDelay 为打开连接到首次 Init 之间的等待时间。
	InitDelay      time.Duration `toml:"init-delay" json:"init-delay" mapstructure:"init-delay"`
	InitAttempts   uint          `toml:"init-attempts" json:"init-attempts" mapstructure:"init-attempts"`
	InitRetrySleep time.Duration `toml:"init-retry-sleep" json:"init-retry-sleep" mapstructure:"init-retry-sleep"`
	// MaxUpdatesPerTick 限制单次 tick 内连续取出的更新数量，避免一个通道饿死另一个。
	MaxUpdatesPerTick int `toml:"max-updates-per-tick" json:"max-updates-per-tick" mapstructure:"max-updates-per-tick"`

	ReconnectInitialInterval time.Duration `toml:"reconnect-initial-interval" json:"reconnect-initial-interval" mapstructure:"reconnect-initial-interval"`
	ReconnectMaxInterval     time.Duration `toml:"reconnect-max-interval" json:"reconnect-max-interval" mapstructure:"reconnect-max-interval"`
}

// DefaultConfig 返回默认配置。
func DefaultConfig() Config {
	return Config{
		TickPeriod:               time.Millisecond,
		InitDelay:                200 * time.Millisecond,
		InitAttempts:             5,
		InitRetrySleep:           200 * time.Millisecond,
		MaxUpdatesPerTick:        8,
		ReconnectInitialInterval: 100 * time.Millisecond,
		ReconnectMaxInterval:     5 * time.Second,
	}
}

func (c Config) Validate() error {
	if c.TickPeriod <= 0 {
		return merr.WrapErrParameterInvalidMsg("tick-period must be positive, got %s", c.TickPeriod)
	}
	if c.InitDelay < 0 {
		return merr.WrapErrParameterInvalidMsg("init-delay must not be negative, got %s", c.InitDelay)
	}
	if c.MaxUpdatesPerTick <= 0 {
		return merr.WrapErrParameterInvalidMsg("max-updates-per-tick must be positive, got %d", c.MaxUpdatesPerTick)
	}
	if c.ReconnectInitialInterval <= 0 || c.ReconnectMaxInterval < c.ReconnectInitialInterval {
		return merr.WrapErrParameterInvalidMsg("invalid reconnect interval [%s, %s]",
			c.ReconnectInitialInterval, c.ReconnectMaxInterval)
	}
	return nil
}
