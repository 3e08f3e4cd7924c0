package client

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lk2023060901/kvmfr-client-go/internal/shm"
	"github.com/lk2023060901/kvmfr-client-go/pkg/log"
	"github.com/lk2023060901/kvmfr-client-go/pkg/util/merr"
)

const (
	DefaultShmPath = "/dev/shm/looking-glass"
	DefaultTimeout = time.Second
)

// Opts 为连接宿主所需的最小配置。
type Opts struct {
	// ShmPath 为宿主导出的共享内存文件路径。
	ShmPath string `toml:"shm-path" json:"shm-path" mapstructure:"shm-path"`
	// Timeout 为宿主侧的客户端超时时间，心跳启发式以此计算截止时间。
	Timeout time.Duration `toml:"timeout" json:"timeout" mapstructure:"timeout"`
}

// DefaultOpts 返回默认配置。
func DefaultOpts() Opts {
	return Opts{
		ShmPath: DefaultShmPath,
		Timeout: DefaultTimeout,
	}
}

// Validate 校验配置是否可用。
func (o Opts) Validate() error {
	if o.ShmPath == "" {
		return merr.WrapErrParameterMissing("shm-path")
	}
	if o.Timeout <= 0 {
		return merr.WrapErrParameterInvalidMsg("timeout must be positive, got %s", o.Timeout)
	}
	return nil
}

type connOptions struct {
	clock  clockwork.Clock
	opener shm.Opener
	logger *log.MLogger
}

func defaultConnOptions() *connOptions {
	return &connOptions{
		clock:  clockwork.NewRealClock(),
		opener: shm.Open,
	}
}

// Option 用于调整 Connection 的依赖。
type Option func(opt *connOptions)

// WithClock 替换连接使用的时钟，测试中传入 clockwork.FakeClock。
func WithClock(clock clockwork.Clock) Option {
	return func(opt *connOptions) {
		opt.clock = clock
	}
}

// WithOpener 替换共享内存的打开方式。
func WithOpener(opener shm.Opener) Option {
	return func(opt *connOptions) {
		opt.opener = opener
	}
}

// WithLogger 为连接绑定独立的 Logger。
func WithLogger(logger *log.MLogger) Option {
	return func(opt *connOptions) {
		opt.logger = logger
	}
}
