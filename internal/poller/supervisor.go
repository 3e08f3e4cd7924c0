package poller

import (
	"context"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lk2023060901/kvmfr-client-go/internal/client"
	"github.com/lk2023060901/kvmfr-client-go/internal/lgmp"
	"github.com/lk2023060901/kvmfr-client-go/pkg/log"
	"github.com/lk2023060901/kvmfr-client-go/pkg/metrics"
	"github.com/lk2023060901/kvmfr-client-go/pkg/util/conc"
	"github.com/lk2023060901/kvmfr-client-go/pkg/util/merr"
	"github.com/lk2023060901/kvmfr-client-go/pkg/util/retry"
)

// Supervisor 管理连接的完整生命周期：打开、等待、带重试的 Init、轮询，
// 以及会话失效后的指数退避重连。
//
// 宿主协议版本不兼容时不会重连，Run 直接返回 ErrVersionMismatch。
type Supervisor struct {
	log.Binder

	opts      client.Opts
	cfg       Config
	newClient lgmp.NewClientFunc
	handler   Handler
	clock     clockwork.Clock
	connOpts  []client.Option

	sessions atomic.Uint32
}

// SupervisorOption 用于调整 Supervisor。
type SupervisorOption func(s *Supervisor)

// WithSupervisorClock 替换 Supervisor 及其创建的连接与 Poller 使用的时钟。
func WithSupervisorClock(clock clockwork.Clock) SupervisorOption {
	return func(s *Supervisor) {
		s.clock = clock
	}
}

// WithConnOptions 追加创建连接时使用的选项。
func WithConnOptions(opts ...client.Option) SupervisorOption {
	return func(s *Supervisor) {
		s.connOpts = append(s.connOpts, opts...)
	}
}

func NewSupervisor(opts client.Opts, cfg Config, newClient lgmp.NewClientFunc, handler Handler, options ...SupervisorOption) (*Supervisor, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if newClient == nil {
		return nil, merr.WrapErrParameterMissing("newClient")
	}
	if handler == nil {
		return nil, merr.WrapErrParameterMissing("handler")
	}
	s := &Supervisor{
		opts:      opts,
		cfg:       cfg,
		newClient: newClient,
		handler:   handler,
		clock:     clockwork.NewRealClock(),
	}
	for _, opt := range options {
		opt(s)
	}
	s.SetLogger(log.With(log.FieldComponent("supervisor"), log.FieldShmPath(opts.ShmPath)))
	return s, nil
}

// Sessions 返回成功建立过的会话数量。
func (s *Supervisor) Sessions() uint32 {
	return s.sessions.Load()
}

// Start 在后台运行 Run，返回的 Future 在 Run 退出时完成。
func (s *Supervisor) Start(ctx context.Context) *conc.Future[struct{}] {
	return conc.Go(func() (struct{}, error) {
		return struct{}{}, s.Run(ctx)
	})
}

// Run 阻塞直到 ctx 结束（返回 nil）或遇到无法通过重连恢复的错误。
func (s *Supervisor) Run(ctx context.Context) error {
	// Init 重试等经由 ctx 输出的日志都带上模块名。
	ctx = log.WithModule(ctx, "supervisor")

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.cfg.ReconnectInitialInterval
	bo.MaxInterval = s.cfg.ReconnectMaxInterval
	bo.MaxElapsedTime = 0
	bo.Reset()

	var lastErr error
	for {
		if ctx.Err() != nil {
			return nil
		}
		if lastErr != nil {
			next := bo.NextBackOff()
			s.Logger().Warn("session lost, wait for reconnect...",
				zap.Error(lastErr), zap.Duration("nextBackoffInterval", next))
			select {
			case <-s.clock.After(next):
			case <-ctx.Done():
				return nil
			}
			metrics.SessionReconnects.Inc()
		}

		established, err := s.runSession(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, merr.ErrVersionMismatch) {
			s.Logger().Error("host is incompatible, give up", zap.Error(err))
			return err
		}
		if established {
			bo.Reset()
		}
		lastErr = err
	}
}

// runSession 完成一次连接的完整生命周期，established 表示 Init 是否成功。
func (s *Supervisor) runSession(ctx context.Context) (established bool, err error) {
	connOpts := append([]client.Option{client.WithClock(s.clock)}, s.connOpts...)
	conn, err := client.Open(s.opts, s.newClient, connOpts...)
	if err != nil {
		return false, err
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			s.Logger().Warn("close connection failed", zap.Error(cerr))
		}
	}()

	select {
	case <-s.clock.After(s.cfg.InitDelay):
	case <-ctx.Done():
		return false, nil
	}

	err = retry.Do(ctx, func() error {
		err := conn.Init()
		if errors.Is(err, merr.ErrVersionMismatch) {
			return retry.Unrecoverable(err)
		}
		return err
	}, retry.Attempts(s.cfg.InitAttempts), retry.Sleep(s.cfg.InitRetrySleep), retry.Clock(s.clock))
	if err != nil {
		if ctx.Err() != nil {
			return false, nil
		}
		return false, err
	}

	s.sessions.Inc()
	s.Logger().Info("session established", log.FieldClientID(conn.ClientID()),
		zap.String("hostVersion", conn.HostInfo().Version))

	p := New(conn, s.handler, s.cfg, s.clock)
	p.SetLogger(s.Logger().With(log.FieldClientID(conn.ClientID())))
	return true, p.Run(ctx)
}
