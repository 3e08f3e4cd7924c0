// Package poller 按固定节奏驱动 client.Connection：
// 每个通道一个循环，先 tick 保活，再把队列中的更新交给 Handler 处理并立即释放。
// Supervisor 在此之上负责打开连接、带重试的 Init，以及会话失效后的退避重连。
package poller

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lk2023060901/kvmfr-client-go/internal/client"
	"github.com/lk2023060901/kvmfr-client-go/pkg/log"
	"github.com/lk2023060901/kvmfr-client-go/pkg/util/merr"
)

// Conn 为 Poller 依赖的连接能力，由 *client.Connection 实现。
type Conn interface {
	TickFrame(tickPeriod time.Duration) error
	TickCursor(tickPeriod time.Duration) error
	GetFrameUpdate() (*client.FrameHandle, error)
	GetCursorUpdate() (*client.CursorHandle, error)
}

// Handler 处理取到的更新。handle 只在回调期间有效，回调返回后由 Poller 释放。
type Handler interface {
	OnFrame(h *client.FrameHandle) error
	OnCursor(h *client.CursorHandle) error
}

// HandlerFuncs 把两个函数适配为 Handler，nil 字段表示丢弃该通道的更新。
type HandlerFuncs struct {
	Frame  func(h *client.FrameHandle) error
	Cursor func(h *client.CursorHandle) error
}

func (f HandlerFuncs) OnFrame(h *client.FrameHandle) error {
	if f.Frame == nil {
		return nil
	}
	return f.Frame(h)
}

func (f HandlerFuncs) OnCursor(h *client.CursorHandle) error {
	if f.Cursor == nil {
		return nil
	}
	return f.Cursor(h)
}

// Poller 在一个已初始化的连接上运行帧与指针两个轮询循环。
type Poller struct {
	log.Binder

	conn    Conn
	handler Handler
	cfg     Config
	clock   clockwork.Clock
}

func New(conn Conn, handler Handler, cfg Config, clock clockwork.Clock) *Poller {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Poller{
		conn:    conn,
		handler: handler,
		cfg:     cfg,
		clock:   clock,
	}
}

// Run 阻塞运行两个轮询循环，直到 ctx 结束（返回 nil）或任一循环遇到不可重试的错误。
func (p *Poller) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.loop(ctx, client.ChannelFrame, p.pollFrame)
	})
	g.Go(func() error {
		return p.loop(ctx, client.ChannelCursor, p.pollCursor)
	})
	return g.Wait()
}

func (p *Poller) loop(ctx context.Context, ch client.Channel, poll func() error) error {
	logger := p.Logger().WithChannel(ch.String())
	ticker := p.clock.NewTicker(p.cfg.TickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
		}
		err := poll()
		if err == nil {
			continue
		}
		if merr.IsRetryableErr(err) {
			logger.RatedWarn(10, "poll channel failed, will retry", zap.Error(err))
			continue
		}
		logger.Warn("poll channel failed", zap.Error(err))
		return err
	}
}

func (p *Poller) pollFrame() error {
	if err := p.conn.TickFrame(p.cfg.TickPeriod); err != nil {
		return err
	}
	for i := 0; i < p.cfg.MaxUpdatesPerTick; i++ {
		h, err := p.conn.GetFrameUpdate()
		if err != nil || h == nil {
			return err
		}
		if err := p.deliver(client.ChannelFrame, p.handler.OnFrame(h), h.Release()); err != nil {
			return err
		}
	}
	return nil
}

func (p *Poller) pollCursor() error {
	if err := p.conn.TickCursor(p.cfg.TickPeriod); err != nil {
		return err
	}
	for i := 0; i < p.cfg.MaxUpdatesPerTick; i++ {
		h, err := p.conn.GetCursorUpdate()
		if err != nil || h == nil {
			return err
		}
		if err := p.deliver(client.ChannelCursor, p.handler.OnCursor(h), h.Release()); err != nil {
			return err
		}
	}
	return nil
}

// deliver 汇总一次回调的结果。回调出错只记录日志，释放失败才中断轮询。
func (p *Poller) deliver(ch client.Channel, handleErr, releaseErr error) error {
	if handleErr != nil {
		p.Logger().RatedWarn(10, "handle update failed",
			log.FieldChannel(ch.String()), zap.Error(handleErr))
	}
	if releaseErr != nil {
		return errors.Wrapf(releaseErr, "release %s update", ch)
	}
	return nil
}
