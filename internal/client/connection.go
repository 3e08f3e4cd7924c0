// Package client 实现 KVMFR 客户端的会话层。
//
// Connection 负责映射共享内存、向宿主注册并校验协议版本、订阅帧与指针两个通道；
// 注册成功后由内部 session 维护每个通道的心跳，并在即将触发宿主超时之前
// 跳到最新消息（快进），以牺牲中间帧为代价保持连接存活。
//
// 取到的更新以零拷贝的 Update Handle 返回，handle 存活期间持有对应通道的锁。
// 本包不做任何重试，轮询节奏与重连策略由调用方（见 internal/poller）决定。
package client

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/lk2023060901/kvmfr-client-go/internal/lgmp"
	"github.com/lk2023060901/kvmfr-client-go/internal/shm"
	"github.com/lk2023060901/kvmfr-client-go/pkg/kvmfr"
	"github.com/lk2023060901/kvmfr-client-go/pkg/log"
	"github.com/lk2023060901/kvmfr-client-go/pkg/metrics"
	"github.com/lk2023060901/kvmfr-client-go/pkg/util/lock"
	"github.com/lk2023060901/kvmfr-client-go/pkg/util/merr"
)

// HostInfo 为宿主在注册元数据中声明的信息。
type HostInfo struct {
	Version  string
	Features kvmfr.Feature
}

// Connection 为一个 LGMP 客户端连接。
//
// 所有触及 LGMP 客户端的操作都在 mu 内完成，mu 只在单次调用期间持有；
// 临界区内发生 panic 会使 mu 中毒，此后所有操作返回 ErrClientLockPoisoned。
type Connection struct {
	log.Binder

	opts  Opts
	clock clockwork.Clock

	mu       *lock.PoisonMutex
	region   *shm.Region
	client   lgmp.Client
	session  *session
	clientID uint32
	hostInfo HostInfo
	closed   bool
}

// Open 映射共享内存并在其上创建 LGMP 客户端，但不向宿主注册。
//
// 注意：Open 之后不能立刻调用 Init，底层协议的存活检查要求先等待约 200ms，
// 否则 Init 可能偶发失败。
func Open(opts Opts, newClient lgmp.NewClientFunc, options ...Option) (*Connection, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if newClient == nil {
		return nil, merr.WrapErrParameterMissing("newClient")
	}
	o := defaultConnOptions()
	for _, opt := range options {
		opt(o)
	}

	region, err := o.opener(opts.ShmPath)
	if err != nil {
		if !errors.Is(err, merr.ErrShmDevice) {
			err = merr.WrapErrShmDevice(opts.ShmPath, err)
		}
		return nil, err
	}

	lc, err := newClient(region)
	if err != nil {
		_ = region.Close()
		return nil, merr.WrapErrLGMPCommunication(err, "client_init")
	}

	c := &Connection{
		opts:   opts,
		clock:  o.clock,
		mu:     lock.NewPoisonMutex("lgmp-client"),
		region: region,
		client: lc,
	}
	logger := o.logger
	if logger == nil {
		logger = log.With(log.FieldComponent("client"), log.FieldShmPath(opts.ShmPath))
	}
	c.SetLogger(logger)
	return c, nil
}

// Init 向宿主注册本客户端，校验 KVMFR 兼容性头部并订阅帧与指针通道。
//
// 头部长度、magic 或版本任一不符都返回携带期望版本号的 ErrVersionMismatch，
// 且不会创建会话，连接仍可再次调用 Init。已有会话时返回 ErrSessionAlreadyInitialized。
// 新会话的两个心跳都初始化为 now-Timeout，保证第一次 tick 就有资格触发快进。
func (c *Connection) Init() error {
	err := c.mu.Do("init", func() error {
		if c.closed {
			return merr.WrapErrLGMPCommunication(lgmp.ErrClientClosed, "session_init")
		}
		if c.session != nil {
			return merr.WrapErrSessionAlreadyInitialized(c.clientID)
		}

		udata, clientID, err := c.client.SessionInit()
		if err != nil {
			return merr.WrapErrLGMPCommunication(err, "session_init")
		}
		header, err := kvmfr.CheckHeader(udata)
		if err != nil {
			return err
		}

		frameQ, err := c.client.Subscribe(ChannelFrame.QueueID())
		if err != nil {
			return merr.WrapErrLGMPCommunication(err, "subscribe", ChannelFrame.String())
		}
		cursorQ, err := c.client.Subscribe(ChannelCursor.QueueID())
		if err != nil {
			return merr.WrapErrLGMPCommunication(err, "subscribe", ChannelCursor.String())
		}

		c.session = newSession(frameQ, cursorQ, c.clock.Now().Add(-c.opts.Timeout))
		c.clientID = clientID
		c.hostInfo = HostInfo{
			Version:  header.HostVersion(),
			Features: header.Features(),
		}
		c.Logger().Info("lgmp session initialized",
			log.FieldClientID(clientID),
			zap.String("hostVersion", c.hostInfo.Version),
			zap.Uint32("features", uint32(c.hostInfo.Features)))
		return nil
	})

	result := metrics.SuccessLabel
	if err != nil {
		result = metrics.FailLabel
	}
	metrics.SessionInits.WithLabelValues(result).Inc()
	return err
}

// TickFrame 在帧通道即将超时时快进，建议每 1ms 左右调用一次。
// tickPeriod 为调用方的轮询间隔，用于提前一个周期触发。没有会话时什么也不做。
func (c *Connection) TickFrame(tickPeriod time.Duration) error {
	return c.tick(ChannelFrame, tickPeriod)
}

// TickCursor 见 TickFrame。
func (c *Connection) TickCursor(tickPeriod time.Duration) error {
	return c.tick(ChannelCursor, tickPeriod)
}

func (c *Connection) tick(ch Channel, tickPeriod time.Duration) error {
	return c.mu.Do("tick_"+ch.String(), func() error {
		if c.session == nil {
			return nil
		}
		st := c.session.channel(ch)
		now := c.clock.Now()
		metrics.ChannelHeartbeatAge.WithLabelValues(ch.String()).
			Set(float64(now.Sub(st.heartbeat).Milliseconds()))

		projectedTimeout := st.heartbeat.Add(c.opts.Timeout)
		if !now.Add(tickPeriod).After(projectedTimeout) {
			return nil
		}
		if err := c.session.fastForward(ch, now); err != nil {
			return err
		}
		st.touch(c.clock.Now())
		c.Logger().RatedDebug(10, "channel fast-forwarded", log.FieldChannel(ch.String()))
		return nil
	})
}

// GetFrameUpdate 取帧通道上的下一条更新。
// 没有会话或队列为空时返回 (nil, nil)，队列为空时同时刷新该通道心跳。
func (c *Connection) GetFrameUpdate() (*FrameHandle, error) {
	var h *FrameHandle
	err := c.mu.Do("get_frame_update", func() error {
		msg, st, err := c.popRef(ChannelFrame)
		if err != nil || msg == nil {
			return err
		}
		h = &FrameHandle{}
		h.bind(ChannelFrame, msg, st, c.messageDone)
		return nil
	})
	return h, err
}

// GetCursorUpdate 取指针通道上的下一条更新，语义同 GetFrameUpdate。
func (c *Connection) GetCursorUpdate() (*CursorHandle, error) {
	var h *CursorHandle
	err := c.mu.Do("get_cursor_update", func() error {
		msg, st, err := c.popRef(ChannelCursor)
		if err != nil || msg == nil {
			return err
		}
		h = &CursorHandle{}
		h.bind(ChannelCursor, msg, st, c.messageDone)
		return nil
	})
	return h, err
}

func (c *Connection) popRef(ch Channel) (lgmp.Message, *channelState, error) {
	if c.session == nil {
		return nil, nil, nil
	}
	return c.session.popRef(ch, c.clock.Now())
}

// messageDone 在锁中毒后仍然归还消息槽，避免宿主一侧的队列被永久占住。
func (c *Connection) messageDone(msg lgmp.Message) error {
	return c.mu.Teardown("message_done", func() error {
		return merr.WrapErrLGMPCommunication(msg.Done(), "message_done")
	})
}

// Close 丢弃会话、关闭 LGMP 客户端并解除共享内存映射，重复调用是安全的。
// 锁已中毒时资源同样会被释放，返回值中包含 ErrClientLockPoisoned。
// 仍存活的 Update Handle 依旧需要 Release。
func (c *Connection) Close() error {
	return c.mu.Teardown("close", func() error {
		if c.closed {
			return nil
		}
		c.closed = true
		c.session = nil
		return errors.CombineErrors(
			merr.WrapErrLGMPCommunication(c.client.Close(), "close"),
			c.region.Close(),
		)
	})
}

// Initialized 返回是否已有会话。
func (c *Connection) Initialized() bool {
	var ok bool
	_ = c.mu.Do("initialized", func() error {
		ok = c.session != nil
		return nil
	})
	return ok
}

// ClientID 返回宿主分配的客户端编号，未初始化时为 0。
func (c *Connection) ClientID() uint32 {
	var id uint32
	_ = c.mu.Do("client_id", func() error {
		id = c.clientID
		return nil
	})
	return id
}

// HostInfo 返回最近一次成功注册时宿主声明的信息。
func (c *Connection) HostInfo() HostInfo {
	var info HostInfo
	_ = c.mu.Do("host_info", func() error {
		info = c.hostInfo
		return nil
	})
	return info
}

// Heartbeat 返回通道最近一次观察到空队列的时间，没有会话时 ok 为 false。
func (c *Connection) Heartbeat(ch Channel) (hb time.Time, ok bool) {
	_ = c.mu.Do("heartbeat", func() error {
		if c.session == nil {
			return nil
		}
		hb, ok = c.session.channel(ch).heartbeat, true
		return nil
	})
	return hb, ok
}
