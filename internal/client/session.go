package client

import (
	"sync"
	"time"

	"github.com/lk2023060901/kvmfr-client-go/internal/lgmp"
	"github.com/lk2023060901/kvmfr-client-go/pkg/kvmfr"
	"github.com/lk2023060901/kvmfr-client-go/pkg/metrics"
	"github.com/lk2023060901/kvmfr-client-go/pkg/util/merr"
)

// Channel 标识会话订阅的两个 KVMFR 队列之一。
type Channel int

const (
	ChannelFrame Channel = iota
	ChannelCursor
)

func (c Channel) String() string {
	switch c {
	case ChannelFrame:
		return "frame"
	case ChannelCursor:
		return "pointer"
	default:
		return "unknown"
	}
}

// QueueID 返回通道在 LGMP 中的队列编号。
func (c Channel) QueueID() uint32 {
	if c == ChannelCursor {
		return kvmfr.QueuePointer
	}
	return kvmfr.QueueFrame
}

// channelState 为单个通道的订阅与心跳状态。
//
// heartbeat 为最近一次观察到队列为空（或完成快进）的时间，只增不减。
// busy 在 Update Handle 存活期间保持锁定，期间该通道上的弹出与快进都会失败。
type channelState struct {
	channel   Channel
	queue     lgmp.Queue
	heartbeat time.Time
	busy      sync.Mutex
}

func (st *channelState) touch(now time.Time) {
	if now.After(st.heartbeat) {
		st.heartbeat = now
	}
}

// session 由 Connection.Init 创建，所有方法都要求调用方持有连接锁。
type session struct {
	channels [2]*channelState
}

func newSession(frame, cursor lgmp.Queue, heartbeat time.Time) *session {
	return &session{
		channels: [2]*channelState{
			ChannelFrame:  {channel: ChannelFrame, queue: frame, heartbeat: heartbeat},
			ChannelCursor: {channel: ChannelCursor, queue: cursor, heartbeat: heartbeat},
		},
	}
}

func (s *session) channel(ch Channel) *channelState {
	return s.channels[ch]
}

// popRef 弹出通道上的下一条消息。
//
// 队列为空不是错误：刷新心跳并返回 (nil, nil)。成功时通道保持锁定，
// 由调用方把解锁职责交给 Update Handle。
func (s *session) popRef(ch Channel, now time.Time) (lgmp.Message, *channelState, error) {
	st := s.channel(ch)
	if !st.busy.TryLock() {
		return nil, nil, merr.WrapErrChannelBusy(ch.String(), "pop")
	}
	// 只有成功取到消息时才把锁交给 handle，其余路径（包括 panic）都在这里解锁。
	handedOff := false
	defer func() {
		if !handedOff {
			st.busy.Unlock()
		}
	}()

	msg, err := st.queue.PopInPlace()
	if lgmp.IsQueueEmpty(err) {
		st.touch(now)
		metrics.ChannelEmptyPolls.WithLabelValues(ch.String()).Inc()
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, merr.WrapErrLGMPCommunication(err, "pop_in_place", ch.String())
	}
	metrics.ChannelUpdates.WithLabelValues(ch.String()).Inc()
	handedOff = true
	return msg, st, nil
}

// fastForward 把通道读位置推进到最新一条消息，丢弃中间未读的消息。
// 队列为空时视为已追上，刷新心跳后返回成功。
func (s *session) fastForward(ch Channel, now time.Time) error {
	st := s.channel(ch)
	if !st.busy.TryLock() {
		return merr.WrapErrChannelBusy(ch.String(), "fast_forward")
	}
	defer st.busy.Unlock()

	err := st.queue.AdvanceToLast()
	if lgmp.IsQueueEmpty(err) {
		st.touch(now)
		metrics.ChannelEmptyPolls.WithLabelValues(ch.String()).Inc()
		return nil
	}
	if err != nil {
		return merr.WrapErrLGMPCommunication(err, "advance_to_last", ch.String())
	}
	metrics.ChannelFastForwards.WithLabelValues(ch.String()).Inc()
	return nil
}
