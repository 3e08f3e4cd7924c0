package client

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/lk2023060901/kvmfr-client-go/internal/lgmp"
	"github.com/lk2023060901/kvmfr-client-go/pkg/kvmfr"
	"github.com/lk2023060901/kvmfr-client-go/pkg/util/merr"
)

// update 为 Update Handle 的公共部分。
//
// 它直接引用共享内存中的消息字节，存活期间持有通道锁；Release 是解除锁定的唯一途径。
// 单个 handle 不支持并发使用。
type update struct {
	channel  Channel
	msg      lgmp.Message
	done     func(lgmp.Message) error
	unlock   func()
	once     sync.Once
	released atomic.Bool
	err      error
}

func (u *update) bind(ch Channel, msg lgmp.Message, st *channelState, done func(lgmp.Message) error) {
	u.channel = ch
	u.msg = msg
	u.done = done
	u.unlock = st.busy.Unlock
}

// Release 归还消息槽并释放通道锁，重复调用返回首次调用的结果。
func (u *update) Release() error {
	u.once.Do(func() {
		u.released.Store(true)
		defer u.unlock()
		u.err = u.done(u.msg)
	})
	return u.err
}

// Released 返回 handle 是否已释放。
func (u *update) Released() bool {
	return u.released.Load()
}

// Len 返回消息字节数，释放后返回 0。
func (u *update) Len() int {
	if u.released.Load() {
		return 0
	}
	return len(u.msg.Data())
}

// UserData 返回宿主随消息附带的 udata。
func (u *update) UserData() uint32 {
	return u.msg.UserData()
}

// Bytes 返回消息的原始字节，不做拷贝。
func (u *update) Bytes() ([]byte, error) {
	if u.released.Load() {
		return nil, merr.WrapErrUpdateReleased(u.channel.String())
	}
	return u.msg.Data(), nil
}

// FrameHandle 为帧通道上的一条更新。
type FrameHandle struct {
	update
}

// AsFrame 把消息解释为帧头视图，长度不足时返回 ErrFrameMessageTooSmall。
//
// 视图与 handle 共享同一段共享内存，只在 Release 之前有效；Release 之后宿主会复用
// 该消息槽，继续读取视图得到的是其他帧的数据。需要跨过 Release 保留时先调用 Clone。
func (h *FrameHandle) AsFrame() (kvmfr.Frame, error) {
	b, err := h.Bytes()
	if err != nil {
		return kvmfr.Frame{}, err
	}
	return kvmfr.ParseFrame(b)
}

// CursorHandle 为指针通道上的一条更新。
type CursorHandle struct {
	update
}

// AsCursor 把消息解释为光标头视图，长度不足时返回 ErrCursorMessageTooSmall。
// 视图的有效期同 AsFrame。
func (h *CursorHandle) AsCursor() (kvmfr.Cursor, error) {
	b, err := h.Bytes()
	if err != nil {
		return kvmfr.Cursor{}, err
	}
	return kvmfr.ParseCursor(b)
}

// Flags 返回宿主在 udata 中标记的光标信息类别。
func (h *CursorHandle) Flags() kvmfr.CursorFlags {
	return kvmfr.CursorFlags(h.UserData())
}
