// Package lgmp 定义客户端侧使用的 LGMP（Looking Glass Memory Protocol）最小接口。
//
// 本包只描述会话层依赖的能力：初始化会话、按编号订阅队列、原地弹出消息、
// 跳到最新消息。真正的共享内存实现由调用方通过 NewClientFunc 注入，
// 测试与本地调试可以使用 memhost 子包提供的进程内宿主。
package lgmp

import (
	"github.com/cockroachdb/errors"

	"code.hybscloud.com/iox"

	"github.com/lk2023060901/kvmfr-client-go/internal/shm"
)

// LGMP 状态码对应的错误。
//
// 注意：ErrQueueEmpty 是正常情况（队列暂无消息），会话层据此刷新心跳，
// 其余错误一律视为通信失败。
var (
	ErrQueueEmpty      = errors.New("lgmp: queue empty")
	ErrQueueTimeout    = errors.New("lgmp: client timed out by host")
	ErrNoSuchQueue     = errors.New("lgmp: no such queue")
	ErrInvalidSession  = errors.New("lgmp: invalid session")
	ErrMessageInFlight = errors.New("lgmp: message still in flight")
	ErrClientClosed    = errors.New("lgmp: client closed")
)

// IsQueueEmpty 判断 err 是否表示“队列为空”。
//
// 底层实现既可能返回 ErrQueueEmpty，也可能直接返回 iox.ErrWouldBlock。
func IsQueueEmpty(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrQueueEmpty) || iox.IsWouldBlock(err)
}

// Message 为一条原地弹出的消息。
//
// Data 返回的切片直接指向共享内存，在 Done 调用之前有效。
type Message interface {
	Data() []byte
	UserData() uint32
	// Done 把消息槽归还给宿主，只能调用一次。
	Done() error
}

// Queue 为一个已订阅的 LGMP 队列。
type Queue interface {
	// PopInPlace 弹出队首消息，队列为空时返回满足 IsQueueEmpty 的错误。
	PopInPlace() (Message, error)
	// AdvanceToLast 丢弃除最新一条以外的所有待处理消息。
	AdvanceToLast() error
}

// Client 为一个已经附着到共享内存区域的 LGMP 客户端。
type Client interface {
	// SessionInit 与宿主建立会话，返回宿主注册的元数据与本客户端编号。
	SessionInit() (udata []byte, clientID uint32, err error)
	Subscribe(queueID uint32) (Queue, error)
	Close() error
}

// NewClientFunc 在给定的共享内存区域上创建 LGMP 客户端。
type NewClientFunc func(region *shm.Region) (Client, error)
