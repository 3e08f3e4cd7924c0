// Package memhost 提供一个进程内的 LGMP 宿主实现。
//
// 它按 LGMP 的语义维护若干有界队列，并以 lgmp.Client 的形式暴露给会话层：
//   - 宿主通过 Post 投递消息，负载切片原样交给客户端，不做拷贝；
//   - 客户端按编号订阅队列，原地弹出消息，或跳到最新一条；
//   - 配置了超时时间时，若队列中有待处理消息，且距离“队首消息投递”与“客户端
//     上一次取消息或快进”两者中较晚的一个已超过该时间，宿主判定客户端超时，
//     之后该队列上的所有操作都返回 lgmp.ErrQueueTimeout。
//
// 该实现用于本地回环调试与测试，不访问真正的共享内存。
package memhost

import (
	"sync"
	"time"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"code.hybscloud.com/lfq"
	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"

	"github.com/lk2023060901/kvmfr-client-go/internal/lgmp"
	"github.com/lk2023060901/kvmfr-client-go/internal/shm"
	"github.com/lk2023060901/kvmfr-client-go/pkg/kvmfr"
)

// defaultQueueCapacity 为未显式配置时每个队列的槽位数量。
const defaultQueueCapacity = 32

// Host 为进程内 LGMP 宿主。
type Host struct {
	udata   []byte
	clock   clockwork.Clock
	timeout time.Duration

	mu         sync.Mutex
	queues     map[uint32]*hostQueue
	sessionErr error

	clientIDs atomix.Uint32
	serials   atomix.Uint32
}

// Option 用于调整 Host 行为。
type Option func(h *Host)

// WithClock 替换宿主使用的时钟，测试中传入 clockwork.FakeClock。
func WithClock(clock clockwork.Clock) Option {
	return func(h *Host) {
		h.clock = clock
	}
}

// WithTimeout 设置客户端超时时间，0 表示不检测超时。
func WithTimeout(timeout time.Duration) Option {
	return func(h *Host) {
		h.timeout = timeout
	}
}

// WithQueue 追加或覆盖一个队列。
func WithQueue(queueID uint32, capacity int) Option {
	return func(h *Host) {
		h.queues[queueID] = newHostQueue(queueID, capacity)
	}
}

// New 创建宿主，udata 为客户端 SessionInit 时拿到的注册元数据。
// 默认创建 KVMFR 的帧队列与指针队列。
func New(udata []byte, opts ...Option) *Host {
	h := &Host{
		udata: udata,
		clock: clockwork.NewRealClock(),
		queues: map[uint32]*hostQueue{
			kvmfr.QueueFrame:   newHostQueue(kvmfr.QueueFrame, defaultQueueCapacity),
			kvmfr.QueuePointer: newHostQueue(kvmfr.QueuePointer, defaultQueueCapacity),
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Post 向 queueID 投递一条消息。
// 队列已满时返回 iox.ErrWouldBlock，队列不存在时返回 lgmp.ErrNoSuchQueue。
func (h *Host) Post(queueID uint32, udata uint32, payload []byte) error {
	q, err := h.queue(queueID)
	if err != nil {
		return err
	}
	return q.post(hostMessage{
		serial: h.serials.Add(1),
		udata:  udata,
		data:   payload,
		posted: h.clock.Now(),
	})
}

// Pending 返回 queueID 上尚未被消费的消息数量。
func (h *Host) Pending(queueID uint32) int {
	q, err := h.queue(queueID)
	if err != nil {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pendingLocked()
}

// TimedOut 返回客户端是否已在 queueID 上被判定超时。
func (h *Host) TimedOut(queueID uint32) bool {
	q, err := h.queue(queueID)
	if err != nil {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.timedOut
}

// FailSessionInit 让之后的 SessionInit 返回 err，传入 nil 恢复正常。
func (h *Host) FailSessionInit(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessionErr = err
}

// FailNext 让 queueID 上的下一次客户端操作返回 err。
func (h *Host) FailNext(queueID uint32, err error) {
	q, qerr := h.queue(queueID)
	if qerr != nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.injected = err
}

// NewClient 创建一个附着到本宿主的客户端，签名与 lgmp.NewClientFunc 一致。
func (h *Host) NewClient(region *shm.Region) (lgmp.Client, error) {
	return &client{host: h, region: region}, nil
}

// Opener 返回一个不做任何映射的 shm.Opener，供回环模式使用。
func (h *Host) Opener() shm.Opener {
	return func(path string) (*shm.Region, error) {
		return shm.NewRegion(path, h.udata), nil
	}
}

func (h *Host) queue(queueID uint32) (*hostQueue, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	q, ok := h.queues[queueID]
	if !ok {
		return nil, lgmp.ErrNoSuchQueue
	}
	return q, nil
}

func (h *Host) sessionInitErr() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sessionErr
}

type hostMessage struct {
	serial uint32
	udata  uint32
	data   []byte
	posted time.Time
}

// hostQueue 为单个 LGMP 队列。
//
// ring 为有界 SPSC 队列，head 暂存已从 ring 取出但尚未被消费的队首消息，
// 用于在不消费的前提下检查队首滞留时间。所有字段由 mu 保护。
type hostQueue struct {
	id uint32

	mu       sync.Mutex
	ring     lfq.SPSC[hostMessage]
	size     int
	head     *hostMessage
	progress time.Time
	inFlight bool
	timedOut bool
	injected error
}

func newHostQueue(id uint32, capacity int) *hostQueue {
	q := &hostQueue{id: id}
	q.ring.Init(capacity)
	return q
}

func (q *hostQueue) post(msg hostMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.ring.Enqueue(&msg); err != nil {
		if iox.IsWouldBlock(err) {
			return errors.Wrapf(err, "queue %d is full", q.id)
		}
		return err
	}
	q.size++
	return nil
}

func (q *hostQueue) pendingLocked() int {
	n := q.size
	if q.head != nil {
		n++
	}
	return n
}

// frontLocked 返回队首消息但不消费，队列为空时返回 nil。
func (q *hostQueue) frontLocked() *hostMessage {
	if q.head != nil {
		return q.head
	}
	msg, err := q.ring.Dequeue()
	if err != nil {
		return nil
	}
	q.size--
	q.head = &msg
	return q.head
}

// takeLocked 消费并返回队首消息。
func (q *hostQueue) takeLocked() *hostMessage {
	msg := q.frontLocked()
	q.head = nil
	return msg
}

// checkLocked 处理注入错误与超时检测，返回客户端本次操作应得到的错误。
func (q *hostQueue) checkLocked(now time.Time, timeout time.Duration) error {
	if err := q.injected; err != nil {
		q.injected = nil
		return err
	}
	if q.timedOut {
		return lgmp.ErrQueueTimeout
	}
	if timeout > 0 {
		if front := q.frontLocked(); front != nil {
			since := front.posted
			if q.progress.After(since) {
				since = q.progress
			}
			if now.Sub(since) > timeout {
				q.timedOut = true
				return lgmp.ErrQueueTimeout
			}
		}
	}
	return nil
}
