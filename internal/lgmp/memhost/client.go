package memhost

import (
	"github.com/cockroachdb/errors"
	"go.uber.org/atomic"

	"github.com/lk2023060901/kvmfr-client-go/internal/lgmp"
	"github.com/lk2023060901/kvmfr-client-go/internal/shm"
)

// client 实现 lgmp.Client。
type client struct {
	host   *Host
	region *shm.Region

	// id 为 0 表示尚未完成 SessionInit。
	id     atomic.Uint32
	closed atomic.Bool
}

var _ lgmp.Client = (*client)(nil)

func (c *client) SessionInit() ([]byte, uint32, error) {
	if c.closed.Load() {
		return nil, 0, lgmp.ErrClientClosed
	}
	if err := c.host.sessionInitErr(); err != nil {
		return nil, 0, err
	}
	id := c.host.clientIDs.Add(1)
	c.id.Store(id)
	return c.host.udata, id, nil
}

func (c *client) Subscribe(queueID uint32) (lgmp.Queue, error) {
	if c.closed.Load() {
		return nil, lgmp.ErrClientClosed
	}
	if c.id.Load() == 0 {
		return nil, lgmp.ErrInvalidSession
	}
	q, err := c.host.queue(queueID)
	if err != nil {
		return nil, errors.Wrapf(err, "subscribe queue %d", queueID)
	}
	return &clientQueue{client: c, q: q}, nil
}

func (c *client) Close() error {
	c.closed.Store(true)
	return nil
}

// clientQueue 实现 lgmp.Queue。
type clientQueue struct {
	client *client
	q      *hostQueue
}

func (cq *clientQueue) PopInPlace() (lgmp.Message, error) {
	if cq.client.closed.Load() {
		return nil, lgmp.ErrClientClosed
	}
	h := cq.client.host
	q := cq.q
	q.mu.Lock()
	defer q.mu.Unlock()

	now := h.clock.Now()
	if err := q.checkLocked(now, h.timeout); err != nil {
		return nil, err
	}
	if q.inFlight {
		return nil, lgmp.ErrMessageInFlight
	}
	msg := q.takeLocked()
	if msg == nil {
		return nil, lgmp.ErrQueueEmpty
	}
	q.inFlight = true
	q.progress = now
	return &message{q: q, msg: *msg}, nil
}

func (cq *clientQueue) AdvanceToLast() error {
	if cq.client.closed.Load() {
		return lgmp.ErrClientClosed
	}
	h := cq.client.host
	q := cq.q
	q.mu.Lock()
	defer q.mu.Unlock()

	now := h.clock.Now()
	if err := q.checkLocked(now, h.timeout); err != nil {
		return err
	}
	if q.inFlight {
		return lgmp.ErrMessageInFlight
	}
	if q.pendingLocked() == 0 {
		return lgmp.ErrQueueEmpty
	}
	for q.pendingLocked() > 1 {
		q.takeLocked()
	}
	q.progress = now
	return nil
}

// message 实现 lgmp.Message，数据切片即宿主投递时的原始切片。
type message struct {
	q    *hostQueue
	msg  hostMessage
	done bool
}

func (m *message) Data() []byte {
	return m.msg.data
}

func (m *message) UserData() uint32 {
	return m.msg.udata
}

// Serial 返回宿主为该消息分配的序号。
func (m *message) Serial() uint32 {
	return m.msg.serial
}

func (m *message) Done() error {
	m.q.mu.Lock()
	defer m.q.mu.Unlock()
	if m.done {
		return nil
	}
	m.done = true
	m.q.inFlight = false
	return nil
}
