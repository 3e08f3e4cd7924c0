package client

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/kvmfr-client-go/internal/lgmp"
	"github.com/lk2023060901/kvmfr-client-go/internal/lgmp/memhost"
	"github.com/lk2023060901/kvmfr-client-go/internal/shm"
	"github.com/lk2023060901/kvmfr-client-go/pkg/kvmfr"
	"github.com/lk2023060901/kvmfr-client-go/pkg/util/merr"
)

func TestOpenValidatesOpts(t *testing.T) {
	host := memhost.New(kvmfr.NewHeader("B7", 0))

	_, err := Open(Opts{Timeout: testTimeout}, host.NewClient, WithOpener(host.Opener()))
	assert.ErrorIs(t, err, merr.ErrParameterMissing)

	_, err = Open(Opts{ShmPath: "loopback"}, host.NewClient, WithOpener(host.Opener()))
	assert.ErrorIs(t, err, merr.ErrParameterInvalid)

	_, err = Open(DefaultOpts(), nil, WithOpener(host.Opener()))
	assert.ErrorIs(t, err, merr.ErrParameterMissing)
}

func TestOpenDeviceFailure(t *testing.T) {
	boom := errors.New("permission denied")
	_, err := Open(DefaultOpts(), memhost.New(nil).NewClient,
		WithOpener(func(string) (*shm.Region, error) { return nil, boom }))
	assert.ErrorIs(t, err, merr.ErrShmDevice)
	assert.ErrorIs(t, err, boom)

	// 已经归类的错误不重复包装。
	classified := merr.WrapErrShmDeviceReason("/dev/kvmfr0", "not a regular file")
	_, err = Open(DefaultOpts(), memhost.New(nil).NewClient,
		WithOpener(func(string) (*shm.Region, error) { return nil, classified }))
	assert.Equal(t, classified, err)
}

func TestOpenClientFailure(t *testing.T) {
	boom := errors.New("bad lgmp header")
	opened := false
	_, err := Open(DefaultOpts(),
		func(*shm.Region) (lgmp.Client, error) { return nil, boom },
		WithOpener(func(path string) (*shm.Region, error) {
			r := shm.NewRegion(path, nil)
			opened = true
			return r, nil
		}))
	assert.True(t, opened)
	assert.ErrorIs(t, err, merr.ErrLGMPCommunication)
	assert.ErrorIs(t, err, boom)
}

func TestInitSubscribeFailure(t *testing.T) {
	boom := errors.New("queue not registered")
	c := &scriptedClient{
		udata:        kvmfr.NewHeader("B7", 0),
		subscribeErr: map[uint32]error{kvmfr.QueuePointer: boom},
		queue:        panicQueue{},
	}
	conn := openScripted(t, c)
	defer conn.Close()

	err := conn.Init()
	assert.ErrorIs(t, err, merr.ErrLGMPCommunication)
	assert.ErrorIs(t, err, boom)
	assert.False(t, conn.Initialized())

	// 订阅恢复后可以重新 Init。
	delete(c.subscribeErr, kvmfr.QueuePointer)
	assert.NoError(t, conn.Init())
	assert.True(t, conn.Initialized())
}

func TestPanicPoisonsConnection(t *testing.T) {
	c := &scriptedClient{
		udata: kvmfr.NewHeader("B7", 0),
		queue: panicQueue{},
	}
	conn := openScripted(t, c)
	require.NoError(t, conn.Init())
	frame := conn.session.channel(ChannelFrame)

	assert.Panics(t, func() {
		_, _ = conn.GetFrameUpdate()
	})
	// panic 发生在取到消息之前，通道锁不能被遗留。
	require.True(t, frame.busy.TryLock())
	frame.busy.Unlock()

	_, err := conn.GetCursorUpdate()
	assert.ErrorIs(t, err, merr.ErrClientLockPoisoned)
	assert.ErrorIs(t, conn.TickFrame(testTickPeriod), merr.ErrClientLockPoisoned)
	assert.ErrorIs(t, conn.Init(), merr.ErrClientLockPoisoned)
	assert.False(t, merr.IsRetryableErr(err))

	// 中毒后 Close 仍然关闭客户端并解除映射。
	assert.ErrorIs(t, conn.Close(), merr.ErrClientLockPoisoned)
	assert.Equal(t, 1, c.closeCalls)
	assert.Zero(t, conn.region.Len())

	assert.ErrorIs(t, conn.Close(), merr.ErrClientLockPoisoned)
	assert.Equal(t, 1, c.closeCalls)
}

func TestReleaseAfterPoisonReturnsSlot(t *testing.T) {
	msg := &countingMessage{data: make([]byte, kvmfr.CursorSize)}
	c := &scriptedClient{
		udata: kvmfr.NewHeader("B7", 0),
		queues: map[uint32]lgmp.Queue{
			kvmfr.QueueFrame:   panicQueue{},
			kvmfr.QueuePointer: &onceQueue{msg: msg},
		},
	}
	conn := openScripted(t, c)
	require.NoError(t, conn.Init())

	h, err := conn.GetCursorUpdate()
	require.NoError(t, err)
	require.NotNil(t, h)

	assert.Panics(t, func() {
		_, _ = conn.GetFrameUpdate()
	})

	assert.ErrorIs(t, h.Release(), merr.ErrClientLockPoisoned)
	assert.Equal(t, 1, msg.doneCalls)
	assert.True(t, h.Released())

	assert.ErrorIs(t, conn.Close(), merr.ErrClientLockPoisoned)
	assert.Equal(t, 1, c.closeCalls)
}
