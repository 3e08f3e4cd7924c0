package poller

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/kvmfr-client-go/internal/client"
	"github.com/lk2023060901/kvmfr-client-go/internal/lgmp"
	"github.com/lk2023060901/kvmfr-client-go/internal/lgmp/memhost"
	"github.com/lk2023060901/kvmfr-client-go/pkg/kvmfr"
	"github.com/lk2023060901/kvmfr-client-go/pkg/util/merr"
)

type recorder struct {
	frames  []uint32
	cursors []uint32
	err     error
}

func (r *recorder) OnFrame(h *client.FrameHandle) error {
	r.frames = append(r.frames, h.UserData())
	return r.err
}

func (r *recorder) OnCursor(h *client.CursorHandle) error {
	r.cursors = append(r.cursors, h.UserData())
	return r.err
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.InitDelay = time.Millisecond
	cfg.InitRetrySleep = time.Millisecond
	cfg.ReconnectInitialInterval = time.Millisecond
	cfg.ReconnectMaxInterval = 5 * time.Millisecond
	return cfg
}

func openConn(t *testing.T, host *memhost.Host, clock clockwork.Clock) *client.Connection {
	conn, err := client.Open(client.Opts{ShmPath: "loopback", Timeout: time.Second}, host.NewClient,
		client.WithClock(clock), client.WithOpener(host.Opener()))
	require.NoError(t, err)
	require.NoError(t, conn.Init())
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestPollDrainsUpToLimit(t *testing.T) {
	clock := clockwork.NewFakeClock()
	host := memhost.New(kvmfr.NewHeader("B7", 0), memhost.WithClock(clock))
	conn := openConn(t, host, clock)

	// 先观察一次空队列，让心跳回到当前时间，避免 tick 快进。
	h, err := conn.GetFrameUpdate()
	require.NoError(t, err)
	require.Nil(t, h)
	for i := uint32(1); i <= 10; i++ {
		require.NoError(t, host.Post(kvmfr.QueueFrame, i, nil))
	}

	cfg := testConfig()
	cfg.MaxUpdatesPerTick = 4
	r := &recorder{}
	p := New(conn, r, cfg, clock)

	require.NoError(t, p.pollFrame())
	assert.Equal(t, []uint32{1, 2, 3, 4}, r.frames)
	assert.Equal(t, 6, host.Pending(kvmfr.QueueFrame))

	require.NoError(t, p.pollFrame())
	require.NoError(t, p.pollFrame())
	require.NoError(t, p.pollFrame())
	assert.Len(t, r.frames, 10)
	assert.Empty(t, r.cursors)
}

func TestPollFastForwardsOverdueChannel(t *testing.T) {
	clock := clockwork.NewFakeClock()
	host := memhost.New(kvmfr.NewHeader("B7", 0), memhost.WithClock(clock))
	conn := openConn(t, host, clock)
	for i := uint32(1); i <= 5; i++ {
		require.NoError(t, host.Post(kvmfr.QueuePointer, i, nil))
	}

	r := &recorder{}
	p := New(conn, r, testConfig(), clock)
	require.NoError(t, p.pollCursor())
	assert.Equal(t, []uint32{5}, r.cursors)
}

func TestHandlerErrorReleasesUpdate(t *testing.T) {
	clock := clockwork.NewFakeClock()
	host := memhost.New(kvmfr.NewHeader("B7", 0), memhost.WithClock(clock))
	conn := openConn(t, host, clock)
	require.NoError(t, host.Post(kvmfr.QueueFrame, 1, nil))

	r := &recorder{err: errors.New("decoder not ready")}
	p := New(conn, r, testConfig(), clock)
	require.NoError(t, p.pollFrame())
	assert.Equal(t, []uint32{1}, r.frames)

	// 通道已解锁。
	require.NoError(t, host.Post(kvmfr.QueueFrame, 2, nil))
	h, err := conn.GetFrameUpdate()
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.NoError(t, h.Release())
}

func TestHandlerFuncs(t *testing.T) {
	var f HandlerFuncs
	assert.NoError(t, f.OnFrame(nil))
	assert.NoError(t, f.OnCursor(nil))

	called := false
	f.Cursor = func(*client.CursorHandle) error {
		called = true
		return nil
	}
	assert.NoError(t, f.OnCursor(nil))
	assert.True(t, called)
}

func TestRunStopsWithContext(t *testing.T) {
	host := memhost.New(kvmfr.NewHeader("B7", 0))
	conn := openConn(t, host, clockwork.NewRealClock())
	p := New(conn, HandlerFuncs{}, testConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not stop")
	}
}

func TestRunReturnsFatalError(t *testing.T) {
	host := memhost.New(kvmfr.NewHeader("B7", 0))
	conn := openConn(t, host, clockwork.NewRealClock())
	p := New(conn, HandlerFuncs{}, testConfig(), nil)
	host.FailNext(kvmfr.QueueFrame, lgmp.ErrInvalidSession)

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, merr.ErrLGMPCommunication)
		assert.ErrorIs(t, err, lgmp.ErrInvalidSession)
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not stop")
	}
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cases := map[string]func(c *Config){
		"tick period":     func(c *Config) { c.TickPeriod = 0 },
		"init delay":      func(c *Config) { c.InitDelay = -time.Second },
		"updates":         func(c *Config) { c.MaxUpdatesPerTick = 0 },
		"reconnect range": func(c *Config) { c.ReconnectMaxInterval = c.ReconnectInitialInterval / 2 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), merr.ErrParameterInvalid)
		})
	}
}
