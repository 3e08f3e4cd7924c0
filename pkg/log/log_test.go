package log

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type bufferSyncer struct {
	bytes.Buffer
}

func (b *bufferSyncer) Sync() error { return nil }

func TestInitLoggerWithWriteSyncerJSON(t *testing.T) {
	buf := &bufferSyncer{}
	cfg := &Config{Level: "info", Format: FormatJSON, DisableTimestamp: true, DisableCaller: true}
	lg, props, err := InitLoggerWithWriteSyncer(cfg, buf)
	require.NoError(t, err)

	lg.Debug("dropped")
	lg.Info("tick", FieldChannel("frame"), FieldClientID(3))
	require.NoError(t, lg.Sync())

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, `"msg":"tick"`)
	assert.Contains(t, out, `"channel":"frame"`)
	assert.Contains(t, out, `"clientID":3`)
	assert.Equal(t, zapcore.InfoLevel, props.Level.Level())
}

func TestInitLoggerBadLevel(t *testing.T) {
	_, _, err := InitLoggerWithWriteSyncer(&Config{Level: "loud"}, &bufferSyncer{})
	assert.Error(t, err)
}

func TestInitTestLogger(t *testing.T) {
	cfg := DefaultConfig()
	lg, _, err := InitTestLogger(t, &cfg)
	require.NoError(t, err)
	lg.Info("visible in test output")
}

func TestCtxFields(t *testing.T) {
	buf := &bufferSyncer{}
	cfg := &Config{Level: "debug", Format: FormatJSON, DisableTimestamp: true, DisableCaller: true}
	lg, props, err := InitLoggerWithWriteSyncer(cfg, buf)
	require.NoError(t, err)

	oldL, oldP := L(), _globalP.Load().(*ZapProperties)
	ReplaceGlobals(lg, props)
	replaceLeveledLoggers(lg)
	defer func() {
		ReplaceGlobals(oldL, oldP)
		replaceLeveledLoggers(oldL)
	}()

	ctx := WithModule(context.Background(), "poller")
	Ctx(ctx).Info("hello")
	assert.Contains(t, buf.String(), `"module":"poller"`)
}

func TestBinder(t *testing.T) {
	var b Binder
	assert.NotNil(t, b.Logger())

	l := With(zap.String("k", "v"))
	b.SetLogger(l)
	assert.Same(t, l, b.Logger())
}

func TestRatedLogger(t *testing.T) {
	l := With().WithRateGroup("test", 1, 1)
	assert.True(t, l.RatedDebug(1, "first"))
	assert.False(t, l.RatedDebug(1, "second"))
}

func TestWithChannelRateGroups(t *testing.T) {
	frame := With().WithChannel("rated-frame")
	pointer := With().WithChannel("rated-pointer")

	assert.True(t, frame.RatedDebug(10, "first"))
	assert.False(t, frame.RatedDebug(10, "throttled"))
	// 另一个通道有独立的额度。
	assert.True(t, pointer.RatedDebug(10, "first"))
}
