// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"sync"
	"sync/atomic"

	"github.com/uber/jaeger-client-go/utils"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// channelRateCredit 为每个通道日志限流组每秒补充的额度。
	// tick 路径上的 Rated* 调用约定 cost 为 10，即每个通道每秒最多一条。
	channelRateCredit  = 10.0
	channelRateBalance = 10.0
)

// MLogger 在 zap.Logger 之上增加按组限流的日志能力。
type MLogger struct {
	*zap.Logger
	rl atomic.Pointer[utils.ReconfigurableRateLimiter]
}

// With 返回携带额外字段的新 MLogger，字段在第一次真正写日志时才编码。
func (l *MLogger) With(fields ...zap.Field) *MLogger {
	return &MLogger{
		Logger: l.Logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return newLazyWith(core, fields)
		})),
	}
}

// WithRateGroup 为当前 Logger 绑定名为 groupName 的限流器。
// 同名限流器在进程内共享，再次绑定会以新的参数更新它。
func (l *MLogger) WithRateGroup(groupName string, creditPerSecond, maxBalance float64) *MLogger {
	rl := utils.NewRateLimiter(creditPerSecond, maxBalance)
	if actual, loaded := _namedRateLimiters.LoadOrStore(groupName, rl); loaded {
		rl = actual.(*utils.ReconfigurableRateLimiter)
		rl.Update(creditPerSecond, maxBalance)
	}
	l.rl.Store(rl)
	return l
}

// WithChannel 返回带通道字段的 Logger，并为该通道使用独立的限流组，
// 帧通道刷屏时不会挤占指针通道的日志额度。
func (l *MLogger) WithChannel(channel string) *MLogger {
	return l.With(FieldChannel(channel)).
		WithRateGroup("channel."+channel, channelRateCredit, channelRateBalance)
}

func (l *MLogger) r() RateLimiter {
	if rl := l.rl.Load(); rl != nil {
		return rl
	}
	return R()
}

// RatedDebug 额度足够时输出 Debug 日志并返回 true。
func (l *MLogger) RatedDebug(cost float64, msg string, fields ...zap.Field) bool {
	if !l.r().CheckCredit(cost) {
		return false
	}
	l.WithOptions(zap.AddCallerSkip(1)).Debug(msg, fields...)
	return true
}

// RatedInfo 额度足够时输出 Info 日志并返回 true。
func (l *MLogger) RatedInfo(cost float64, msg string, fields ...zap.Field) bool {
	if !l.r().CheckCredit(cost) {
		return false
	}
	l.WithOptions(zap.AddCallerSkip(1)).Info(msg, fields...)
	return true
}

// RatedWarn 额度足够时输出 Warn 日志并返回 true。
func (l *MLogger) RatedWarn(cost float64, msg string, fields ...zap.Field) bool {
	if !l.r().CheckCredit(cost) {
		return false
	}
	l.WithOptions(zap.AddCallerSkip(1)).Warn(msg, fields...)
	return true
}

// lazyWithCore 推迟 core.With 的字段编码，直到第一次 Check 或 With。
// 见 https://github.com/uber-go/zap/issues/1426。
type lazyWithCore struct {
	core   atomic.Pointer[zapcore.Core]
	once   sync.Once
	fields []zapcore.Field
}

var _ zapcore.Core = (*lazyWithCore)(nil)

func newLazyWith(core zapcore.Core, fields []zapcore.Field) zapcore.Core {
	c := &lazyWithCore{fields: fields}
	c.core.Store(&core)
	return c
}

func (c *lazyWithCore) load() zapcore.Core {
	return *c.core.Load()
}

func (c *lazyWithCore) materialize() zapcore.Core {
	c.once.Do(func() {
		core := c.load().With(c.fields)
		c.core.Store(&core)
	})
	return c.load()
}

func (c *lazyWithCore) Enabled(level zapcore.Level) bool {
	return c.load().Enabled(level)
}

func (c *lazyWithCore) With(fields []zapcore.Field) zapcore.Core {
	return c.materialize().With(fields)
}

func (c *lazyWithCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	return c.materialize().Check(e, ce)
}

func (c *lazyWithCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	return c.load().Write(entry, fields)
}

func (c *lazyWithCore) Sync() error {
	return c.materialize().Sync()
}

// Binder 供组件嵌入，持有组件自己的 Logger；未绑定时退回全局 Logger。
type Binder struct {
	logger atomic.Pointer[MLogger]
}

func (b *Binder) SetLogger(logger *MLogger) {
	b.logger.Store(logger)
}

func (b *Binder) Logger() *MLogger {
	if l := b.logger.Load(); l != nil {
		return l
	}
	return With()
}
