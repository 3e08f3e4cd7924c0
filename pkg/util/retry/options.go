// Copyright (C) 2019-2020 Zilliz. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software distributed under the License
// is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express
// or implied. See the License for the specific language governing permissions and limitations under the License.

package retry

import (
	"time"

	"github.com/jonboulle/clockwork"
)

type config struct {
	attempts     uint
	sleep        time.Duration
	maxSleepTime time.Duration
	isRetryErr   func(err error) bool
	clock        clockwork.Clock
}

func newDefaultConfig() *config {
	return &config{
		attempts:     uint(10),
		sleep:        200 * time.Millisecond,
		maxSleepTime: 3 * time.Second,
		clock:        clockwork.NewRealClock(),
	}
}

// Option 用于调整重试行为。
type Option func(*config)

// Attempts 设置最大尝试次数，0 表示不限次数。
func Attempts(attempts uint) Option {
	return func(c *config) {
		c.attempts = attempts
	}
}

// Sleep 设置首次重试前的休眠时间。
func Sleep(sleep time.Duration) Option {
	return func(c *config) {
		c.sleep = sleep
		// 保证 maxSleepTime 不小于 sleep
		if c.maxSleepTime < c.sleep {
			c.maxSleepTime = 2 * c.sleep
		}
	}
}

// MaxSleepTime 设置退避休眠的上限。
func MaxSleepTime(maxSleepTime time.Duration) Option {
	return func(c *config) {
		// 保证 maxSleepTime 不小于 sleep
		if maxSleepTime < c.sleep {
			c.maxSleepTime = 2 * c.sleep
		} else {
			c.maxSleepTime = maxSleepTime
		}
	}
}

// RetryErr 设置判定错误是否值得重试的函数。
func RetryErr(isRetryErr func(err error) bool) Option {
	return func(c *config) {
		c.isRetryErr = isRetryErr
	}
}

// Clock 替换休眠所用的时钟，测试中传入 clockwork.FakeClock。
func Clock(clock clockwork.Clock) Option {
	return func(c *config) {
		c.clock = clock
	}
}
